package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/pipeline"
	"github.com/lioneltchami/scribepod/internal/progress"
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Extract and save the fact pool without generating dialogue",
	Long: `Run ingestion and fact extraction only, saving the scored facts as JSON.
The saved file feeds "scribepod generate --from-facts" so the expensive
extraction step is paid once per source.`,
	RunE: runFacts,
}

var (
	flagFactsInput   string
	flagFactsOutput  string
	flagFactsTopic   string
	flagFactsModel   string
	flagFactsLimit   int
	flagFactsPreview int
	flagFactsVerbose bool
)

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.Flags().StringVarP(&flagFactsInput, "input", "i", "", "Source content (URL, PDF path, or text file path)")
	factsCmd.Flags().StringVarP(&flagFactsOutput, "output", "o", "", "Output fact file path (JSON)")
	factsCmd.Flags().StringVarP(&flagFactsTopic, "topic", "p", "", "Bias extraction toward a specific topic")
	factsCmd.Flags().StringVarP(&flagFactsModel, "model", "m", "haiku", "Extraction model: "+strings.Join(completion.ModelNames(), ", "))
	factsCmd.Flags().IntVar(&flagFactsLimit, "fact-limit", 0, "Cap on extracted facts (0 = no cap)")
	factsCmd.Flags().IntVar(&flagFactsPreview, "preview", 15, "Facts to show in the preview table (0 = all)")
	factsCmd.Flags().BoolVarP(&flagFactsVerbose, "verbose", "v", false, "Enable detailed logging")
}

func runFacts(cmd *cobra.Command, args []string) error {
	if flagFactsInput == "" {
		return fmt.Errorf("--input (-i) is required")
	}
	if err := validateModel(flagFactsModel); err != nil {
		return err
	}
	applyKeyFlags()
	if err := checkAPIKeys(flagFactsModel); err != nil {
		return err
	}

	name := flagFactsOutput
	if name == "" {
		name = time.Now().Format("facts-20060102-1504.json")
	}
	outputPath := pipeline.FactsPath(name)
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	opts := pipeline.Options{
		Input:     flagFactsInput,
		Output:    outputPath,
		Topic:     flagFactsTopic,
		Model:     flagFactsModel,
		FactLimit: flagFactsLimit,
		FactsOnly: true,
	}

	var (
		notify progress.Callback
		r      *progress.BarRenderer
	)
	if flagFactsVerbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		r = progress.NewBarRenderer(os.Stdout)
		notify = r.Handle
	}

	_, err := pipeline.Run(cmd.Context(), opts, notify)
	if r != nil {
		r.Finish()
	}
	if err != nil {
		return err
	}

	facts, err := content.LoadFacts(outputPath)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(renderFactTable(facts, flagFactsPreview))
	fmt.Printf("\n  Saved %d facts to %s\n", len(facts), outputPath)
	return nil
}

var (
	factHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	factRuleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	factIDStyle = lipgloss.NewStyle().
			Width(6).
			Foreground(lipgloss.Color("#626262"))

	factWeightStyle = lipgloss.NewStyle().
			Width(8)

	factHotStyle = factWeightStyle.
			Foreground(lipgloss.Color("#04B575"))

	factColdStyle = factWeightStyle.
			Foreground(lipgloss.Color("#555555"))

	factCatStyle = lipgloss.NewStyle().
			Width(14)
)

// renderFactTable draws the strongest facts as a fixed-width table,
// heaviest first. A positive limit keeps the preview short.
func renderFactTable(facts []content.Fact, limit int) string {
	sorted := append([]content.Fact(nil), facts...)
	content.SortByImportance(sorted)

	shown := sorted
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	var b strings.Builder
	b.WriteString("  " + factHeaderStyle.Render(fmt.Sprintf("%-6s%-8s%-14s %s", "ID", "WEIGHT", "CATEGORY", "FACT")) + "\n")
	b.WriteString("  " + factRuleStyle.Render(strings.Repeat("─", 76)) + "\n")

	for _, f := range shown {
		weightStyle := factWeightStyle
		switch {
		case f.Importance >= 0.7:
			weightStyle = factHotStyle
		case f.Importance < 0.4:
			weightStyle = factColdStyle
		}
		cat := f.Category
		if cat == "" {
			cat = "-"
		}
		b.WriteString("  " +
			factIDStyle.Render(f.ID) +
			weightStyle.Render(fmt.Sprintf("%.2f", f.Importance)) +
			factCatStyle.Render(truncateText(cat, 13)) +
			" " + truncateText(f.Text, 56) + "\n")
	}

	if len(shown) < len(sorted) {
		b.WriteString(factRuleStyle.Render(fmt.Sprintf("  ... and %d more", len(sorted)-len(shown))) + "\n")
	}
	return b.String()
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
