package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/pipeline"
	"github.com/lioneltchami/scribepod/internal/progress"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "scribepod",
	Short: "Turn written content into multi-speaker dialogue transcripts",
	Long: `Scribepod ingests articles, PDFs, and text files, distills them into
facts, and orchestrates a multi-persona conversation over them. It can
also host live chat sessions with the same personas, locally or over HTTP.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scribepod %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a dialogue transcript from written content",
	RunE:  runGenerate,
}

var (
	flagInput           string
	flagOutput          string
	flagTopic           string
	flagTone            string
	flagModel           string
	flagSpeakers        int
	flagFactLimit       int
	flagFactsPerChunk   int
	flagFromFacts       string
	flagSkipIntro       bool
	flagSkipOutro       bool
	flagVerbose         bool
	flagAnthropicAPIKey string
	flagGeminiAPIKey    string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&flagInput, "input", "i", "", "Source content (URL, PDF path, or text file path)")
	generateCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Output transcript path (JSON)")
	generateCmd.Flags().StringVarP(&flagTopic, "topic", "p", "", "Focus the conversation on a specific topic")
	generateCmd.Flags().StringVarP(&flagTone, "tone", "n", "casual", "Conversation tone: casual, technical, educational")
	generateCmd.Flags().StringVarP(&flagModel, "model", "m", "haiku", "Generation model: "+strings.Join(completion.ModelNames(), ", "))
	generateCmd.Flags().IntVarP(&flagSpeakers, "speakers", "s", 2, "Number of speakers (1-3)")
	generateCmd.Flags().IntVar(&flagFactLimit, "fact-limit", 0, "Cap on extracted facts (0 = no cap)")
	generateCmd.Flags().IntVar(&flagFactsPerChunk, "facts-per-chunk", 0, "Facts covered per generation chunk (0 = default)")
	generateCmd.Flags().StringVarP(&flagFromFacts, "from-facts", "f", "", "Generate from a saved fact file, skipping ingestion")
	generateCmd.Flags().BoolVar(&flagSkipIntro, "skip-intro", false, "Skip the opening exchange")
	generateCmd.Flags().BoolVar(&flagSkipOutro, "skip-outro", false, "Skip the closing exchange")
	generateCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
	generateCmd.Flags().StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY env var)")
	generateCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Gemini API key (overrides GEMINI_API_KEY env var)")
}

func Execute() error {
	return rootCmd.Execute()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagFromFacts == "" && flagInput == "" {
		return fmt.Errorf("either --input (-i) or --from-facts (-f) is required")
	}
	if flagFromFacts != "" && flagInput != "" {
		return fmt.Errorf("--input and --from-facts are mutually exclusive")
	}
	if err := validateTone(flagTone); err != nil {
		return err
	}
	if err := validateModel(flagModel); err != nil {
		return err
	}
	if flagSpeakers < 1 || flagSpeakers > 3 {
		return fmt.Errorf("invalid speakers count %d: must be 1, 2, or 3", flagSpeakers)
	}

	applyKeyFlags()
	if err := checkAPIKeys(flagModel); err != nil {
		return err
	}

	// Route output to scribepod-output/transcripts/ with a log alongside.
	name := flagOutput
	if name == "" {
		name = defaultTranscriptName()
	}
	outputPath := pipeline.TranscriptPath(name)
	logFile := pipeline.LogFilePath(name)
	for _, p := range []string{outputPath, logFile} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	opts := pipeline.Options{
		Input:         flagInput,
		Output:        outputPath,
		Topic:         flagTopic,
		Tone:          flagTone,
		Model:         flagModel,
		Speakers:      flagSpeakers,
		FactLimit:     flagFactLimit,
		FactsPerChunk: flagFactsPerChunk,
		FromFacts:     flagFromFacts,
		SkipIntro:     flagSkipIntro,
		SkipOutro:     flagSkipOutro,
		LogFile:       logFile,
	}

	var notify progress.Callback
	if flagVerbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		f, err := os.Create(logFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		opts.Logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))

		r := progress.NewBarRenderer(os.Stdout)
		defer r.Finish()
		notify = r.Handle
	}

	_, err := pipeline.Run(cmd.Context(), opts, notify)
	return err
}

func defaultTranscriptName() string {
	return time.Now().Format("dialogue-20060102-1504.json")
}

func validateTone(tone string) error {
	switch tone {
	case "casual", "technical", "educational":
		return nil
	}
	return fmt.Errorf("invalid tone %q: must be casual, technical, or educational", tone)
}

func validateModel(model string) error {
	for _, m := range completion.ModelNames() {
		if model == m {
			return nil
		}
	}
	return fmt.Errorf("invalid model %q: must be one of %s", model, strings.Join(completion.ModelNames(), ", "))
}

// applyKeyFlags pushes key flags into the environment the provider SDKs
// read from.
func applyKeyFlags() {
	if flagAnthropicAPIKey != "" {
		os.Setenv("ANTHROPIC_API_KEY", flagAnthropicAPIKey)
	}
	if flagGeminiAPIKey != "" {
		os.Setenv("GEMINI_API_KEY", flagGeminiAPIKey)
	}
}

// checkAPIKeys verifies the selected model's credentials are present
// before any work starts. nova-lite rides the default AWS credential
// chain, which cannot be checked from the environment alone.
func checkAPIKeys(model string) error {
	switch model {
	case "haiku", "sonnet":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return fmt.Errorf("missing ANTHROPIC_API_KEY environment variable\nYou can also pass it via --anthropic-api-key")
		}
	case "gemini-flash", "gemini-pro":
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("missing GEMINI_API_KEY environment variable\nYou can also pass it via --gemini-api-key")
		}
	}
	return nil
}
