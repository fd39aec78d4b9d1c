package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/dialogue"
)

var (
	flagPublishTitle     string
	flagPublishSummary   string
	flagPublishOwner     string
	flagPublishSourceURL string
	flagPublishAPIURL    string
)

var publishCmd = &cobra.Command{
	Use:   "publish <transcript-json>",
	Short: "Publish a dialogue transcript to the Scribepod platform",
	Long:  "Upload a transcript JSON file and publish it. Metadata is taken from the transcript itself, with an AI fallback for missing fields.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&flagPublishTitle, "title", "", "Episode title (overrides the transcript's)")
	publishCmd.Flags().StringVar(&flagPublishSummary, "summary", "", "Episode summary (overrides the transcript's)")
	defaultOwner := "Scribepod"
	if u, err := user.Current(); err == nil && u.Name != "" {
		defaultOwner = u.Name
	}
	publishCmd.Flags().StringVar(&flagPublishOwner, "owner", defaultOwner, "Episode owner")
	publishCmd.Flags().StringVar(&flagPublishSourceURL, "source-url", "", "Original source URL")
	publishCmd.Flags().StringVar(&flagPublishAPIURL, "api-url", "https://scribepod.dev", "API base URL")
}

type publishMeta struct {
	Title        string  `json:"title"`
	Summary      string  `json:"summary"`
	Owner        string  `json:"owner"`
	Duration     string  `json:"duration"`
	FileSizeMB   float64 `json:"fileSizeMB"`
	TurnCount    int     `json:"turnCount"`
	QualityScore int     `json:"qualityScore"`
	SourceURL    string  `json:"sourceUrl,omitempty"`
}

type uploadResponse struct {
	DialogueID    string `json:"dialogueId"`
	UploadURL     string `json:"uploadUrl"`
	TranscriptKey string `json:"transcriptKey"`
}

type confirmResponse struct {
	DialogueID    string `json:"dialogueId"`
	Status        string `json:"status"`
	TranscriptURL string `json:"transcriptUrl"`
}

func runPublish(cmd *cobra.Command, args []string) error {
	path := args[0]

	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return fmt.Errorf("file must have .json extension: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}
	fileSizeMB := float64(info.Size()) / (1024 * 1024)
	fmt.Printf("File: %s (%.1f MB)\n", path, fileSizeMB)

	tr, err := dialogue.LoadTranscript(path)
	if err != nil {
		return err
	}
	duration := fmt.Sprintf("%d min", tr.EstimateMinutes())
	fmt.Printf("Duration: ~%s (%d turns)\n", duration, len(tr.Turns))

	title, summary := tr.Title, tr.Summary
	if flagPublishTitle != "" {
		title = flagPublishTitle
	}
	if flagPublishSummary != "" {
		summary = flagPublishSummary
	}

	// Fill missing fields from the turns themselves.
	if title == "" || summary == "" {
		fmt.Print("Generating metadata via Haiku...")
		aiTitle, aiSummary, err := generateMetadata(cmd.Context(), tr.Turns)
		if err == nil {
			if title == "" && aiTitle != "" {
				title = aiTitle
			}
			if summary == "" && aiSummary != "" {
				summary = aiSummary
			}
			fmt.Println(" done")
		} else {
			fmt.Println(" skipped")
		}
	}
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	fmt.Printf("Title: %s\n", title)

	apiKey, keySource, err := resolvePublishKey()
	if err != nil {
		return err
	}
	fmt.Printf("API key: found (%s)\n", keySource)

	meta := publishMeta{
		Title:        title,
		Summary:      summary,
		Owner:        flagPublishOwner,
		Duration:     duration,
		FileSizeMB:   fileSizeMB,
		TurnCount:    len(tr.Turns),
		QualityScore: tr.Report.Score,
		SourceURL:    flagPublishSourceURL,
	}

	fmt.Print("Requesting upload URL...")
	var uploadResp uploadResponse
	err = publishRetry(func() error {
		return postJSON(flagPublishAPIURL+"/api/dialogues/upload-url", apiKey, meta, &uploadResp)
	})
	if err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("request upload URL: %w", err)
	}
	fmt.Printf(" ok (id: %s)\n", uploadResp.DialogueID)

	fmt.Print("Uploading transcript...")
	if err := uploadFile(path, uploadResp.UploadURL, info.Size()); err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("upload transcript: %w", err)
	}
	fmt.Println(" done")

	fmt.Print("Confirming publication...")
	confirmBody := map[string]string{"dialogueId": uploadResp.DialogueID}
	var confirmResp confirmResponse
	err = publishRetry(func() error {
		return postJSON(flagPublishAPIURL+"/api/dialogues/confirm", apiKey, confirmBody, &confirmResp)
	})
	if err != nil {
		fmt.Println(" failed")
		return fmt.Errorf("confirm upload (file was uploaded but not confirmed): %w", err)
	}
	fmt.Println(" done")

	fmt.Printf("\nPublished: %s\n", title)
	fmt.Printf("  URL: %s/dialogues\n", flagPublishAPIURL)
	if confirmResp.TranscriptURL != "" {
		fmt.Printf("  Transcript: %s\n", confirmResp.TranscriptURL)
	}

	return nil
}

// generateMetadata asks Haiku for a title and summary based on the
// opening turns.
func generateMetadata(ctx context.Context, turns []dialogue.Turn) (title, summary string, err error) {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return "", "", fmt.Errorf("no ANTHROPIC_API_KEY")
	}

	var sb strings.Builder
	for _, t := range turns {
		if sb.Len() > 2000 {
			break
		}
		fmt.Fprintf(&sb, "%s: %s\n", t.SpeakerID, t.Text)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	port := completion.NewAnthropicPort("haiku")
	result, err := port.Complete(ctx, completion.Params{
		System: "You generate episode metadata for a spoken dialogue. Given a transcript, return a JSON object with two fields: \"title\" (a compelling episode title, max 80 chars) and \"summary\" (a 1-2 sentence description, max 200 chars). Return ONLY the JSON object, no markdown fences.",
		Messages: []completion.Message{
			{Role: completion.RoleUser, Content: sb.String()},
		},
		MaxTokens:   256,
		Temperature: completion.DefaultTemperature,
	})
	if err != nil {
		return "", "", fmt.Errorf("metadata call: %w", err)
	}

	var parsed struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(completion.CleanJSON(result.Text)), &parsed); err != nil {
		return "", "", fmt.Errorf("parse metadata JSON: %w", err)
	}
	return parsed.Title, parsed.Summary, nil
}

// resolvePublishKey finds the platform API key: environment first, then
// the secrets file, then the config file.
func resolvePublishKey() (key, source string, err error) {
	if k := os.Getenv("SCRIBEPOD_API_KEY"); k != "" {
		return k, "env:SCRIBEPOD_API_KEY", nil
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		secretPath := filepath.Join(home, ".secrets", "scribepod-api-key")
		if data, err := os.ReadFile(secretPath); err == nil {
			if k := strings.TrimSpace(string(data)); k != "" {
				return k, secretPath, nil
			}
		}

		configPath := filepath.Join(home, ".config", "scribepod", "config.json")
		if data, err := os.ReadFile(configPath); err == nil {
			var cfg struct {
				APIKey string `json:"apiKey"`
			}
			if json.Unmarshal(data, &cfg) == nil && cfg.APIKey != "" {
				return cfg.APIKey, configPath, nil
			}
		}
	}

	return "", "", fmt.Errorf("API key not found: set SCRIBEPOD_API_KEY or create ~/.config/scribepod/config.json")
}

func postJSON(url, apiKey string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func uploadFile(path, uploadURL string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequest(http.MethodPut, uploadURL, f)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = size

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func publishRetry(fn func() error) error {
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			time.Sleep(backoffs[attempt])
		}
	}
	return lastErr
}
