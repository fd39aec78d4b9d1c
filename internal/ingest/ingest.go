// Package ingest turns source material (web articles, PDFs, plain text
// files, or raw strings) into normalized Content ready for fact
// extraction.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type SourceType string

const (
	SourceURL  SourceType = "url"
	SourcePDF  SourceType = "pdf"
	SourceText SourceType = "text"
	SourceRaw  SourceType = "raw"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

// Content is the normalized output of ingestion, whatever the source.
type Content struct {
	Text      string
	Title     string
	Source    string
	WordCount int
}

type Ingester interface {
	Ingest(ctx context.Context, source string) (*Content, error)
}

// DetectSource classifies an input string as a URL, a PDF path, or a
// text file path. Raw inline text never comes through here; callers
// with in-memory material use FromString directly.
func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceText
}

func NewIngester(input string) Ingester {
	switch DetectSource(input) {
	case SourceURL:
		return &URLIngester{}
	case SourcePDF:
		return &PDFIngester{}
	default:
		return &TextIngester{}
	}
}

// FromString wraps already-loaded material as Content. API and job
// submissions carry their text inline instead of pointing at a file.
func FromString(text, title string) (*Content, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("source text is empty")
	}
	if len(text) > maxInputSize {
		return nil, fmt.Errorf("source text is too large (%d MB, max %d MB)", len(text)/(1024*1024), maxInputSize/(1024*1024))
	}
	if title == "" {
		title = titleFromText(text, 80)
	}
	return &Content{
		Text:      text,
		Title:     title,
		Source:    string(SourceRaw),
		WordCount: wordCount(text),
	}, nil
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			count++
		}
	}
	return count
}

// titleFromText derives a title from the first non-empty line of text,
// truncated to maxLen bytes.
func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
