package pipeline

import (
	"path/filepath"
	"strings"
)

// OutputBaseDir is where CLI runs land their artifacts, one subdirectory
// per kind (transcripts, facts, logs).
const OutputBaseDir = "scribepod-output"

// TranscriptPath routes an output name into the transcripts directory,
// forcing a .json extension.
func TranscriptPath(name string) string {
	return outputPath("transcripts", name, ".json")
}

// FactsPath routes an output name into the facts directory.
func FactsPath(name string) string {
	return outputPath("facts", name, ".json")
}

// LogFilePath derives the run log location from the output name.
func LogFilePath(name string) string {
	return outputPath("logs", name, ".log")
}

func outputPath(kind, name, ext string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(OutputBaseDir, kind, stem+ext)
}
