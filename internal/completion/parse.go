package completion

import (
	"regexp"
	"strings"
)

var (
	scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
)

// StripScratchpad removes <scratchpad> planning blocks models emit before
// their actual answer.
func StripScratchpad(text string) string {
	return scratchpadRe.ReplaceAllString(text, "")
}

// StripMarkdownFences unwraps ```json ... ``` or bare ``` fences.
func StripMarkdownFences(text string) string {
	if matches := fenceRe.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return text
}

// ExtractJSONObject slices from the first '{' to the last '}'.
func ExtractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ExtractJSONArray slices from the first '[' to the last ']'.
func ExtractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// CleanJSON runs the full scrub pipeline for an expected JSON object.
func CleanJSON(text string) string {
	text = StripScratchpad(text)
	text = StripMarkdownFences(text)
	text = ExtractJSONObject(text)
	return strings.TrimSpace(text)
}

// CleanJSONArray runs the full scrub pipeline for an expected JSON array.
func CleanJSONArray(text string) string {
	text = StripScratchpad(text)
	text = StripMarkdownFences(text)
	text = ExtractJSONArray(text)
	return strings.TrimSpace(text)
}

// Truncate shortens s for error messages and logs.
func Truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
