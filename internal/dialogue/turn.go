// Package dialogue turns a persona cast and a fact list into a validated
// multi-speaker conversation.
package dialogue

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Mood is the conversation's arc stage. Stages only ever move forward.
type Mood string

const (
	MoodIntro       Mood = "intro"
	MoodBuilding    Mood = "building"
	MoodPeak        Mood = "peak"
	MoodWindingDown Mood = "windingDown"
	MoodOutro       Mood = "outro"
)

var moodOrder = []Mood{MoodIntro, MoodBuilding, MoodPeak, MoodWindingDown, MoodOutro}

func (m Mood) index() int {
	for i, stage := range moodOrder {
		if stage == m {
			return i
		}
	}
	return 0
}

// Turn is one utterance in a dialogue. Ordinals are assigned in emission
// order and never reshuffled.
type Turn struct {
	SpeakerID string   `json:"speakerId"`
	Ordinal   int      `json:"ordinal"`
	Text      string   `json:"text"`
	OffsetMS  int64    `json:"offsetMs"`
	Emotions  []string `json:"emotions,omitempty"`
}

// Words returns the whitespace-separated word count of the turn text.
func (t Turn) Words() int {
	return len(strings.Fields(t.Text))
}

// wordsPerMinute is the speech-rate assumption behind estimated offsets.
const wordsPerMinute = 150

// EstimateOffsets assigns ordinals and cumulative playback offsets based
// on an average speaking rate. The slice is renumbered in place.
func EstimateOffsets(turns []Turn) {
	var offset int64
	for i := range turns {
		turns[i].Ordinal = i
		turns[i].OffsetMS = offset
		offset += int64(turns[i].Words()) * 60_000 / wordsPerMinute
	}
}

// Transcript is a finished dialogue with its quality verdict.
type Transcript struct {
	Title   string        `json:"title,omitempty"`
	Summary string        `json:"summary,omitempty"`
	Turns   []Turn        `json:"turns"`
	Report  QualityReport `json:"report"`
}

// EstimateMinutes approximates playback length from total words.
func (tr *Transcript) EstimateMinutes() int {
	words := 0
	for _, t := range tr.Turns {
		words += t.Words()
	}
	minutes := words / wordsPerMinute
	if minutes < 1 && words > 0 {
		minutes = 1
	}
	return minutes
}

// SaveTranscript writes the transcript as indented JSON.
func SaveTranscript(tr *Transcript, path string) error {
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write transcript to %s: %w", path, err)
	}
	return nil
}

// LoadTranscript reads a transcript saved by SaveTranscript.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transcript from %s: %w", path, err)
	}
	var tr Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse transcript from %s: %w", path, err)
	}
	if len(tr.Turns) == 0 {
		return nil, fmt.Errorf("transcript %s has no turns", path)
	}
	return &tr, nil
}
