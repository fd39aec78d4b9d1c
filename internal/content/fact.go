// Package content models the facts a dialogue is grounded on and extracts
// them from ingested source text.
package content

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Fact is one unit of source knowledge with a relevance weight.
type Fact struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Importance float64 `json:"importance"`
	Category   string  `json:"category,omitempty"`
}

// Validate reports the first structural problem with the fact, or nil.
func (f Fact) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("fact has empty id")
	}
	if strings.TrimSpace(f.Text) == "" {
		return fmt.Errorf("fact %s has empty text", f.ID)
	}
	if f.Importance < 0 || f.Importance > 1 {
		return fmt.Errorf("fact %s: importance %.2f out of range [0,1]", f.ID, f.Importance)
	}
	return nil
}

// Normalize trims texts, clamps importance into [0,1], drops empty
// entries, dedupes on lowercased text, and assigns ordinal ids where
// missing. Input order is preserved for survivors.
func Normalize(facts []Fact) []Fact {
	seen := make(map[string]bool, len(facts))
	out := make([]Fact, 0, len(facts))

	for _, f := range facts {
		f.Text = strings.TrimSpace(f.Text)
		if f.Text == "" {
			continue
		}
		key := strings.ToLower(f.Text)
		if seen[key] {
			continue
		}
		seen[key] = true

		if f.Importance < 0 {
			f.Importance = 0
		}
		if f.Importance > 1 {
			f.Importance = 1
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("f%d", len(out)+1)
		}
		out = append(out, f)
	}
	return out
}

// SortByImportance orders facts by descending importance. The sort is
// stable, so equally weighted facts keep their original order.
func SortByImportance(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Importance > facts[j].Importance
	})
}

// SaveFacts writes extracted facts as indented JSON, so an expensive
// extraction can be reused across runs.
func SaveFacts(facts []Fact, path string) error {
	data, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write facts to %s: %w", path, err)
	}
	return nil
}

// LoadFacts reads a fact file saved by SaveFacts.
func LoadFacts(path string) ([]Fact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts from %s: %w", path, err)
	}
	var facts []Fact
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("parse facts from %s: %w", path, err)
	}
	if len(facts) == 0 {
		return nil, fmt.Errorf("fact file %s is empty", path)
	}
	return facts, nil
}
