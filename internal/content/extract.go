package content

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lioneltchami/scribepod/internal/completion"
)

const extractSystemPrompt = `You are a research assistant. You extract discrete, verifiable facts from source material for use in a scripted conversation.

RULES:
1. Each fact must stand alone — understandable without the surrounding text
2. Facts must come from the source material only, never from outside knowledge
3. Score importance 0.0-1.0: how central the fact is to the source's main argument
4. Use a short lowercase category word per fact ("finding", "method", "context", "number", "quote")
5. Prefer specific facts (numbers, names, mechanisms) over vague summaries

OUTPUT FORMAT:
Return ONLY a valid JSON array matching this exact structure (no markdown fences, no extra text):
[
  {"text": "The study covered 12,000 participants over 6 years", "importance": 0.9, "category": "number"},
  {"text": "Earlier methods required manual annotation", "importance": 0.4, "category": "context"}
]

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the array.`

const extractMaxTokens = 8192

// Extractor pulls scored facts out of source text through a completion
// port.
type Extractor struct {
	port completion.Port
}

func NewExtractor(port completion.Port) *Extractor {
	return &Extractor{port: port}
}

// Extract returns up to limit facts ordered by descending importance.
// A limit of zero or less means no cap.
func (e *Extractor) Extract(ctx context.Context, source string, limit int) ([]Fact, error) {
	userPrompt := fmt.Sprintf("Extract the key facts from the following source material.\n\nSOURCE MATERIAL:\n%s", source)

	var facts []Fact
	err := completion.Retry(ctx, func() error {
		res, err := e.port.Complete(ctx, completion.Params{
			System:      extractSystemPrompt,
			Messages:    []completion.Message{{Role: completion.RoleUser, Content: userPrompt}},
			MaxTokens:   extractMaxTokens,
			Temperature: completion.DefaultTemperature,
		})
		if err != nil {
			return err
		}

		parsed, err := parseFacts(res.Text)
		if err != nil {
			return err
		}
		facts = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}

	SortByImportance(facts)
	if limit > 0 && len(facts) > limit {
		facts = facts[:limit]
	}
	return facts, nil
}

func parseFacts(text string) ([]Fact, error) {
	cleaned := completion.CleanJSONArray(text)
	if cleaned == "" {
		return nil, &completion.ParseError{Msg: "no JSON array found in response", Raw: completion.Truncate(text, 500)}
	}

	var facts []Fact
	if err := json.Unmarshal([]byte(cleaned), &facts); err != nil {
		return nil, &completion.ParseError{Msg: "invalid fact array", Raw: completion.Truncate(cleaned, 500), Err: err}
	}

	facts = Normalize(facts)
	if len(facts) == 0 {
		return nil, &completion.ParseError{Msg: "fact array was empty after cleanup", Raw: completion.Truncate(cleaned, 500)}
	}
	return facts, nil
}
