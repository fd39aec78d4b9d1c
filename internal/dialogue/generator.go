package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/persona"
)

// SegmentKind names the slice of the arc a generation request covers.
type SegmentKind string

const (
	SegmentIntro SegmentKind = "intro"
	SegmentBody  SegmentKind = "body"
	SegmentOutro SegmentKind = "outro"
)

// TurnRequest carries everything a generator needs for one segment.
type TurnRequest struct {
	Kind     SegmentKind
	Cast     []persona.Profile
	LeadID   string
	Facts    []content.Fact
	Mood     Mood
	History  []Turn
	Topic    string
	Tone     string
	MinTurns int
	MaxTurns int
}

// TurnGenerator produces the turns for one segment. Implementations
// must return turns whose speaker ids come from req.Cast.
type TurnGenerator interface {
	GenerateTurns(ctx context.Context, req TurnRequest) ([]Turn, error)
}

const segmentMaxTokens = 4096

// LLMGenerator asks a completion port to write each segment and parses
// the JSON reply. Transient provider failures and malformed replies are
// retried internally.
type LLMGenerator struct {
	port completion.Port
}

func NewLLMGenerator(port completion.Port) *LLMGenerator {
	return &LLMGenerator{port: port}
}

func (g *LLMGenerator) GenerateTurns(ctx context.Context, req TurnRequest) ([]Turn, error) {
	params := completion.Params{
		System: buildSystemPrompt(req.Cast),
		Messages: []completion.Message{
			{Role: completion.RoleUser, Content: buildSegmentPrompt(req)},
		},
		MaxTokens:   segmentMaxTokens,
		Temperature: completion.DefaultTemperature,
	}

	var turns []Turn
	err := completion.Retry(ctx, func() error {
		result, err := g.port.Complete(ctx, params)
		if err != nil {
			return err
		}
		parsed, err := parseTurns(result.Text, req.Cast)
		if err != nil {
			return err
		}
		turns = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate %s segment: %w", req.Kind, err)
	}
	return turns, nil
}

type turnPayload struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

type segmentPayload struct {
	Turns []turnPayload `json:"turns"`
}

// parseTurns decodes a segment reply and checks it against the cast.
// Speaker ids are matched case-insensitively; the canonical id wins.
func parseTurns(raw string, cast []persona.Profile) ([]Turn, error) {
	cleaned := completion.CleanJSON(raw)

	var payload segmentPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, &completion.ParseError{
			Msg: "segment JSON is malformed",
			Raw: completion.Truncate(raw, 500),
			Err: err,
		}
	}
	if len(payload.Turns) == 0 {
		return nil, &completion.ParseError{
			Msg: "segment has no turns",
			Raw: completion.Truncate(raw, 500),
		}
	}

	canonical := make(map[string]string, len(cast))
	for _, p := range cast {
		canonical[strings.ToLower(p.ID)] = p.ID
	}

	turns := make([]Turn, 0, len(payload.Turns))
	for i, pt := range payload.Turns {
		id, ok := canonical[strings.ToLower(strings.TrimSpace(pt.Speaker))]
		if !ok {
			return nil, &completion.ParseError{
				Msg: fmt.Sprintf("turn %d has unknown speaker %q", i, pt.Speaker),
			}
		}
		text := strings.TrimSpace(pt.Text)
		if text == "" {
			return nil, &completion.ParseError{
				Msg: fmt.Sprintf("turn %d has empty text", i),
			}
		}
		turns = append(turns, Turn{
			SpeakerID: id,
			Text:      text,
			Emotions:  emotionTags(pt.Emotion),
		})
	}
	return turns, nil
}

// emotionTags normalizes a free-form emotion string into lowercase tags.
func emotionTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	}) {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
