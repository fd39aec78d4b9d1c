package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/persona"
)

type fakePort struct {
	replies []string
	params  []completion.Params
}

func (p *fakePort) Complete(_ context.Context, params completion.Params) (completion.Result, error) {
	p.params = append(p.params, params)
	reply := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return completion.Result{Text: reply, Usage: completion.Usage{InputTokens: 100, OutputTokens: 50}}, nil
}

func (p *fakePort) CompleteStream(context.Context, completion.Params) (<-chan completion.StreamEvent, error) {
	return nil, completion.ErrStreamingUnsupported
}

func TestParseTurns(t *testing.T) {
	raw := `<scratchpad>
Planning the exchange here.
</scratchpad>
` + "```json\n" + `{
  "turns": [
    {"speaker": "Alex", "text": "So the benchmark held up.", "emotion": "Curious"},
    {"speaker": "sam", "text": "It did, across all three regions.", "emotion": "confident, amused"},
    {"speaker": "jordan", "text": "I still want the shadow traffic run."}
  ]
}` + "\n```"

	turns, err := parseTurns(raw, persona.Seed())
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, "alex", turns[0].SpeakerID, "speaker ids normalize to the canonical cast id")
	assert.Equal(t, []string{"curious"}, turns[0].Emotions)
	assert.Equal(t, []string{"confident", "amused"}, turns[1].Emotions)
	assert.Nil(t, turns[2].Emotions)
}

func TestParseTurnsRejectsUnknownSpeaker(t *testing.T) {
	raw := `{"turns": [{"speaker": "narrator", "text": "Meanwhile..."}]}`

	_, err := parseTurns(raw, persona.Seed())
	var parseErr *completion.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Msg, "narrator")
}

func TestParseTurnsRejectsEmpty(t *testing.T) {
	for _, raw := range []string{
		`{"turns": []}`,
		`not json at all`,
		`{"turns": [{"speaker": "alex", "text": "   "}]}`,
	} {
		_, err := parseTurns(raw, persona.Seed())
		var parseErr *completion.ParseError
		assert.ErrorAs(t, err, &parseErr, "input %q", raw)
	}
}

func TestLLMGeneratorBuildsSegmentPrompt(t *testing.T) {
	port := &fakePort{replies: []string{
		`{"turns": [
			{"speaker": "sam", "text": "The cold start numbers are the real story."},
			{"speaker": "alex", "text": "Walk us through them."}
		]}`,
	}}
	gen := NewLLMGenerator(port)

	turns, err := gen.GenerateTurns(context.Background(), TurnRequest{
		Kind:   SegmentBody,
		Cast:   persona.Seed(),
		LeadID: "sam",
		Facts: []content.Fact{
			{ID: "f1", Text: "cold starts fell by half", Importance: 0.9},
		},
		Mood:     MoodPeak,
		Topic:    "runtime tuning",
		Tone:     "technical",
		MinTurns: 2,
		MaxTurns: 3,
	})
	require.NoError(t, err)
	assert.Len(t, turns, 2)

	require.Len(t, port.params, 1)
	sent := port.params[0]
	assert.Contains(t, sent.System, "[id: alex]")
	assert.Contains(t, sent.System, "[id: jordan]")
	assert.Contains(t, sent.System, "Output raw JSON only")

	require.Len(t, sent.Messages, 1)
	prompt := sent.Messages[0].Content
	assert.Contains(t, prompt, "[f1] cold starts fell by half")
	assert.Contains(t, prompt, "Sam Rivera leads this exchange")
	assert.Contains(t, prompt, "heart of the conversation")
	assert.Contains(t, prompt, "TARGET LENGTH: 2-3 turns")
	assert.Equal(t, int64(segmentMaxTokens), sent.MaxTokens)
	assert.InDelta(t, completion.DefaultTemperature, sent.Temperature, 1e-9)
}

func TestEmotionTags(t *testing.T) {
	assert.Nil(t, emotionTags(""))
	assert.Equal(t, []string{"wry"}, emotionTags("Wry"))
	assert.Equal(t, []string{"warm", "teasing"}, emotionTags("warm; teasing"))
}
