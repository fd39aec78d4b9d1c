package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/completion"
)

// scriptedPort replays canned replies, one per Complete call.
type scriptedPort struct {
	replies []string
	errs    []error
	calls   int
}

func (p *scriptedPort) Complete(_ context.Context, _ completion.Params) (completion.Result, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return completion.Result{}, p.errs[i]
	}
	if i >= len(p.replies) {
		return completion.Result{}, completion.ErrEmptyResponse
	}
	return completion.Result{Text: p.replies[i], Usage: completion.Usage{InputTokens: 10, OutputTokens: 20}}, nil
}

func (p *scriptedPort) CompleteStream(_ context.Context, _ completion.Params) (<-chan completion.StreamEvent, error) {
	return nil, completion.ErrStreamingUnsupported
}

func TestExtract(t *testing.T) {
	port := &scriptedPort{replies: []string{
		"<scratchpad>\nthree facts stand out\n</scratchpad>\n```json\n" +
			`[{"text": "minor detail", "importance": 0.2, "category": "context"},
			  {"text": "the core result", "importance": 0.95, "category": "finding"},
			  {"text": "supporting number", "importance": 0.6, "category": "number"}]` +
			"\n```",
	}}

	facts, err := NewExtractor(port).Extract(context.Background(), "source text", 0)
	require.NoError(t, err)
	require.Len(t, facts, 3)

	assert.Equal(t, "the core result", facts[0].Text)
	assert.Equal(t, "supporting number", facts[1].Text)
	assert.Equal(t, "minor detail", facts[2].Text)
	for _, f := range facts {
		require.NoError(t, f.Validate())
	}
}

func TestExtractLimit(t *testing.T) {
	port := &scriptedPort{replies: []string{
		`[{"text": "a", "importance": 0.9}, {"text": "b", "importance": 0.8}, {"text": "c", "importance": 0.7}]`,
	}}

	facts, err := NewExtractor(port).Extract(context.Background(), "source", 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "a", facts[0].Text)
}

func TestExtractNonRetryableError(t *testing.T) {
	port := &scriptedPort{errs: []error{errors.New("invalid api key")}}

	_, err := NewExtractor(port).Extract(context.Background(), "source", 0)
	require.Error(t, err)
	assert.Equal(t, 1, port.calls)
}

func TestParseFactsMalformed(t *testing.T) {
	_, err := parseFacts("no json here at all")
	var parseErr *completion.ParseError
	require.ErrorAs(t, err, &parseErr)

	_, err = parseFacts(`[{"text": "", "importance": 0.5}]`)
	require.ErrorAs(t, err, &parseErr)
}
