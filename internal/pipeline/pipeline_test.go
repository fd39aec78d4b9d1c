package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/dialogue"
	"github.com/lioneltchami/scribepod/internal/progress"
)

type scriptedPort struct {
	replies []string
	calls   int
}

func (p *scriptedPort) Complete(_ context.Context, _ completion.Params) (completion.Result, error) {
	if p.calls >= len(p.replies) {
		return completion.Result{}, fmt.Errorf("unexpected completion call %d", p.calls)
	}
	reply := p.replies[p.calls]
	p.calls++
	return completion.Result{Text: reply}, nil
}

func (p *scriptedPort) CompleteStream(_ context.Context, _ completion.Params) (<-chan completion.StreamEvent, error) {
	return nil, completion.ErrStreamingUnsupported
}

const factReply = `[
  {"text": "Edge nodes cut median latency by forty percent", "importance": 0.9, "category": "number"},
  {"text": "Cold objects still pay the full origin round trip", "importance": 0.8, "category": "finding"},
  {"text": "Prefetching trades bandwidth for latency", "importance": 0.7, "category": "method"}
]`

const introReply = `{"turns": [
  {"speaker": "alex", "text": "Welcome back, today we are digging into edge caching and what it actually buys you."},
  {"speaker": "sam", "text": "Glad to be here, the trial numbers surprised even the team that ran them."}
]}`

const bodyReply = `{"turns": [
  {"speaker": "sam", "text": "Edge nodes cut median latency by forty percent in the first trial."},
  {"speaker": "alex", "text": "Forty percent is a big swing. What drove most of that gain?", "emotion": "curious"},
  {"speaker": "jordan", "text": "Cache placement. Moving hot objects closer beat every tuning knob we tried."},
  {"speaker": "sam", "text": "The tail is the caveat. Cold objects still pay the full origin round trip."},
  {"speaker": "jordan", "text": "Right, and the miss penalty grows when the origin sits an ocean away."},
  {"speaker": "alex", "text": "So the next step is smarter prefetching for those cold paths."},
  {"speaker": "sam", "text": "Prefetching helps, though it trades bandwidth for latency and the budget is finite."}
]}`

const outroReply = `{"turns": [
  {"speaker": "alex", "text": "That feels like a good place to land it for today."},
  {"speaker": "jordan", "text": "Thanks for having me, the tail latency story deserves a follow up."}
]}`

func writeSourceFile(t *testing.T) string {
	t.Helper()
	body := "Edge Caching Field Notes\n\n" + strings.Repeat("measurement latency origin cache node trial result budget window ", 15)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunEndToEnd(t *testing.T) {
	port := &scriptedPort{replies: []string{factReply, introReply, bodyReply, outroReply}}
	out := filepath.Join(t.TempDir(), "episode.json")

	var events []progress.Event
	tr, err := Run(context.Background(), Options{
		Input:    writeSourceFile(t),
		Output:   out,
		Topic:    "Edge caching",
		Tone:     "casual",
		Speakers: 3,
		Port:     port,
		Logger:   quietLogger(),
	}, func(e progress.Event) { events = append(events, e) })

	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 4, port.calls)

	assert.Equal(t, "Edge caching", tr.Title)
	require.Len(t, tr.Turns, 11)
	assert.True(t, tr.Report.Passed)
	assert.Equal(t, 100, tr.Report.Score)

	// Ordinals renumbered across intro, body, outro.
	for i, turn := range tr.Turns {
		assert.Equal(t, i, turn.Ordinal)
	}
	assert.Contains(t, tr.Turns[3].Emotions, "curious")

	loaded, err := dialogue.LoadTranscript(out)
	require.NoError(t, err)
	assert.Len(t, loaded.Turns, 11)

	seen := map[progress.Stage]bool{}
	for _, e := range events {
		seen[e.Stage] = true
	}
	for _, st := range []progress.Stage{progress.StageIngest, progress.StageExtract, progress.StageDialogue, progress.StageValidate, progress.StageComplete} {
		assert.True(t, seen[st], "missing stage %s", st)
	}

	last := events[len(events)-1]
	assert.Equal(t, progress.StageComplete, last.Stage)
	assert.Equal(t, out, last.OutputFile)
	assert.Contains(t, last.Duration, "min")

	var sawChunk bool
	for _, e := range events {
		if e.ChunkTotal == 3 && e.ChunkNum == 3 {
			sawChunk = true
		}
	}
	assert.True(t, sawChunk, "expected a chunk progress event covering all facts")
}

func TestRunFromFactsSkipsIngest(t *testing.T) {
	factsPath := filepath.Join(t.TempDir(), "facts.json")
	require.NoError(t, content.SaveFacts([]content.Fact{
		{ID: "f1", Text: "Edge nodes cut median latency by forty percent", Importance: 0.9},
		{ID: "f2", Text: "Cold objects still pay the full origin round trip", Importance: 0.8},
		{ID: "f3", Text: "Prefetching trades bandwidth for latency", Importance: 0.7},
	}, factsPath))

	port := &scriptedPort{replies: []string{introReply, bodyReply, outroReply}}

	var events []progress.Event
	tr, err := Run(context.Background(), Options{
		FromFacts: factsPath,
		Topic:     "Edge caching",
		Speakers:  3,
		Port:      port,
		Logger:    quietLogger(),
	}, func(e progress.Event) { events = append(events, e) })

	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 3, port.calls)
	assert.Len(t, tr.Turns, 11)

	for _, e := range events {
		assert.NotEqual(t, progress.StageIngest, e.Stage)
	}
}

func TestRunFactsOnly(t *testing.T) {
	port := &scriptedPort{replies: []string{factReply}}
	out := filepath.Join(t.TempDir(), "facts.json")

	tr, err := Run(context.Background(), Options{
		Input:     writeSourceFile(t),
		Output:    out,
		FactsOnly: true,
		Port:      port,
		Logger:    quietLogger(),
	}, nil)

	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, 1, port.calls)

	facts, err := content.LoadFacts(out)
	require.NoError(t, err)
	assert.Len(t, facts, 3)
}

func TestRunInputTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.txt")
	require.NoError(t, os.WriteFile(path, []byte("only a handful of words here"), 0644))

	_, err := Run(context.Background(), Options{
		Input:  path,
		Port:   &scriptedPort{},
		Logger: quietLogger(),
	}, nil)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "ingest", perr.Stage)
	assert.Contains(t, perr.Message, "too short")
}

func TestRunRawText(t *testing.T) {
	port := &scriptedPort{replies: []string{factReply, introReply, bodyReply, outroReply}}
	raw := strings.Repeat("latency cache origin budget trial node window result probe depth ", 12)

	tr, err := Run(context.Background(), Options{
		RawText:  raw,
		Topic:    "Edge caching",
		Speakers: 3,
		Port:     port,
		Logger:   quietLogger(),
	}, nil)

	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Len(t, tr.Turns, 11)
}

func TestPipelineError(t *testing.T) {
	inner := errors.New("boom")
	err := &PipelineError{Stage: "extract", Message: "failed to extract facts", Err: inner}
	assert.Equal(t, "[extract] failed to extract facts: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	bare := &PipelineError{Stage: "ingest", Message: "input too short"}
	assert.Equal(t, "[ingest] input too short", bare.Error())
}
