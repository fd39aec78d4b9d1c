package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
)

// streamPort scripts a provider stream. With hang set it emits its
// events and then stalls until the context dies, closing the channel
// without a terminal event the way a severed stream does.
type streamPort struct {
	events []completion.StreamEvent
	hang   bool
	params []completion.Params
}

func (p *streamPort) Complete(context.Context, completion.Params) (completion.Result, error) {
	return completion.Result{}, errors.New("not used")
}

func (p *streamPort) CompleteStream(ctx context.Context, params completion.Params) (<-chan completion.StreamEvent, error) {
	p.params = append(p.params, params)
	ch := make(chan completion.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range p.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if p.hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// syncPort only supports blocking completion.
type syncPort struct {
	text string
}

func (p *syncPort) Complete(context.Context, completion.Params) (completion.Result, error) {
	return completion.Result{Text: p.text, Usage: completion.Usage{InputTokens: 30, OutputTokens: 8}}, nil
}

func (p *syncPort) CompleteStream(context.Context, completion.Params) (<-chan completion.StreamEvent, error) {
	return nil, completion.ErrStreamingUnsupported
}

func newSession(t *testing.T, store *session.Store, cfg session.Config) session.Session {
	t.Helper()
	sess, err := store.Create(context.Background(), persona.Seed(), cfg)
	require.NoError(t, err)
	return sess
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("stream did not close in time")
		}
	}
}

func TestStreamReplyRelaysAndCommits(t *testing.T) {
	store := session.NewStore()
	sess := newSession(t, store, session.Config{})

	port := &streamPort{events: []completion.StreamEvent{
		{Text: "Well, "},
		{Text: "I think "},
		{Text: "caching wins."},
		{Done: true, Usage: completion.Usage{InputTokens: 40, OutputTokens: 12}},
	}}
	r := NewResponder(port, store, Config{})

	ch, err := r.StreamReply(context.Background(), sess.ID, "what wins?")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 4)
	assert.Equal(t, "Well, ", events[0].Delta)
	assert.Equal(t, "I think ", events[1].Delta)
	assert.Equal(t, "caching wins.", events[2].Delta)

	final := events[3]
	assert.True(t, final.Done)
	// 2 estimated user tokens plus the provider-reported 12.
	assert.Equal(t, int64(14), final.TokenCount)

	stats, err := store.Stats(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessageCount)
	assert.Equal(t, int64(14), stats.TotalTokens)

	history, err := store.History(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "what wins?", history[0].Content)
	assert.Equal(t, "Well, I think caching wins.", history[1].Content)
	assert.Equal(t, "alex", history[1].PersonaID)

	// The persona prompt went out with the request.
	require.Len(t, port.params, 1)
	assert.Contains(t, port.params[0].System, "You are Alex")
	assert.Contains(t, port.params[0].System, "first person")
	last := port.params[0].Messages[len(port.params[0].Messages)-1]
	assert.Equal(t, "what wins?", last.Content)
}

func TestStreamReplyCancelCommitsNothing(t *testing.T) {
	store := session.NewStore()
	sess := newSession(t, store, session.Config{})

	port := &streamPort{
		events: []completion.StreamEvent{{Text: "The part you'll "}, {Text: "never see finished"}},
		hang:   true,
	}
	r := NewResponder(port, store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := r.StreamReply(ctx, sess.ID, "go on")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "The part you'll ", first.Delta)
	second := <-ch
	assert.Equal(t, "never see finished", second.Delta)

	cancel()
	events := collect(t, ch)
	for _, ev := range events {
		assert.False(t, ev.Done, "an abandoned stream must not report completion")
	}

	stats, err := store.Stats(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.MessageCount, "cancelled exchange leaves no messages")
	assert.Equal(t, int64(0), stats.TotalTokens)

	history, err := store.History(context.Background(), sess.ID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStreamReplyProviderErrorCommitsNothing(t *testing.T) {
	store := session.NewStore()
	sess := newSession(t, store, session.Config{})

	cause := errors.New("overloaded")
	port := &streamPort{events: []completion.StreamEvent{
		{Text: "Starting out fine"},
		{Err: cause},
	}}
	r := NewResponder(port, store, Config{})

	ch, err := r.StreamReply(context.Background(), sess.ID, "hello?")
	require.NoError(t, err)

	events := collect(t, ch)
	require.NotEmpty(t, events)
	final := events[len(events)-1]
	assert.ErrorIs(t, final.Err, cause)

	stats, err := store.Stats(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.MessageCount)
}

func TestStreamReplyFallsBackWithoutStreaming(t *testing.T) {
	store := session.NewStore()
	sess := newSession(t, store, session.Config{})

	r := NewResponder(&syncPort{text: "One complete thought."}, store, Config{})

	ch, err := r.StreamReply(context.Background(), sess.ID, "thoughts?")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "One complete thought.", events[0].Delta)
	assert.True(t, events[1].Done)

	stats, err := store.Stats(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessageCount)
}

func TestStreamReplyPrechecks(t *testing.T) {
	store := session.NewStore()
	r := NewResponder(&streamPort{}, store, Config{})
	ctx := context.Background()

	_, err := r.StreamReply(ctx, "missing", "hi")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)

	sess := newSession(t, store, session.Config{MaxMessages: 2})
	_, _, err = store.AppendExchange(ctx, sess.ID, "first", "reply", 3)
	require.NoError(t, err)

	_, err = r.StreamReply(ctx, sess.ID, "one more")
	assert.ErrorIs(t, err, session.ErrSessionFull, "a full session is rejected before any tokens stream")

	_, err = r.StreamReply(ctx, sess.ID, "   ")
	assert.Error(t, err)
}

func TestBuildChatMessagesWindow(t *testing.T) {
	history := make([]session.Message, 15)
	for i := range history {
		role := session.RoleUser
		if i%2 == 1 {
			role = session.RoleAssistant
		}
		history[i] = session.Message{Role: role, Content: "m"}
	}

	msgs := buildChatMessages(history, "newest", 10)
	require.Len(t, msgs, 11, "ten history turns plus the new message")
	assert.Equal(t, completion.RoleUser, msgs[len(msgs)-1].Role)
	assert.Equal(t, "newest", msgs[len(msgs)-1].Content)

	// history[5] is odd-indexed, an assistant turn, and is the first
	// message inside the window.
	assert.Equal(t, completion.RoleAssistant, msgs[0].Role)
}

func TestInterruptionError(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-expired.Done()
	assert.ErrorIs(t, interruptionError(expired), ErrStreamTimeout)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, interruptionError(cancelled), ErrStreamCancelled)

	cause := errors.New("connection reset")
	withCause, stopCause := context.WithCancelCause(context.Background())
	stopCause(cause)
	assert.ErrorIs(t, interruptionError(withCause), cause)

	assert.ErrorIs(t, interruptionError(context.Background()), ErrStreamCancelled)
}
