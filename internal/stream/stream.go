// Package stream relays persona replies to interactive clients chunk
// by chunk. The finished exchange is committed to the session in one
// step, so a stream that dies partway leaves no trace in the history.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/observability"
	"github.com/lioneltchami/scribepod/internal/session"
)

var (
	// ErrStreamCancelled ends a stream whose consumer went away mid-reply.
	ErrStreamCancelled = errors.New("stream cancelled")
	// ErrStreamTimeout ends a stream that outran its reply deadline.
	ErrStreamTimeout = errors.New("stream timed out")
)

// Event is one unit of a streamed reply. Exactly one terminal event
// (Done or Err set) ends a stream unless the consumer's context dies
// first.
type Event struct {
	Delta      string `json:"delta,omitempty"`
	Done       bool   `json:"done,omitempty"`
	TokenCount int64  `json:"tokenCount,omitempty"`
	Err        error  `json:"-"`
}

// Config tunes reply streaming. Zero values take defaults.
type Config struct {
	// Timeout is the wall-clock bound for one full reply.
	Timeout time.Duration

	// Buffer is the consumer channel capacity. A slow consumer stalls
	// the relay rather than growing memory.
	Buffer int

	// MaxTokens caps the reply length requested from the provider.
	MaxTokens int64

	// HistoryWindow is how many trailing messages ride in the prompt.
	HistoryWindow int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Buffer <= 0 {
		c.Buffer = 32
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	return c
}

// Responder streams persona replies for live sessions. Interactive
// replies call the provider exactly once: a failed stream surfaces to
// the client instead of burning retry budget mid-conversation.
type Responder struct {
	port  completion.Port
	store *session.Store
	cfg   Config
}

func NewResponder(port completion.Port, store *session.Store, cfg Config) *Responder {
	return &Responder{port: port, store: store, cfg: cfg.withDefaults()}
}

// StreamReply generates the active persona's answer to userText and
// relays it on the returned channel. The user message and the reply are
// committed together only after the provider finishes; cancelling ctx
// between chunks abandons the exchange with the session untouched.
func (r *Responder) StreamReply(ctx context.Context, sessionID, userText string) (<-chan Event, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, errors.New("empty message")
	}

	sess, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active, ok := sess.Persona(sess.CurrentPersonaID)
	if !ok {
		return nil, session.ErrPersonaNotInSession
	}

	// The exchange needs two message slots; reject before streaming
	// rather than after the client has watched the whole reply arrive.
	if sess.MessageCount+2 > sess.Config.MaxMessages {
		return nil, session.ErrSessionFull
	}

	history, err := r.store.History(ctx, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}

	params := completion.Params{
		System:      buildChatSystem(active),
		Messages:    buildChatMessages(history, userText, r.cfg.HistoryWindow),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: completion.DefaultTemperature,
	}

	streamCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)

	events, err := r.port.CompleteStream(streamCtx, params)
	if errors.Is(err, completion.ErrStreamingUnsupported) {
		return r.completeOnce(streamCtx, cancel, sessionID, userText, params)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	out := make(chan Event, r.cfg.Buffer)
	go func() {
		defer close(out)
		defer cancel()

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-streamCtx.Done():
				return false
			}
		}

		var full strings.Builder
		for ev := range events {
			switch {
			case ev.Err != nil:
				send(Event{Err: ev.Err})
				return
			case ev.Done:
				r.finish(streamCtx, sessionID, userText, full.String(), ev.Usage, send)
				return
			case ev.Text != "":
				full.WriteString(ev.Text)
				if !send(Event{Delta: ev.Text}) {
					return
				}
			}
		}
		// Provider channel closed without a terminal event: the stream
		// died mid-reply. Nothing is committed.
		send(Event{Err: interruptionError(streamCtx)})
	}()
	return out, nil
}

// interruptionError names why a stream stopped without finishing.
func interruptionError(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return ErrStreamTimeout
	case cause == nil, errors.Is(cause, context.Canceled):
		return ErrStreamCancelled
	default:
		return cause
	}
}

// completeOnce serves ports without streaming support: the whole reply
// arrives as a single delta, with identical commit semantics.
func (r *Responder) completeOnce(ctx context.Context, cancel context.CancelFunc, sessionID, userText string, params completion.Params) (<-chan Event, error) {
	out := make(chan Event, 2)
	go func() {
		defer close(out)
		defer cancel()

		result, err := r.port.Complete(ctx, params)
		if err != nil {
			out <- Event{Err: err}
			return
		}

		send := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(Event{Delta: result.Text}) {
			return
		}
		r.finish(ctx, sessionID, userText, result.Text, result.Usage, send)
	}()
	return out, nil
}

// finish commits the exchange and emits the terminal event. Commit runs
// on a detached context: once the reply is complete it belongs in the
// session even if the client has wandered off, but the trace link to the
// originating request is kept.
func (r *Responder) finish(ctx context.Context, sessionID, userText, replyText string, usage completion.Usage, send func(Event) bool) {
	if strings.TrimSpace(replyText) == "" {
		send(Event{Err: completion.ErrEmptyResponse})
		return
	}

	user, reply, err := r.store.AppendExchange(observability.DetachTraceContext(ctx), sessionID, userText, replyText, usage.OutputTokens)
	if err != nil {
		send(Event{Err: fmt.Errorf("commit exchange: %w", err)})
		return
	}
	send(Event{Done: true, TokenCount: user.Tokens + reply.Tokens})
}
