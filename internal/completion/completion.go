// Package completion abstracts text-generation model providers behind a
// single port so the dialogue and session layers never touch vendor SDKs.
package completion

import "context"

// Message roles on the completion wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior turn of model input.
type Message struct {
	Role    string
	Content string
}

// Params tunes a single completion call.
type Params struct {
	System      string
	Messages    []Message
	MaxTokens   int64
	Temperature float64
}

// Usage carries provider-reported token counts. Zero values mean the
// provider did not report usage.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Result is a completed response.
type Result struct {
	Text  string
	Usage Usage
}

// StreamEvent is one item on a streaming completion channel. Exactly one
// terminal event (Done or Err set) closes every stream.
type StreamEvent struct {
	Text  string
	Done  bool
	Usage Usage // populated on the Done event when the provider reports it
	Err   error
}

// Port is a text-completion model. Complete blocks for the full response;
// CompleteStream returns a channel that yields incremental text and is
// closed after the terminal event.
type Port interface {
	Complete(ctx context.Context, p Params) (Result, error)
	CompleteStream(ctx context.Context, p Params) (<-chan StreamEvent, error)
}

// EstimateTokens approximates a token count for text when the provider
// reports no usage. Four characters per token is a workable average for
// English prose across the models this package fronts.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	n := int64(len(text)) / 4
	if n == 0 {
		n = 1
	}
	return n
}
