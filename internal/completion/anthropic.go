package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

// streamBuffer bounds every provider stream channel so a slow consumer
// applies backpressure instead of growing memory.
const streamBuffer = 32

// AnthropicPort fronts the Anthropic Messages API. Credentials come from
// the environment (ANTHROPIC_API_KEY), resolved by the SDK.
type AnthropicPort struct {
	client anthropic.Client
	model  string
}

// NewAnthropicPort builds a port for a model alias ("haiku", "sonnet").
// Unknown aliases fall back to haiku.
func NewAnthropicPort(model string) *AnthropicPort {
	modelID := claudeModels[model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}
	return &AnthropicPort{client: anthropic.NewClient(), model: modelID}
}

func (p *AnthropicPort) newParams(cp Params) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(cp.Messages))
	for _, m := range cp.Messages {
		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   cp.MaxTokens,
		Temperature: anthropic.Float(cp.Temperature),
		Messages:    msgs,
	}
	if cp.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: cp.System}}
	}
	return params
}

func (p *AnthropicPort) Complete(ctx context.Context, cp Params) (Result, error) {
	message, err := p.client.Messages.New(ctx, p.newParams(cp))
	if err != nil {
		return Result{}, wrapAnthropicErr(err)
	}

	text := extractAnthropicText(message)
	if text == "" {
		return Result{}, ErrEmptyResponse
	}

	return Result{
		Text: text,
		Usage: Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}, nil
}

// CompleteStream relays text deltas as they arrive. The returned channel
// closes after a terminal Done or Err event, or without one when ctx is
// cancelled mid-stream.
func (p *AnthropicPort) CompleteStream(ctx context.Context, cp Params) (<-chan StreamEvent, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.newParams(cp))
	out := make(chan StreamEvent, streamBuffer)

	go func() {
		defer close(out)

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage Usage
		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.InputTokens = ev.Message.Usage.InputTokens
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !send(StreamEvent{Text: delta.Text}) {
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		}
		if err := stream.Err(); err != nil {
			send(StreamEvent{Err: wrapAnthropicErr(err)})
			return
		}
		send(StreamEvent{Done: true, Usage: usage})
	}()

	return out, nil
}

func extractAnthropicText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}

func wrapAnthropicErr(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic api: %w", err)
}
