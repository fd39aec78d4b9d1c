package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

var novaModels = map[string]string{
	"nova-lite": "us.amazon.nova-2-lite-v1:0",
}

// BedrockPort fronts Amazon Bedrock's Converse API.
type BedrockPort struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockPort builds a port for a model alias ("nova-lite"), loading
// AWS credentials from the default chain.
func NewBedrockPort(ctx context.Context, model string) (*BedrockPort, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	modelID := novaModels[model]
	if modelID == "" {
		modelID = novaModels["nova-lite"]
	}

	return &BedrockPort{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  modelID,
	}, nil
}

func (p *BedrockPort) converseMessages(cp Params) []types.Message {
	msgs := make([]types.Message, 0, len(cp.Messages))
	for _, m := range cp.Messages {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		msgs = append(msgs, types.Message{
			Role: role,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: m.Content},
			},
		})
	}
	return msgs
}

func (p *BedrockPort) inferenceConfig(cp Params) *types.InferenceConfiguration {
	return &types.InferenceConfiguration{
		MaxTokens:   aws.Int32(int32(cp.MaxTokens)),
		Temperature: aws.Float32(float32(cp.Temperature)),
	}
}

func (p *BedrockPort) systemBlocks(cp Params) []types.SystemContentBlock {
	if cp.System == "" {
		return nil
	}
	return []types.SystemContentBlock{
		&types.SystemContentBlockMemberText{Value: cp.System},
	}
}

func (p *BedrockPort) Complete(ctx context.Context, cp Params) (Result, error) {
	resp, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.model),
		System:          p.systemBlocks(cp),
		Messages:        p.converseMessages(cp),
		InferenceConfig: p.inferenceConfig(cp),
	})
	if err != nil {
		return Result{}, wrapBedrockErr(err)
	}

	text := extractConverseText(resp)
	if text == "" {
		return Result{}, ErrEmptyResponse
	}

	result := Result{Text: text}
	if resp.Usage != nil {
		if resp.Usage.InputTokens != nil {
			result.Usage.InputTokens = int64(*resp.Usage.InputTokens)
		}
		if resp.Usage.OutputTokens != nil {
			result.Usage.OutputTokens = int64(*resp.Usage.OutputTokens)
		}
	}
	return result, nil
}

// CompleteStream relays ConverseStream text deltas. The returned channel
// closes after a terminal Done or Err event, or without one when ctx is
// cancelled mid-stream.
func (p *BedrockPort) CompleteStream(ctx context.Context, cp Params) (<-chan StreamEvent, error) {
	resp, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.model),
		System:          p.systemBlocks(cp),
		Messages:        p.converseMessages(cp),
		InferenceConfig: p.inferenceConfig(cp),
	})
	if err != nil {
		return nil, wrapBedrockErr(err)
	}

	out := make(chan StreamEvent, streamBuffer)

	go func() {
		stream := resp.GetStream()
		defer close(out)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage Usage
		for event := range stream.Events() {
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
					if !send(StreamEvent{Text: delta.Value}) {
						return
					}
				}
			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					if ev.Value.Usage.InputTokens != nil {
						usage.InputTokens = int64(*ev.Value.Usage.InputTokens)
					}
					if ev.Value.Usage.OutputTokens != nil {
						usage.OutputTokens = int64(*ev.Value.Usage.OutputTokens)
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			send(StreamEvent{Err: wrapBedrockErr(err)})
			return
		}
		send(StreamEvent{Done: true, Usage: usage})
	}()

	return out, nil
}

func extractConverseText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}

func wrapBedrockErr(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("bedrock converse: %w", err)
}
