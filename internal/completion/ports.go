package completion

import (
	"context"
	"fmt"
)

// ModelNames returns the valid model aliases in display order.
func ModelNames() []string {
	return []string{"haiku", "sonnet", "nova-lite", "gemini-flash", "gemini-pro"}
}

// NewPort builds the provider behind a model alias. An empty alias means
// haiku.
func NewPort(ctx context.Context, model string) (Port, error) {
	switch model {
	case "", "haiku", "sonnet":
		return NewAnthropicPort(model), nil
	case "nova-lite":
		return NewBedrockPort(ctx, model)
	case "gemini-flash", "gemini-pro":
		return NewGeminiPort(model), nil
	default:
		return nil, fmt.Errorf("unknown model %q (valid: haiku, sonnet, nova-lite, gemini-flash, gemini-pro)", model)
	}
}
