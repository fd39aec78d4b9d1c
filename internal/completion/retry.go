package completion

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Batch-path call policy. Interactive session replies call ports directly
// and never retry.
const (
	DefaultTemperature = 0.7
	MaxAttempts        = 3
	initialBackoff     = 1 * time.Second
	backoffMult        = 2
)

// Retry invokes fn up to MaxAttempts times with exponential backoff.
// It stops early on context cancellation or a non-retryable error.
// Parse failures count as retryable: regeneration usually fixes them.
func Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("attempt %d/%d: %w", attempt, MaxAttempts, err)

		var parseErr *ParseError
		if !IsRetryable(err) && !errors.As(err, &parseErr) {
			return lastErr
		}

		if attempt < MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= time.Duration(backoffMult)
		}
	}
	return lastErr
}
