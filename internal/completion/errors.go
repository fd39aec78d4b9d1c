package completion

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimited indicates the provider refused the call due to rate
	// limits. Callers decide whether to back off or surface it.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrEmptyResponse indicates the provider returned no text.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrStreamingUnsupported indicates the provider has no streaming mode.
	ErrStreamingUnsupported = errors.New("streaming not supported by provider")
)

// ParseError reports model output that could not be decoded into the
// expected structure.
type ParseError struct {
	Msg string
	Raw string // truncated raw model output for debugging
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse model output: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("parse model output: %s", e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// retryableFragments are error-text markers for transient provider
// failures worth another attempt.
var retryableFragments = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"rate_limit",
	"overloaded",
	"timeout",
	"connection reset",
	"temporarily unavailable",
}

// IsRetryable reports whether the error looks like a transient provider
// failure. Rate limits count as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
