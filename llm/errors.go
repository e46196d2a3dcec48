// ABOUTME: Structured error types for model provider calls with retryability metadata.
// ABOUTME: Rate limits and transient server errors are retryable; auth and bad requests are not.

package llm

import (
	"errors"
	"fmt"
	"time"
)

// ProviderError is an error returned by a model provider's API. StatusCode is
// the HTTP status when known; RetryAfter carries the provider's backoff hint.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter *time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether the call may be retried.
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

// retryableStatus classifies HTTP statuses from OpenAI-compatible providers.
func retryableStatus(code int) bool {
	switch {
	case code == 408 || code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// extractProviderError unwraps err looking for a ProviderError.
func extractProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
