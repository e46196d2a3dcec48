// ABOUTME: Retry logic with exponential backoff and jitter for model provider calls.
// ABOUTME: RetryPolicy configures the schedule; RetryingCompleter wraps any Completer with it.

package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// RetryPolicy configures retry behavior for provider calls.
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts (not counting the initial call).
	MaxRetries int

	// BaseDelay is the initial delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay is the upper bound on the delay between retries.
	MaxDelay time.Duration

	// BackoffMultiplier controls exponential growth of the delay between retries.
	BackoffMultiplier float64

	// Jitter randomizes the delay to avoid thundering herd problems.
	Jitter bool

	// OnRetry is an optional callback invoked before each retry attempt.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns 2 retries, 1s base delay, 60s max delay,
// 2x backoff, jitter enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CalculateDelay computes the delay for a retry attempt using exponential
// backoff, capped at MaxDelay. With Jitter the delay is randomized between
// zero and the calculated value (full jitter).
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	delayFloat := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delayFloat > float64(p.MaxDelay) {
		delayFloat = float64(p.MaxDelay)
	}
	delay := time.Duration(delayFloat)
	if p.Jitter {
		delay = time.Duration(rand.Int63n(int64(delay) + 1))
	}
	return delay
}

// ShouldRetry reports whether the operation should be retried. Only errors
// exposing IsRetryable() true are retried; everything else fails fast.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxRetries {
		return false
	}
	type retryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return false
}

// Retry executes fn under the policy. A RetryAfter hint on the error raises
// the delay floor. The context cancels waits between attempts.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !policy.ShouldRetry(lastErr, attempt) {
			return lastErr
		}

		delay := policy.CalculateDelay(attempt)
		if pe, ok := extractProviderError(lastErr); ok && pe.RetryAfter != nil && *pe.RetryAfter > delay {
			delay = *pe.RetryAfter
		}
		if policy.OnRetry != nil {
			policy.OnRetry(lastErr, attempt, delay)
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
}

// RetryingCompleter wraps a Completer with a RetryPolicy.
type RetryingCompleter struct {
	inner  engine.Completer
	policy RetryPolicy
}

// NewRetryingCompleter wraps inner with the given policy.
func NewRetryingCompleter(inner engine.Completer, policy RetryPolicy) *RetryingCompleter {
	return &RetryingCompleter{inner: inner, policy: policy}
}

// Complete calls the wrapped completer, retrying retryable failures.
func (r *RetryingCompleter) Complete(ctx context.Context, prompt string) (*engine.Completion, error) {
	var result *engine.Completion
	err := Retry(ctx, r.policy, func() error {
		var callErr error
		result, callErr = r.inner.Complete(ctx, prompt)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ engine.Completer = (*RetryingCompleter)(nil)
