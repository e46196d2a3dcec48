// ABOUTME: Tests for retry policy scheduling and the retrying completer wrapper.
// ABOUTME: Covers retryability classification, delay capping, and exhaustion behavior.

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

func TestShouldRetryNilError(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.ShouldRetry(nil, 0) {
		t.Error("nil error should not be retried")
	}
}

func TestShouldRetryRespectsMaxRetries(t *testing.T) {
	p := DefaultRetryPolicy()
	err := &ProviderError{Provider: "test", Message: "rate limited", Retryable: true}
	if !p.ShouldRetry(err, 0) {
		t.Error("retryable error under the limit should be retried")
	}
	if p.ShouldRetry(err, p.MaxRetries) {
		t.Error("error at MaxRetries should not be retried")
	}
}

func TestShouldRetryNonRetryableError(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.ShouldRetry(errors.New("plain error"), 0) {
		t.Error("plain errors should not be retried")
	}
	pe := &ProviderError{Provider: "test", Message: "bad request", Retryable: false}
	if p.ShouldRetry(pe, 0) {
		t.Error("non-retryable provider error should not be retried")
	}
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:         time.Second,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 10.0,
	}
	if got := p.CalculateDelay(3); got != 5*time.Second {
		t.Errorf("delay = %v, want cap %v", got, 5*time.Second)
	}
}

func TestCalculateDelayGrowsExponentially(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Minute,
		BackoffMultiplier: 2.0,
	}
	if got := p.CalculateDelay(0); got != 100*time.Millisecond {
		t.Errorf("attempt 0 delay = %v, want 100ms", got)
	}
	if got := p.CalculateDelay(2); got != 400*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want 400ms", got)
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1.0}
	calls := 0
	err := Retry(context.Background(), p, func() error {
		calls++
		if calls < 3 {
			return &ProviderError{Provider: "test", Message: "overloaded", Retryable: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryReturnsLastErrorOnExhaustion(t *testing.T) {
	p := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1.0}
	want := &ProviderError{Provider: "test", Message: "still down", Retryable: true}
	calls := 0
	err := Retry(context.Background(), p, func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Retry() error = %v, want %v", err, want)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (initial + 1 retry)", calls)
	}
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	p := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1.0}
	hint := 20 * time.Millisecond
	var observed time.Duration
	p.OnRetry = func(err error, attempt int, delay time.Duration) { observed = delay }
	_ = Retry(context.Background(), p, func() error {
		return &ProviderError{Provider: "test", Message: "slow down", Retryable: true, RetryAfter: &hint}
	})
	if observed < hint {
		t.Errorf("delay = %v, want at least RetryAfter hint %v", observed, hint)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, BaseDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 1.0}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, p, func() error {
		return &ProviderError{Provider: "test", Message: "down", Retryable: true}
	})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("Retry() error = %v, want the last provider error", err)
	}
}

func TestRetryingCompleterPassesThroughSuccess(t *testing.T) {
	script := NewScriptCompleter("hello")
	rc := NewRetryingCompleter(script, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1.0})
	got, err := rc.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("Text = %q, want %q", got.Text, "hello")
	}
}

func TestRetryingCompleterRetriesRetryableFailures(t *testing.T) {
	calls := 0
	inner := completerFunc(func(ctx context.Context, prompt string) (*engine.Completion, error) {
		calls++
		if calls == 1 {
			return nil, &ProviderError{Provider: "test", Message: "overloaded", Retryable: true}
		}
		return &engine.Completion{Text: "recovered"}, nil
	})
	rc := NewRetryingCompleter(inner, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1.0})
	got, err := rc.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Text != "recovered" || calls != 2 {
		t.Errorf("Text = %q calls = %d, want recovered after 2 calls", got.Text, calls)
	}
}

type completerFunc func(ctx context.Context, prompt string) (*engine.Completion, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (*engine.Completion, error) {
	return f(ctx, prompt)
}

func TestRetryableStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		if got := retryableStatus(tc.code); got != tc.want {
			t.Errorf("retryableStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
