// ABOUTME: Answerer abstraction for supplying operator input to suspended executions.
// ABOUTME: Provides Auto, Callback, and Queue implementations for automated runs and tests.
package engine

import (
	"context"
	"fmt"
	"sync"
)

// Answerer supplies resolution payloads for interrupts. Any frontend (CLI,
// web, programmatic) implements this; the orchestrator uses it to keep
// unattended runs moving.
type Answerer interface {
	Answer(ctx context.Context, intr *Interrupt) (string, error)
}

// AutoAnswerer always returns a fixed payload. Intended for testing and
// fully automated pipelines where no operator is available.
type AutoAnswerer struct {
	payload string
}

// NewAutoAnswerer creates an AutoAnswerer with the given payload.
func NewAutoAnswerer(payload string) *AutoAnswerer {
	return &AutoAnswerer{payload: payload}
}

// Answer returns the configured payload.
func (a *AutoAnswerer) Answer(ctx context.Context, intr *Interrupt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.payload, nil
}

// CallbackAnswerer delegates to a provided function. Useful for integrating
// an external system without a new type.
type CallbackAnswerer struct {
	fn func(ctx context.Context, intr *Interrupt) (string, error)
}

// NewCallbackAnswerer creates a CallbackAnswerer delegating to fn.
func NewCallbackAnswerer(fn func(ctx context.Context, intr *Interrupt) (string, error)) *CallbackAnswerer {
	return &CallbackAnswerer{fn: fn}
}

// Answer delegates to the callback.
func (c *CallbackAnswerer) Answer(ctx context.Context, intr *Interrupt) (string, error) {
	return c.fn(ctx, intr)
}

// QueueAnswerer returns answers from a pre-filled FIFO queue. Intended for
// deterministic tests and replay.
type QueueAnswerer struct {
	answers []string
	mu      sync.Mutex
}

// NewQueueAnswerer creates a QueueAnswerer pre-loaded with the given answers.
func NewQueueAnswerer(answers ...string) *QueueAnswerer {
	return &QueueAnswerer{answers: append([]string{}, answers...)}
}

// Answer dequeues the next answer, or errors when the queue is exhausted.
func (q *QueueAnswerer) Answer(ctx context.Context, intr *Interrupt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.answers) == 0 {
		return "", fmt.Errorf("answer queue exhausted: no answer for interrupt %s", intr.InterruptID)
	}
	answer := q.answers[0]
	q.answers = q.answers[1:]
	return answer, nil
}
