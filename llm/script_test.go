// ABOUTME: Tests for the scripted completer used to drive deterministic executions.
// ABOUTME: Covers FIFO ordering, prompt recording, and exhaustion errors.

package llm

import (
	"context"
	"testing"
)

func TestScriptCompleterReturnsResponsesInOrder(t *testing.T) {
	s := NewScriptCompleter("first", "second")
	ctx := context.Background()

	got, err := s.Complete(ctx, "p1")
	if err != nil || got.Text != "first" {
		t.Fatalf("first Complete() = %v, %v", got, err)
	}
	got, err = s.Complete(ctx, "p2")
	if err != nil || got.Text != "second" {
		t.Fatalf("second Complete() = %v, %v", got, err)
	}
}

func TestScriptCompleterErrorsWhenExhausted(t *testing.T) {
	s := NewScriptCompleter("only")
	ctx := context.Background()
	if _, err := s.Complete(ctx, "p1"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, err := s.Complete(ctx, "p2"); err == nil {
		t.Error("expected error after script exhaustion")
	}
}

func TestScriptCompleterRecordsPrompts(t *testing.T) {
	s := NewScriptCompleter("a", "b")
	ctx := context.Background()
	_, _ = s.Complete(ctx, "one")
	_, _ = s.Complete(ctx, "two")

	prompts := s.Prompts()
	if len(prompts) != 2 || prompts[0] != "one" || prompts[1] != "two" {
		t.Errorf("Prompts() = %v, want [one two]", prompts)
	}
}

func TestScriptCompleterPush(t *testing.T) {
	s := NewScriptCompleter()
	s.Push("late")
	got, err := s.Complete(context.Background(), "p")
	if err != nil || got.Text != "late" {
		t.Fatalf("Complete() = %v, %v", got, err)
	}
}
