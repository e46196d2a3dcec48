// ABOUTME: Tests for the bounded remediation loop: admission arithmetic, feedback plumbing, inline retry.
// ABOUTME: The bound counts total attempts, so MaxAttempts=N allows N-1 remediations.
package engine

import (
	"context"
	"strings"
	"testing"
)

func TestAdmitEnforcesAttemptBound(t *testing.T) {
	loop := NewRemediationLoop(RemediationPolicy{MaxAttempts: 2})
	state := NewExecutionState("g", "T")

	if !loop.Admit(state, "T") {
		t.Fatal("first remediation should be admitted")
	}
	if state.RetryCounts["T"] != 1 {
		t.Errorf("retry count = %d, want 1", state.RetryCounts["T"])
	}
	if loop.Admit(state, "T") {
		t.Error("second remediation exceeds MaxAttempts=2 and must be rejected")
	}
	if state.RetryCounts["T"] != 1 {
		t.Errorf("rejected admission must not bump the count, got %d", state.RetryCounts["T"])
	}
}

func TestAdmitDefaultsToThreeAttempts(t *testing.T) {
	loop := NewRemediationLoop(RemediationPolicy{})
	if loop.MaxAttempts() != DefaultMaxAttempts {
		t.Fatalf("MaxAttempts() = %d, want %d", loop.MaxAttempts(), DefaultMaxAttempts)
	}
	state := NewExecutionState("g", "T")
	admitted := 0
	for loop.Admit(state, "T") {
		admitted++
		if admitted > 10 {
			t.Fatal("Admit never saturated")
		}
	}
	if admitted != DefaultMaxAttempts-1 {
		t.Errorf("admitted %d remediations, want %d", admitted, DefaultMaxAttempts-1)
	}
}

func TestAdmitCountsPerNode(t *testing.T) {
	loop := NewRemediationLoop(RemediationPolicy{MaxAttempts: 2})
	state := NewExecutionState("g", "T")
	if !loop.Admit(state, "T") || !loop.Admit(state, "U") {
		t.Error("distinct nodes keep independent budgets")
	}
}

func TestFeedbackRecordAndClear(t *testing.T) {
	loop := NewRemediationLoop(RemediationPolicy{})
	state := NewExecutionState("g", "T")
	fb := &QAFeedback{Summary: "missing sections", Findings: []string{"title absent", "body empty"}}

	loop.RecordFeedback(state, "T", fb)
	got := FeedbackFor(state, "T")
	if !strings.Contains(got, "missing sections") || !strings.Contains(got, "title absent") {
		t.Errorf("FeedbackFor() = %q, want summary and findings included", got)
	}
	if FeedbackFor(state, "other") != "" {
		t.Error("feedback must be scoped to its node")
	}

	loop.ClearFeedback(state, "T")
	if FeedbackFor(state, "T") != "" {
		t.Error("ClearFeedback should remove stored feedback")
	}
}

func TestFormatFeedbackStructure(t *testing.T) {
	text := FormatFeedback(&QAFeedback{Summary: "two findings", Findings: []string{"a", "b"}})
	for _, want := range []string{"Summary: two findings", "- a", "- b"} {
		if !strings.Contains(text, want) {
			t.Errorf("FormatFeedback missing %q in:\n%s", want, text)
		}
	}
}

func inlineStepContext(completer *scriptedCompleter, checker *queueChecker) (*StepContext, *MemoryStore) {
	store := NewMemoryStore()
	return &StepContext{
		State:     NewExecutionState("g", "T"),
		Docs:      store,
		Prompts:   echoPrompts{},
		Completer: completer,
		Checker:   checker,
	}, store
}

func TestRunInlineRetriesWithFeedback(t *testing.T) {
	completer := newScriptedCompleter(`{"bad": true}`, `{"title": "ok"}`)
	checker := newQueueChecker(
		[]SchemaCheck{{Path: "title", Message: "required field missing"}},
		nil,
	)
	sc, store := inlineStepContext(completer, checker)
	node := &Node{ID: "T", Kind: KindTask, TaskRef: "draft_report", DocumentRole: "report", SchemaRef: "report.v1", RequiresQA: true}

	loop := NewRemediationLoop(RemediationPolicy{MaxAttempts: 3})
	result, err := loop.RunInline(context.Background(), &TaskExecutor{}, node, sc)
	if err != nil {
		t.Fatalf("RunInline() error = %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Fatalf("outcome = %q, want success (reason: %s)", result.Outcome, result.FailureReason)
	}
	if sc.State.RetryCounts["T"] != 1 {
		t.Errorf("retry count = %d, want 1", sc.State.RetryCounts["T"])
	}

	prompts := completer.allPrompts()
	if len(prompts) != 2 {
		t.Fatalf("got %d prompts, want 2", len(prompts))
	}
	if strings.Contains(prompts[0], "remediation_feedback") {
		t.Error("first attempt must not carry feedback")
	}
	if !strings.Contains(prompts[1], "required field missing") {
		t.Errorf("retry prompt missing structured findings:\n%s", prompts[1])
	}

	if FeedbackFor(sc.State, "T") != "" {
		t.Error("feedback should be cleared after success")
	}
	if _, err := store.Get(context.Background(), DocumentRef(sc.State.ExecutionID, "report")); err != nil {
		t.Errorf("produced document not stored: %v", err)
	}
}

func TestRunInlineExhaustsBound(t *testing.T) {
	completer := newScriptedCompleter(`{}`, `{}`)
	checker := newQueueChecker(
		[]SchemaCheck{{Message: "still wrong"}},
		[]SchemaCheck{{Message: "still wrong"}},
	)
	sc, _ := inlineStepContext(completer, checker)
	node := &Node{ID: "T", Kind: KindTask, TaskRef: "draft_report", SchemaRef: "report.v1", RequiresQA: true}

	loop := NewRemediationLoop(RemediationPolicy{MaxAttempts: 2})
	result, err := loop.RunInline(context.Background(), &TaskExecutor{}, node, sc)
	if err != nil {
		t.Fatalf("RunInline() error = %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", result.Outcome)
	}
	if !strings.Contains(result.FailureReason, "remediation exhausted after 2 attempt(s)") {
		t.Errorf("FailureReason = %q", result.FailureReason)
	}
	if len(completer.allPrompts()) != 2 {
		t.Errorf("got %d attempts, want exactly the bound", len(completer.allPrompts()))
	}
}

func TestRunInlineStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc, _ := inlineStepContext(newScriptedCompleter(`{}`), newQueueChecker())
	node := &Node{ID: "T", Kind: KindTask, TaskRef: "draft_report"}

	loop := NewRemediationLoop(RemediationPolicy{})
	if _, err := loop.RunInline(ctx, &TaskExecutor{}, node, sc); err == nil {
		t.Error("cancelled context should abort the loop with an error")
	}
}
