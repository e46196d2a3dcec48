// ABOUTME: Remediation loop: bounded retry of a generation step using structured QA feedback.
// ABOUTME: The attempt bound is policy-level, not per-node; exceeding it is a terminal failure.
package engine

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxAttempts is the policy-level remediation bound applied when the
// engine config leaves MaxAttempts zero. An attempt count of N allows the
// original invocation plus N-1 remediations.
const DefaultMaxAttempts = 3

// RemediationPolicy is the engine-wide retry policy for task/QA pairs.
type RemediationPolicy struct {
	MaxAttempts int
}

// normalized returns the policy with defaults applied.
func (p RemediationPolicy) normalized() RemediationPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// RemediationLoop wraps task re-invocation with bounded, feedback-augmented
// retry. It owns the retry_counts bookkeeping; no execution ever accumulates
// a count past the policy bound, even when the graph's failed edge loops
// back unconditionally.
type RemediationLoop struct {
	policy RemediationPolicy
}

// NewRemediationLoop creates a loop with the given policy.
func NewRemediationLoop(policy RemediationPolicy) *RemediationLoop {
	return &RemediationLoop{policy: policy.normalized()}
}

// MaxAttempts exposes the normalized bound.
func (l *RemediationLoop) MaxAttempts() int {
	return l.policy.MaxAttempts
}

// Admit records one remediation of targetNodeID and reports whether it is
// within budget. A false return means the bound is exhausted: the caller
// must treat the outcome as a terminal failure and route the fallback
// failure edge instead of looping.
func (l *RemediationLoop) Admit(state *ExecutionState, targetNodeID string) bool {
	if state.RetryCounts == nil {
		state.RetryCounts = map[string]int{}
	}
	if state.RetryCounts[targetNodeID]+1 >= l.policy.MaxAttempts {
		return false
	}
	state.RetryCounts[targetNodeID]++
	return true
}

// RecordFeedback stashes structured QA findings where the re-invoked task
// executor will pick them up. Raw exception text never travels this path.
func (l *RemediationLoop) RecordFeedback(state *ExecutionState, targetNodeID string, fb *QAFeedback) {
	if fb == nil {
		return
	}
	if state.Vars == nil {
		state.Vars = map[string]any{}
	}
	state.Vars[remediationVar(targetNodeID)] = FormatFeedback(fb)
}

// ClearFeedback drops stored feedback once the target node succeeds.
func (l *RemediationLoop) ClearFeedback(state *ExecutionState, targetNodeID string) {
	delete(state.Vars, remediationVar(targetNodeID))
}

// FeedbackFor returns previously recorded feedback text for a node, or "".
func FeedbackFor(state *ExecutionState, nodeID string) string {
	if state.Vars == nil {
		return ""
	}
	s, _ := state.Vars[remediationVar(nodeID)].(string)
	return s
}

func remediationVar(nodeID string) string {
	return "remediation." + nodeID
}

// FormatFeedback renders a QAFeedback payload as the structured error
// summary appended to the task context on re-invocation.
func FormatFeedback(fb *QAFeedback) string {
	var b strings.Builder
	b.WriteString("A previous attempt failed validation.\n")
	if fb.Summary != "" {
		b.WriteString("Summary: " + fb.Summary + "\n")
	}
	for _, f := range fb.Findings {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("Address every finding in the revised output.")
	return b.String()
}

// RunInline executes a requires_qa task node as a (task, structural-check)
// pair inside one step: generate, check against the node's contract, and on
// failure re-invoke with feedback until the bound is exhausted. Used for
// task nodes that carry their QA inline rather than as a separate qa node.
func (l *RemediationLoop) RunInline(ctx context.Context, task *TaskExecutor, node *Node, sc *StepContext) (*NodeResult, error) {
	var lastResult *NodeResult

	for attempt := 1; attempt <= l.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := task.Execute(ctx, node, sc)
		if err != nil {
			return nil, err
		}
		lastResult = result

		if result.Outcome != OutcomeFailed {
			l.ClearFeedback(sc.State, node.ID)
			return result, nil
		}

		if attempt == l.policy.MaxAttempts {
			break
		}
		sc.State.RetryCounts[node.ID]++
		fb := result.Feedback
		if fb == nil {
			fb = &QAFeedback{Summary: result.FailureReason}
		}
		l.RecordFeedback(sc.State, node.ID, fb)
	}

	return &NodeResult{
		Outcome:       OutcomeFailed,
		Feedback:      lastResult.Feedback,
		FailureReason: fmt.Sprintf("remediation exhausted after %d attempt(s): %s", l.policy.MaxAttempts, lastResult.FailureReason),
	}, nil
}
