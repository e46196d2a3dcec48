// ABOUTME: Task/generation executor: renders a prompt, invokes the LLM, and gates the output on its contract.
// ABOUTME: Transport failures and malformed output both report outcome "failed"; neither crashes the step.
package engine

import (
	"context"
	"fmt"
)

// TaskExecutor runs task (generation) nodes.
type TaskExecutor struct{}

// Kind returns KindTask.
func (e *TaskExecutor) Kind() NodeKind { return KindTask }

// Execute renders the node's task reference into a completion request, calls
// the LLM collaborator, parses the response against the declared output
// contract, and stores the produced document. Any failure along the way is
// outcome "failed" with a summary; callers must not distinguish "LLM down"
// from "bad output" here, both feed the remediation loop identically.
func (e *TaskExecutor) Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	extra := map[string]string{}
	if fb := FeedbackFor(sc.State, node.ID); fb != "" {
		extra["remediation_feedback"] = fb
	}

	prompt, err := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
	if err != nil {
		return failedResult(fmt.Sprintf("prompt assembly for %q failed: %v", node.TaskRef, err)), nil
	}

	completion, err := sc.Completer.Complete(ctx, prompt)
	if err != nil {
		return failedResult(fmt.Sprintf("generation failed: %v", err)), nil
	}

	content := []byte(completion.Text)
	if node.SchemaRef != "" {
		checks, err := sc.Checker.Check(ctx, node.SchemaRef, content)
		if err != nil {
			return failedResult(fmt.Sprintf("contract check for %q failed: %v", node.SchemaRef, err)), nil
		}
		if len(checks) > 0 {
			fb := checksToFeedback(node.SchemaRef, checks)
			return &NodeResult{
				Outcome:       OutcomeFailed,
				Feedback:      fb,
				FailureReason: fb.Summary,
			}, nil
		}
	}

	role := node.DocumentRole
	if role == "" {
		role = node.ID
	}
	ref := DocumentRef(sc.State.ExecutionID, role)
	if err := sc.Docs.Put(ctx, ref, content); err != nil {
		// A dead document store is a persistence failure, not a bad output.
		return nil, fmt.Errorf("store document %q: %w", ref, err)
	}

	return &NodeResult{
		Outcome:      OutcomeSuccess,
		ArtifactRole: role,
		ArtifactRef:  ref,
		Notes:        fmt.Sprintf("produced %s (%d tokens out)", role, completion.Usage.OutputTokens),
	}, nil
}

// failedResult builds a "failed" NodeResult carrying the summary both as the
// failure reason and as remediation feedback.
func failedResult(summary string) *NodeResult {
	return &NodeResult{
		Outcome:       OutcomeFailed,
		FailureReason: summary,
		Feedback:      &QAFeedback{Summary: summary},
	}
}

// checksToFeedback converts structural findings into remediation feedback.
func checksToFeedback(schemaRef string, checks []SchemaCheck) *QAFeedback {
	fb := &QAFeedback{
		Summary: fmt.Sprintf("output violates contract %q (%d finding(s))", schemaRef, len(checks)),
	}
	for _, c := range checks {
		if c.Path != "" {
			fb.Findings = append(fb.Findings, c.Path+": "+c.Message)
		} else {
			fb.Findings = append(fb.Findings, c.Message)
		}
	}
	return fb
}

// DocumentRef derives the document store ref for an execution's document
// role. Deterministic so remediation supersedes the prior attempt in place.
func DocumentRef(executionID, role string) string {
	return executionID + "/" + role
}
