// ABOUTME: QA/validation executor: structural, semantic, and hybrid checks of a produced artifact.
// ABOUTME: Hybrid short-circuits to "failed" when structural checks fail, skipping the semantic LLM call.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// QAExecutor runs qa (validation) nodes against a previously produced
// artifact. The outcome is "passed" or "failed" plus structured feedback for
// the remediation loop.
type QAExecutor struct{}

// Kind returns KindQA.
func (e *QAExecutor) Kind() NodeKind { return KindQA }

// Execute validates the artifact named by the node's qa_target_role.
func (e *QAExecutor) Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	role := node.QATargetRole
	if role == "" {
		return failedResult(fmt.Sprintf("qa node %q declares no qa_target_role", node.ID)), nil
	}
	ref, ok := sc.State.ProducedDocuments[role]
	if !ok {
		return failedResult(fmt.Sprintf("qa node %q: no document produced for role %q", node.ID, role)), nil
	}
	content, err := sc.Docs.Get(ctx, ref)
	if err != nil {
		return failedResult(fmt.Sprintf("qa node %q: fetch %q: %v", node.ID, ref, err)), nil
	}

	mode := node.QAMode
	if mode == "" {
		mode = QAModeStructural
	}

	if mode == QAModeStructural || mode == QAModeHybrid {
		checks, err := sc.Checker.Check(ctx, node.SchemaRef, content)
		if err != nil {
			return failedResult(fmt.Sprintf("structural check failed: %v", err)), nil
		}
		if len(checks) > 0 {
			// Cost control: hybrid never pays for the semantic call when
			// structural checks already failed.
			fb := checksToFeedback(node.SchemaRef, checks)
			return &NodeResult{Outcome: OutcomeFailed, Feedback: fb, FailureReason: fb.Summary}, nil
		}
		if mode == QAModeStructural {
			return &NodeResult{Outcome: OutcomePassed, Notes: "structural checks passed"}, nil
		}
	}

	return e.semantic(ctx, node, sc, content)
}

// semanticVerdict is the shape the semantic QA prompt asks the model for.
type semanticVerdict struct {
	Passed   bool     `json:"passed"`
	Summary  string   `json:"summary"`
	Findings []string `json:"findings"`
}

// semantic issues the LLM compliance evaluation and parses its verdict.
// An unparseable verdict counts as a failed check, not a crash.
func (e *QAExecutor) semantic(ctx context.Context, node *Node, sc *StepContext, content []byte) (*NodeResult, error) {
	extra := map[string]string{
		"artifact":   string(content),
		"qa_mode":    string(node.QAMode),
		"schema_ref": node.SchemaRef,
	}
	prompt, err := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
	if err != nil {
		return failedResult(fmt.Sprintf("qa prompt assembly failed: %v", err)), nil
	}
	completion, err := sc.Completer.Complete(ctx, prompt)
	if err != nil {
		return failedResult(fmt.Sprintf("semantic evaluation failed: %v", err)), nil
	}

	var verdict semanticVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(completion.Text)), &verdict); err != nil {
		return failedResult(fmt.Sprintf("semantic verdict unparseable: %v", err)), nil
	}

	if !verdict.Passed {
		fb := &QAFeedback{Summary: verdict.Summary, Findings: verdict.Findings}
		if fb.Summary == "" {
			fb.Summary = "semantic evaluation rejected the artifact"
		}
		return &NodeResult{Outcome: OutcomeFailed, Feedback: fb, FailureReason: fb.Summary}, nil
	}
	return &NodeResult{Outcome: OutcomePassed, Notes: "semantic evaluation passed"}, nil
}
