// ABOUTME: Intake classification executor: classify the request, confirm with the operator, extract.
// ABOUTME: A bounded gate variant used only at workflow entry; its product is a routing classification.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// InterruptTypeIntakeConfirmation tags interrupts raised by intake gates.
const InterruptTypeIntakeConfirmation = "intake_confirmation"

// IntakeVarClassification is the condition-visible var edges route on.
const IntakeVarClassification = "intake.classification"

// IntakeExecutor runs intake_gate nodes: initial classification, operator
// confirmation, then structured extraction.
type IntakeExecutor struct{}

// Kind returns KindIntakeGate.
func (e *IntakeExecutor) Kind() NodeKind { return KindIntakeGate }

// Execute advances the intake protocol by one phase.
func (e *IntakeExecutor) Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gp := sc.State.GateProgress[node.ID]
	if gp == nil || gp.Classification == "" {
		return e.classify(ctx, node, sc)
	}
	if !gp.Confirmed {
		return e.extract(ctx, node, sc, gp.Classification, sc.Resolution)
	}
	return nil, fmt.Errorf("intake gate %q already completed", node.ID)
}

// classify is the initial LLM pass. The proposed classification suspends the
// execution for operator confirmation.
func (e *IntakeExecutor) classify(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	extra := map[string]string{"intake_phase": "classify"}
	prompt, err := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
	if err != nil {
		return failedResult(fmt.Sprintf("intake %q classify prompt failed: %v", node.ID, err)), nil
	}
	completion, err := sc.Completer.Complete(ctx, prompt)
	if err != nil {
		return failedResult(fmt.Sprintf("intake %q classification failed: %v", node.ID, err)), nil
	}

	classification := firstLine(completion.Text)
	if classification == "" {
		return failedResult(fmt.Sprintf("intake %q produced an empty classification", node.ID)), nil
	}

	return &NodeResult{
		Outcome:    OutcomeQuestionsReady,
		GateUpdate: &GateProgress{Classification: classification},
		Interrupt: &InterruptRequest{
			Type:    InterruptTypeIntakeConfirmation,
			Payload: classification,
		},
		Notes: "intake: classification proposed, awaiting confirmation",
	}, nil
}

// extract runs after confirmation. A non-empty resolution payload overrides
// the proposed classification; either way the confirmed value drives a final
// structured-extraction pass and becomes routable context.
func (e *IntakeExecutor) extract(ctx context.Context, node *Node, sc *StepContext, proposed, resolution string) (*NodeResult, error) {
	classification := proposed
	if override := firstLine(resolution); override != "" {
		classification = override
	}

	extra := map[string]string{
		"intake_phase":   "extract",
		"classification": classification,
	}
	prompt, err := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
	if err != nil {
		return failedResult(fmt.Sprintf("intake %q extraction prompt failed: %v", node.ID, err)), nil
	}
	completion, err := sc.Completer.Complete(ctx, prompt)
	if err != nil {
		return failedResult(fmt.Sprintf("intake %q extraction failed: %v", node.ID, err)), nil
	}

	payload, err := json.MarshalIndent(map[string]any{
		"classification": classification,
		"extraction":     completion.Text,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode intake result: %w", err)
	}

	role := "intake_classification"
	ref := DocumentRef(sc.State.ExecutionID, role)
	if err := sc.Docs.Put(ctx, ref, payload); err != nil {
		return nil, fmt.Errorf("store intake classification %q: %w", ref, err)
	}

	return &NodeResult{
		Outcome:      OutcomeSuccess,
		ArtifactRole: role,
		ArtifactRef:  ref,
		GateUpdate:   &GateProgress{Classification: classification, Confirmed: true},
		VarUpdates:   map[string]any{IntakeVarClassification: classification},
		Notes:        "intake: classification " + classification,
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
