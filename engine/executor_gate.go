// ABOUTME: Clarification gate executor: generate questions, suspend for operator answers, merge.
// ABOUTME: Phases 1-2 communicate via the interrupt registry; only phase 3 reports a result to the outer graph.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// InterruptTypeClarification tags interrupts raised by clarification gates.
const InterruptTypeClarification = "clarification"

// GateExecutor runs clarification gate nodes. A gate is a fixed three-phase
// sub-protocol, not a single call:
//  1. question generation (LLM) producing an immutable question_set
//  2. operator entry: the execution suspends until answers arrive
//  3. merge (LLM or mechanical) producing clarifications.<gate_kind>
//
// Phase position is derived from the persisted GateProgress record, so a
// crash between phases resumes at the right one.
type GateExecutor struct{}

// Kind returns KindGate.
func (e *GateExecutor) Kind() NodeKind { return KindGate }

// Execute advances the gate by one phase.
func (e *GateExecutor) Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gp := sc.State.GateProgress[node.ID]
	if gp == nil || gp.QuestionSetRef == "" {
		return e.generateQuestions(ctx, node, sc)
	}

	answers := gp.Answers
	if answers == "" {
		answers = sc.Resolution
	}
	if answers == "" {
		// Paused executions are never stepped, so reaching here means the
		// caller resumed without a resolution payload.
		return nil, fmt.Errorf("gate %q has questions but no operator answers", node.ID)
	}
	return e.merge(ctx, node, sc, gp.QuestionSetRef, answers)
}

// generateQuestions is phase 1: produce the question_set artifact and request
// suspension. The question set is immutable once produced.
func (e *GateExecutor) generateQuestions(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	extra := map[string]string{"gate_kind": string(node.GateKind), "gate_phase": "questions"}
	prompt, err := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
	if err != nil {
		return failedResult(fmt.Sprintf("gate %q question prompt failed: %v", node.ID, err)), nil
	}
	completion, err := sc.Completer.Complete(ctx, prompt)
	if err != nil {
		return failedResult(fmt.Sprintf("gate %q question generation failed: %v", node.ID, err)), nil
	}

	role := "question_set." + string(node.GateKind)
	ref := DocumentRef(sc.State.ExecutionID, role)
	if err := sc.Docs.Put(ctx, ref, []byte(completion.Text)); err != nil {
		return nil, fmt.Errorf("store question set %q: %w", ref, err)
	}

	return &NodeResult{
		Outcome:      OutcomeQuestionsReady,
		ArtifactRole: role,
		ArtifactRef:  ref,
		GateUpdate:   &GateProgress{QuestionSetRef: ref},
		Interrupt: &InterruptRequest{
			Type:    InterruptTypeClarification,
			Payload: completion.Text,
		},
		Notes: fmt.Sprintf("gate %s: questions ready, awaiting operator", node.GateKind),
	}, nil
}

// merge is phase 3: combine the question set and the captured answers into
// the gate's clarification artifact. The merge is LLM-backed or mechanical
// per gate instance; mechanical merges are deterministic.
func (e *GateExecutor) merge(ctx context.Context, node *Node, sc *StepContext, questionSetRef, answers string) (*NodeResult, error) {
	questions, err := sc.Docs.Get(ctx, questionSetRef)
	if err != nil {
		return failedResult(fmt.Sprintf("gate %q: fetch question set: %v", node.ID, err)), nil
	}

	var merged []byte
	switch node.Merge {
	case MergeMechanical:
		merged, err = mechanicalMerge(node.GateKind, questions, answers)
		if err != nil {
			return failedResult(fmt.Sprintf("gate %q mechanical merge failed: %v", node.ID, err)), nil
		}
	default: // MergeLLM and unset
		extra := map[string]string{
			"gate_kind":    string(node.GateKind),
			"gate_phase":   "merge",
			"question_set": string(questions),
			"answers":      answers,
		}
		prompt, perr := sc.Prompts.Render(ctx, node.TaskRef, sc.State, extra)
		if perr != nil {
			return failedResult(fmt.Sprintf("gate %q merge prompt failed: %v", node.ID, perr)), nil
		}
		completion, cerr := sc.Completer.Complete(ctx, prompt)
		if cerr != nil {
			return failedResult(fmt.Sprintf("gate %q merge failed: %v", node.ID, cerr)), nil
		}
		merged = []byte(completion.Text)
	}

	// Each gate kind maps to a fixed output slot name.
	role := "clarifications." + string(node.GateKind)
	ref := DocumentRef(sc.State.ExecutionID, role)
	if err := sc.Docs.Put(ctx, ref, merged); err != nil {
		return nil, fmt.Errorf("store clarifications %q: %w", ref, err)
	}

	return &NodeResult{
		Outcome:      OutcomeSuccess,
		ArtifactRole: role,
		ArtifactRef:  ref,
		GateUpdate:   &GateProgress{QuestionSetRef: questionSetRef, Answers: answers},
		Notes:        fmt.Sprintf("gate %s: clarifications merged", node.GateKind),
	}, nil
}

// mechanicalMerge pairs questions with answers without an LLM call.
func mechanicalMerge(kind GateKind, questions []byte, answers string) ([]byte, error) {
	doc := map[string]any{
		"gate_kind":    string(kind),
		"question_set": string(questions),
		"answers":      answers,
	}
	merged, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return merged, nil
}
