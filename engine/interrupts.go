// ABOUTME: Interrupt registry: tracks suspended executions awaiting external input.
// ABOUTME: Suspend creates exactly one interrupt per execution; resolve happens exactly once.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InterruptRegistry builds and resolves interrupt records. It is the only
// path by which an external caller writes to a suspended execution.
type InterruptRegistry struct {
	interrupts InterruptStore
	states     StateStore
}

// NewInterruptRegistry creates a registry over the given stores.
func NewInterruptRegistry(interrupts InterruptStore, states StateStore) *InterruptRegistry {
	return &InterruptRegistry{interrupts: interrupts, states: states}
}

// Suspend creates one interrupt for the execution, flips the state to
// paused_for_input, and persists both. The caller (the plan executor loop)
// stops advancing the execution afterwards. An execution has at most one
// outstanding interrupt; suspending while one is pending is a protocol bug.
func (r *InterruptRegistry) Suspend(ctx context.Context, state *ExecutionState, nodeID, interruptType, payload string) (string, error) {
	if state.PendingInterruptID != "" {
		return "", fmt.Errorf("execution %s already has outstanding interrupt %s", state.ExecutionID, state.PendingInterruptID)
	}

	intr := &Interrupt{
		SchemaVersion: StateSchemaVersion,
		InterruptID:   uuid.NewString(),
		ExecutionID:   state.ExecutionID,
		NodeID:        nodeID,
		Type:          interruptType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.interrupts.SaveInterrupt(ctx, intr); err != nil {
		return "", fmt.Errorf("save interrupt: %w", err)
	}

	state.PendingInterruptID = intr.InterruptID
	state.Status = StatusPausedForInput
	state.UpdatedAt = time.Now().UTC()
	if err := r.states.Save(ctx, state); err != nil {
		return "", fmt.Errorf("persist suspended state: %w", err)
	}
	return intr.InterruptID, nil
}

// Resolve marks the interrupt resolved with the given payload and flips the
// execution back to running. Returns ErrInterruptNotFound or
// ErrInterruptResolved without touching execution state. The resolved
// interrupt is returned so the caller can resume the right execution.
func (r *InterruptRegistry) Resolve(ctx context.Context, interruptID, resolutionPayload string) (*Interrupt, error) {
	intr, err := r.interrupts.LoadInterrupt(ctx, interruptID)
	if err != nil {
		return nil, err
	}
	if intr.Resolved() {
		return nil, fmt.Errorf("%w: %s", ErrInterruptResolved, interruptID)
	}

	state, err := r.states.Load(ctx, intr.ExecutionID)
	if err != nil {
		return nil, err
	}
	if state.PendingInterruptID != interruptID {
		return nil, fmt.Errorf("%w: execution %s is not waiting on %s", ErrExecutionNotPaused, intr.ExecutionID, interruptID)
	}

	now := time.Now().UTC()
	intr.ResolvedAt = &now
	intr.ResolutionPayload = resolutionPayload
	if err := r.interrupts.SaveInterrupt(ctx, intr); err != nil {
		return nil, fmt.Errorf("save resolved interrupt: %w", err)
	}

	state.PendingInterruptID = ""
	state.Status = StatusRunning
	state.UpdatedAt = now
	if err := r.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("persist resumed state: %w", err)
	}
	return intr, nil
}

// Pending returns the unresolved interrupts for an execution. By invariant
// the result has at most one element.
func (r *InterruptRegistry) Pending(ctx context.Context, executionID string) ([]*Interrupt, error) {
	all, err := r.interrupts.ListInterrupts(ctx, executionID)
	if err != nil {
		return nil, err
	}
	var pending []*Interrupt
	for _, intr := range all {
		if !intr.Resolved() {
			pending = append(pending, intr)
		}
	}
	return pending, nil
}
