// ABOUTME: Durable store contracts: execution state snapshots, interrupt records, audit entries.
// ABOUTME: Save happens after every state-changing transition, never batched; load must be crash-equivalent.
package engine

import (
	"context"
	"time"
)

// StateStore persists ExecutionState snapshots. Only the owning plan
// executor writes a given execution's state, so last-writer-wins per
// execution_id is safe. Implementations must support concurrent writes for
// distinct execution IDs.
type StateStore interface {
	// Save persists the full state. Called after every transition that
	// changes current_node_id, status, retry_counts, or pending_interrupt_id.
	Save(ctx context.Context, state *ExecutionState) error

	// Load returns ErrStateNotFound for unknown execution IDs. The loaded
	// state must be behaviorally identical to what was last saved: same
	// next node, same retry counts.
	Load(ctx context.Context, executionID string) (*ExecutionState, error)

	// List returns all persisted execution states.
	List(ctx context.Context) ([]*ExecutionState, error)
}

// Interrupt is a durable record of a suspended execution awaiting external
// input. Created when a node suspends; resolved exactly once.
type Interrupt struct {
	SchemaVersion     int        `json:"schema_version"`
	InterruptID       string     `json:"interrupt_id"`
	ExecutionID       string     `json:"execution_id"`
	NodeID            string     `json:"node_id"`
	Type              string     `json:"interrupt_type"`
	Payload           string     `json:"payload"`
	CreatedAt         time.Time  `json:"created_at"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	ResolutionPayload string     `json:"resolution_payload,omitempty"`
}

// Resolved reports whether the interrupt has been answered.
func (i *Interrupt) Resolved() bool {
	return i.ResolvedAt != nil
}

// InterruptStore persists interrupt records.
type InterruptStore interface {
	SaveInterrupt(ctx context.Context, intr *Interrupt) error
	// LoadInterrupt returns ErrInterruptNotFound for unknown IDs.
	LoadInterrupt(ctx context.Context, interruptID string) (*Interrupt, error)
	// ListInterrupts returns interrupts for an execution, oldest first.
	ListInterrupts(ctx context.Context, executionID string) ([]*Interrupt, error)
}

// AuditEntry is one immutable entry in the append-only audit log.
type AuditEntry struct {
	EntryID     string    `json:"entry_id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	Decision    string    `json:"decision"`
	Rationale   string    `json:"rationale"`
	Timestamp   time.Time `json:"timestamp"`
}

// AuditLog is the append-only audit sink. Entries are never mutated or
// deleted. Implementations must support concurrent appends keyed by
// execution_id.
type AuditLog interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Entries(ctx context.Context, executionID string) ([]*AuditEntry, error)
}
