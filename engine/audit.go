// ABOUTME: Outcome recorder: appends immutable audit entries for routing and terminal decisions.
// ABOUTME: A failed append is fatal to the enclosing transition; every branching decision stays explainable.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder writes audit entries. Pure append: no retries, no conditional
// logic.
type Recorder struct {
	log AuditLog
}

// NewRecorder creates a Recorder over the given audit log.
func NewRecorder(log AuditLog) *Recorder {
	return &Recorder{log: log}
}

// Log returns the underlying audit log, for query surfaces that read what
// the recorder wrote.
func (r *Recorder) Log() AuditLog {
	return r.log
}

// Record appends one entry. The returned error wraps ErrAuditWrite so the
// plan executor can abort the transition that triggered it.
func (r *Recorder) Record(ctx context.Context, executionID, nodeID, decision, rationale string) error {
	entry := &AuditEntry{
		EntryID:     uuid.NewString(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Decision:    decision,
		Rationale:   rationale,
		Timestamp:   time.Now().UTC(),
	}
	if err := r.log.Append(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditWrite, err)
	}
	return nil
}
