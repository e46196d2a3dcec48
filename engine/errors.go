// ABOUTME: Sentinel errors for the workflow engine's failure taxonomy.
// ABOUTME: Distinguishes graph defects, interrupt protocol violations, and persistence failures.
package engine

import "errors"

var (
	// ErrGraphInvalid marks a graph defect: rejected at load time, before
	// any execution starts.
	ErrGraphInvalid = errors.New("graph validation failed")

	// ErrNoEligibleEdge is returned by the router when no edge matches a
	// node's outcome. This is a malformed graph, fatal to the run.
	ErrNoEligibleEdge = errors.New("no eligible edge")

	// ErrStateNotFound is returned by state stores for unknown execution IDs.
	ErrStateNotFound = errors.New("execution state not found")

	// ErrInterruptNotFound is returned when resolving an unknown interrupt.
	ErrInterruptNotFound = errors.New("interrupt not found")

	// ErrInterruptResolved is returned when resolving an interrupt twice.
	// Resolution happens exactly once; execution state is unchanged.
	ErrInterruptResolved = errors.New("interrupt already resolved")

	// ErrExecutionNotPaused is returned when resuming an execution that has
	// no outstanding interrupt.
	ErrExecutionNotPaused = errors.New("execution is not paused for input")

	// ErrDocumentNotFound is returned by document stores for unknown refs.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrAuditWrite marks an audit append failure. Audit and state advance
	// are atomic from the caller's point of view, so this aborts the
	// enclosing transition.
	ErrAuditWrite = errors.New("audit write failed")
)
