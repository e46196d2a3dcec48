// ABOUTME: Lifecycle events emitted by plan executors and the project orchestrator.
// ABOUTME: Observability only; no engine behavior depends on whether anyone listens.
package engine

import "time"

// EventType identifies the kind of engine lifecycle event.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionFinished  EventType = "execution.finished"
	EventExecutionSuspended EventType = "execution.suspended"
	EventExecutionResumed   EventType = "execution.resumed"
	EventStepStarted        EventType = "step.started"
	EventStepCompleted      EventType = "step.completed"
	EventStepFailed         EventType = "step.failed"
	EventRemediationRetry   EventType = "remediation.retry"
	EventChildSpawned       EventType = "child.spawned"
	EventStateSaved         EventType = "state.saved"
	EventDocumentBlocked    EventType = "document.blocked"
)

// Event is a lifecycle event emitted during execution.
type Event struct {
	Type        EventType
	ExecutionID string
	NodeID      string
	Data        map[string]any
	Timestamp   time.Time
}

// EventHandler receives engine events. Handlers must be fast; they are
// invoked inline on the stepping goroutine.
type EventHandler func(Event)

// emit stamps and delivers an event, tolerating a nil handler.
func emit(h EventHandler, evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	h(evt)
}
