// ABOUTME: ExecutionState, execution status, and the NodeResult contract shared by all executors.
// ABOUTME: State is owned by exactly one plan executor and persisted after every state-changing transition.
package engine

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// StateSchemaVersion tags persisted ExecutionState records so future loaders
// can migrate old layouts instead of misreading them.
const StateSchemaVersion = 1

// Status is the lifecycle status of an execution.
type Status string

const (
	StatusRunning        Status = "running"
	StatusPausedForInput Status = "paused_for_input"
	StatusBlocked        Status = "blocked"
	StatusStabilized     Status = "stabilized"
	StatusAbandoned      Status = "abandoned"
)

// Terminal reports whether the status ends the execution.
func (s Status) Terminal() bool {
	return s == StatusBlocked || s == StatusStabilized || s == StatusAbandoned
}

// Outcome tags produced by executors and matched by edges.
const (
	OutcomeSuccess        = "success"
	OutcomeFailed         = "failed"
	OutcomePassed         = "passed"
	OutcomeQuestionsReady = "questions_ready"
)

// HistoryEntry is one entry in an execution's append-only conversation history.
type HistoryEntry struct {
	NodeID    string    `json:"node_id"`
	Role      string    `json:"role"` // "engine", "llm", "operator"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// GateProgress tracks a clarification gate's sub-protocol between phases.
// Persisted inside ExecutionState so a crash between phases resumes correctly.
type GateProgress struct {
	QuestionSetRef string `json:"question_set_ref,omitempty"` // document ref of the generated question set
	Answers        string `json:"answers,omitempty"`          // operator answers, captured once, immutable
	Confirmed      bool   `json:"confirmed,omitempty"`        // intake gates: classification confirmed
	Classification string `json:"classification,omitempty"`   // intake gates: initial classification
}

// ExecutionState is the durable state of one workflow execution.
type ExecutionState struct {
	SchemaVersion int    `json:"schema_version"`
	ExecutionID   string `json:"execution_id"`
	GraphRef      string `json:"graph_ref"`
	DocumentRole  string `json:"document_role,omitempty"`

	// CurrentNodeID is empty only before Start.
	CurrentNodeID string `json:"current_node_id"`
	Status        Status `json:"status"`

	History            []HistoryEntry           `json:"history"`
	ProducedDocuments  map[string]string        `json:"produced_documents"` // document role -> document ref
	RetryCounts        map[string]int           `json:"retry_counts"`       // node id -> remediation count
	PendingInterruptID string                   `json:"pending_interrupt_id,omitempty"`
	GateProgress       map[string]*GateProgress `json:"gate_progress,omitempty"` // node id -> gate sub-protocol state
	SpawnedChildren    []string                 `json:"spawned_children,omitempty"`
	Vars               map[string]any           `json:"vars,omitempty"` // condition-visible context values

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionState creates a fresh running state positioned at entryNodeID.
func NewExecutionState(graphRef, entryNodeID string) *ExecutionState {
	now := time.Now().UTC()
	return &ExecutionState{
		SchemaVersion:     StateSchemaVersion,
		ExecutionID:       NewExecutionID(),
		GraphRef:          graphRef,
		CurrentNodeID:     entryNodeID,
		Status:            StatusRunning,
		History:           []HistoryEntry{},
		ProducedDocuments: map[string]string{},
		RetryCounts:       map[string]int{},
		GateProgress:      map[string]*GateProgress{},
		Vars:              map[string]any{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewExecutionID generates a ULID execution ID using crypto/rand entropy.
func NewExecutionID() string {
	return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// AppendHistory adds one entry to the conversation history.
func (s *ExecutionState) AppendHistory(nodeID, role, content string) {
	s.History = append(s.History, HistoryEntry{
		NodeID:    nodeID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Gate returns the gate progress record for a node, creating it if absent.
func (s *ExecutionState) Gate(nodeID string) *GateProgress {
	if s.GateProgress == nil {
		s.GateProgress = map[string]*GateProgress{}
	}
	gp := s.GateProgress[nodeID]
	if gp == nil {
		gp = &GateProgress{}
		s.GateProgress[nodeID] = gp
	}
	return gp
}

// HasSpawned reports whether a child execution ID was already recorded.
// Spawning is idempotent: re-running a step against a state that already
// recorded a spawn must not spawn again.
func (s *ExecutionState) HasSpawned(childID string) bool {
	for _, id := range s.SpawnedChildren {
		if id == childID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state. Stores hand out clones so callers
// never share mutable state with the persistence layer.
func (s *ExecutionState) Clone() *ExecutionState {
	c := *s
	c.History = append([]HistoryEntry{}, s.History...)
	c.ProducedDocuments = make(map[string]string, len(s.ProducedDocuments))
	for k, v := range s.ProducedDocuments {
		c.ProducedDocuments[k] = v
	}
	c.RetryCounts = make(map[string]int, len(s.RetryCounts))
	for k, v := range s.RetryCounts {
		c.RetryCounts[k] = v
	}
	c.GateProgress = make(map[string]*GateProgress, len(s.GateProgress))
	for k, v := range s.GateProgress {
		gp := *v
		c.GateProgress[k] = &gp
	}
	c.SpawnedChildren = append([]string{}, s.SpawnedChildren...)
	c.Vars = make(map[string]any, len(s.Vars))
	for k, v := range s.Vars {
		c.Vars[k] = v
	}
	return &c
}

// InterruptRequest asks the plan executor to suspend the execution and hand
// the payload to an external caller.
type InterruptRequest struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// NodeResult is the uniform result contract every executor returns.
// Executors never mutate ExecutionState directly; the plan executor
// interprets the result and applies all state changes.
type NodeResult struct {
	// Outcome is the tag edges match against ("success", "failed", "passed", ...).
	Outcome string

	// ArtifactRole/ArtifactRef record a document produced by this step.
	ArtifactRole string
	ArtifactRef  string

	// SelectedEdgeID names a user_choice edge picked by the result. Only
	// user_choice edges selected this way are eligible for routing.
	SelectedEdgeID string

	// Interrupt, when non-nil, suspends the execution instead of advancing.
	Interrupt *InterruptRequest

	// Feedback carries structured QA findings for the remediation loop.
	Feedback *QAFeedback

	// GateUpdate, when non-nil, replaces the node's persisted gate
	// sub-protocol record. Only gate-family executors set this.
	GateUpdate *GateProgress

	// FailureReason summarizes why the outcome is "failed". Transport errors
	// and malformed output are summarized here, never surfaced as a crash.
	FailureReason string

	// VarUpdates merge into the execution's condition-visible context.
	VarUpdates map[string]any

	// Notes is a short human-readable summary appended to history.
	Notes string
}

// QAFeedback is the structured payload a QA executor attaches to a failed
// check. The remediation loop appends it to the task context on re-invocation.
type QAFeedback struct {
	Findings []string `json:"findings"`
	Summary  string   `json:"summary"`
}
