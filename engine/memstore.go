// ABOUTME: In-memory implementations of the state, interrupt, audit, and document stores.
// ABOUTME: Used by tests and single-process local runs; durable variants live in the store package.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements StateStore, InterruptStore, AuditLog, and
// DocumentStore in process memory. All methods are safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	states     map[string]*ExecutionState
	interrupts map[string]*Interrupt
	audit      []*AuditEntry
	documents  map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:     make(map[string]*ExecutionState),
		interrupts: make(map[string]*Interrupt),
		documents:  make(map[string][]byte),
	}
}

// Save stores a deep copy of the state keyed by execution ID.
func (m *MemoryStore) Save(ctx context.Context, state *ExecutionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.ExecutionID] = state.Clone()
	return nil
}

// Load returns a deep copy of the stored state.
func (m *MemoryStore) Load(ctx context.Context, executionID string) (*ExecutionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, executionID)
	}
	return state.Clone(), nil
}

// List returns all stored states sorted by execution ID.
func (m *MemoryStore) List(ctx context.Context) ([]*ExecutionState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*ExecutionState, 0, len(m.states))
	for _, s := range m.states {
		result = append(result, s.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExecutionID < result[j].ExecutionID })
	return result, nil
}

// SaveInterrupt stores a copy of the interrupt record.
func (m *MemoryStore) SaveInterrupt(ctx context.Context, intr *Interrupt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *intr
	m.interrupts[intr.InterruptID] = &c
	return nil
}

// LoadInterrupt returns a copy of the interrupt record.
func (m *MemoryStore) LoadInterrupt(ctx context.Context, interruptID string) (*Interrupt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	intr, ok := m.interrupts[interruptID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInterruptNotFound, interruptID)
	}
	c := *intr
	return &c, nil
}

// ListInterrupts returns interrupts for an execution, oldest first.
func (m *MemoryStore) ListInterrupts(ctx context.Context, executionID string) ([]*Interrupt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Interrupt
	for _, intr := range m.interrupts {
		if intr.ExecutionID == executionID {
			c := *intr
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// Append adds one audit entry. Entries are never mutated or deleted.
func (m *MemoryStore) Append(ctx context.Context, entry *AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *entry
	m.audit = append(m.audit, &c)
	return nil
}

// Entries returns the audit entries for an execution in append order.
func (m *MemoryStore) Entries(ctx context.Context, executionID string) ([]*AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*AuditEntry
	for _, e := range m.audit {
		if e.ExecutionID == executionID {
			c := *e
			result = append(result, &c)
		}
	}
	return result, nil
}

// Put stores document content under a ref.
func (m *MemoryStore) Put(ctx context.Context, ref string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[ref] = append([]byte{}, content...)
	return nil
}

// Get returns document content, or ErrDocumentNotFound.
func (m *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.documents[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, ref)
	}
	return append([]byte{}, content...), nil
}

// Compile-time interface checks.
var (
	_ StateStore     = (*MemoryStore)(nil)
	_ InterruptStore = (*MemoryStore)(nil)
	_ AuditLog       = (*MemoryStore)(nil)
	_ DocumentStore  = (*MemoryStore)(nil)
)
