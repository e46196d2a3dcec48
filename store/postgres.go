// ABOUTME: PostgreSQL-backed durable store over a pgx connection pool.
// ABOUTME: Mirrors the SQLite layout with JSONB state snapshots for multi-process deployments.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS executions (
    execution_id TEXT PRIMARY KEY,
    status       TEXT NOT NULL,
    state        JSONB NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS interrupts (
    interrupt_id       TEXT PRIMARY KEY,
    execution_id       TEXT NOT NULL,
    node_id            TEXT NOT NULL,
    interrupt_type     TEXT NOT NULL,
    payload            TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    resolved_at        TIMESTAMPTZ,
    resolution_payload TEXT NOT NULL DEFAULT '',
    schema_version     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interrupts_execution ON interrupts(execution_id, created_at);

CREATE TABLE IF NOT EXISTS audit_entries (
    entry_id     TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL,
    node_id      TEXT NOT NULL,
    decision     TEXT NOT NULL,
    rationale    TEXT NOT NULL,
    timestamp    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_execution ON audit_entries(execution_id, timestamp);

CREATE TABLE IF NOT EXISTS documents (
    ref        TEXT PRIMARY KEY,
    content    BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PGStore implements the engine's durable store contracts using PostgreSQL
// via pgx. Suitable when several orchestrator processes share one database.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a PGStore backed by the given pgx connection pool.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// CreateSchema creates the store tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return err
}

// Save upserts the full execution state snapshot.
func (s *PGStore) Save(ctx context.Context, state *engine.ExecutionState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", state.ExecutionID, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO executions (execution_id, status, state, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (execution_id) DO UPDATE SET
			status = EXCLUDED.status,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		state.ExecutionID, string(state.Status), blob, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save state %s: %w", state.ExecutionID, err)
	}
	return nil
}

// Load returns the last saved state for an execution.
func (s *PGStore) Load(ctx context.Context, executionID string) (*engine.ExecutionState, error) {
	var blob []byte
	err := s.db.QueryRow(ctx,
		`SELECT state FROM executions WHERE execution_id = $1`, executionID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrStateNotFound, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", executionID, err)
	}
	var state engine.ExecutionState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", executionID, err)
	}
	return &state, nil
}

// List returns every persisted execution state.
func (s *PGStore) List(ctx context.Context) ([]*engine.ExecutionState, error) {
	rows, err := s.db.Query(ctx, `SELECT state FROM executions ORDER BY execution_id`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []*engine.ExecutionState
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		var state engine.ExecutionState
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

// SaveInterrupt upserts an interrupt record.
func (s *PGStore) SaveInterrupt(ctx context.Context, intr *engine.Interrupt) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO interrupts (interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (interrupt_id) DO UPDATE SET
			resolved_at = EXCLUDED.resolved_at,
			resolution_payload = EXCLUDED.resolution_payload`,
		intr.InterruptID, intr.ExecutionID, intr.NodeID, intr.Type, intr.Payload,
		intr.CreatedAt, intr.ResolvedAt, intr.ResolutionPayload, intr.SchemaVersion)
	if err != nil {
		return fmt.Errorf("save interrupt %s: %w", intr.InterruptID, err)
	}
	return nil
}

// LoadInterrupt returns one interrupt by ID.
func (s *PGStore) LoadInterrupt(ctx context.Context, interruptID string) (*engine.Interrupt, error) {
	var intr engine.Interrupt
	err := s.db.QueryRow(ctx,
		`SELECT interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version
		 FROM interrupts WHERE interrupt_id = $1`, interruptID).
		Scan(&intr.InterruptID, &intr.ExecutionID, &intr.NodeID, &intr.Type,
			&intr.Payload, &intr.CreatedAt, &intr.ResolvedAt, &intr.ResolutionPayload, &intr.SchemaVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrInterruptNotFound, interruptID)
	}
	if err != nil {
		return nil, fmt.Errorf("load interrupt %s: %w", interruptID, err)
	}
	return &intr, nil
}

// ListInterrupts returns an execution's interrupts, oldest first.
func (s *PGStore) ListInterrupts(ctx context.Context, executionID string) ([]*engine.Interrupt, error) {
	rows, err := s.db.Query(ctx,
		`SELECT interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version
		 FROM interrupts WHERE execution_id = $1 ORDER BY created_at`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list interrupts: %w", err)
	}
	defer rows.Close()

	var interrupts []*engine.Interrupt
	for rows.Next() {
		var intr engine.Interrupt
		if err := rows.Scan(&intr.InterruptID, &intr.ExecutionID, &intr.NodeID, &intr.Type,
			&intr.Payload, &intr.CreatedAt, &intr.ResolvedAt, &intr.ResolutionPayload, &intr.SchemaVersion); err != nil {
			return nil, fmt.Errorf("scan interrupt: %w", err)
		}
		interrupts = append(interrupts, &intr)
	}
	return interrupts, rows.Err()
}

// Append inserts one audit entry.
func (s *PGStore) Append(ctx context.Context, entry *engine.AuditEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO audit_entries (entry_id, execution_id, node_id, decision, rationale, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.EntryID, entry.ExecutionID, entry.NodeID, entry.Decision, entry.Rationale, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Entries returns an execution's audit entries in append order.
func (s *PGStore) Entries(ctx context.Context, executionID string) ([]*engine.AuditEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT entry_id, execution_id, node_id, decision, rationale, timestamp
		 FROM audit_entries WHERE execution_id = $1 ORDER BY timestamp, entry_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*engine.AuditEntry
	for rows.Next() {
		var entry engine.AuditEntry
		if err := rows.Scan(&entry.EntryID, &entry.ExecutionID, &entry.NodeID,
			&entry.Decision, &entry.Rationale, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Put upserts a document blob by ref.
func (s *PGStore) Put(ctx context.Context, ref string, content []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO documents (ref, content, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (ref) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at`,
		ref, content)
	if err != nil {
		return fmt.Errorf("put document %s: %w", ref, err)
	}
	return nil
}

// Get returns a document blob by ref.
func (s *PGStore) Get(ctx context.Context, ref string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRow(ctx,
		`SELECT content FROM documents WHERE ref = $1`, ref).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrDocumentNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", ref, err)
	}
	return content, nil
}

var (
	_ engine.StateStore     = (*PGStore)(nil)
	_ engine.InterruptStore = (*PGStore)(nil)
	_ engine.AuditLog       = (*PGStore)(nil)
	_ engine.DocumentStore  = (*PGStore)(nil)
)
