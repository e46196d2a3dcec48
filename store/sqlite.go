// ABOUTME: SQLite-backed durable store for execution state, interrupts, audit entries, and documents.
// ABOUTME: State snapshots are stored as JSON blobs so loads are crash-equivalent to the last save.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interrupts (
		interrupt_id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		interrupt_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT,
		resolution_payload TEXT NOT NULL DEFAULT '',
		schema_version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interrupts_execution ON interrupts(execution_id, created_at);

	CREATE TABLE IF NOT EXISTS audit_entries (
		entry_id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		decision TEXT NOT NULL,
		rationale TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_execution ON audit_entries(execution_id, timestamp);

	CREATE TABLE IF NOT EXISTS documents (
		ref TEXT PRIMARY KEY,
		content BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);`

// SqliteStore implements the engine's durable store contracts on a single
// SQLite database. Concurrent writers for distinct executions are safe; WAL
// mode keeps readers unblocked during saves.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path and runs
// migrations. Use ":memory:" for tests.
func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	// A single connection sidesteps table-lock contention from the
	// in-process writer pool; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	return &SqliteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Save upserts the full execution state snapshot.
func (s *SqliteStore) Save(ctx context.Context, state *engine.ExecutionState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state %s: %w", state.ExecutionID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (execution_id, status, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET
			status = excluded.status,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		state.ExecutionID,
		string(state.Status),
		string(blob),
		state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", state.ExecutionID, err)
	}
	return nil
}

// Load returns the last saved state for an execution.
func (s *SqliteStore) Load(ctx context.Context, executionID string) (*engine.ExecutionState, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM executions WHERE execution_id = ?`, executionID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrStateNotFound, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state %s: %w", executionID, err)
	}
	var state engine.ExecutionState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", executionID, err)
	}
	return &state, nil
}

// List returns every persisted execution state.
func (s *SqliteStore) List(ctx context.Context) ([]*engine.ExecutionState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state FROM executions ORDER BY execution_id`)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var states []*engine.ExecutionState
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		var state engine.ExecutionState
		if err := json.Unmarshal([]byte(blob), &state); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		states = append(states, &state)
	}
	return states, rows.Err()
}

// SaveInterrupt upserts an interrupt record.
func (s *SqliteStore) SaveInterrupt(ctx context.Context, intr *engine.Interrupt) error {
	var resolvedAt *string
	if intr.ResolvedAt != nil {
		v := intr.ResolvedAt.UTC().Format(time.RFC3339Nano)
		resolvedAt = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interrupts (interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(interrupt_id) DO UPDATE SET
			resolved_at = excluded.resolved_at,
			resolution_payload = excluded.resolution_payload`,
		intr.InterruptID,
		intr.ExecutionID,
		intr.NodeID,
		intr.Type,
		intr.Payload,
		intr.CreatedAt.UTC().Format(time.RFC3339Nano),
		resolvedAt,
		intr.ResolutionPayload,
		intr.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("save interrupt %s: %w", intr.InterruptID, err)
	}
	return nil
}

// LoadInterrupt returns one interrupt by ID.
func (s *SqliteStore) LoadInterrupt(ctx context.Context, interruptID string) (*engine.Interrupt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version
		 FROM interrupts WHERE interrupt_id = ?`, interruptID)
	intr, err := scanInterrupt(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrInterruptNotFound, interruptID)
	}
	if err != nil {
		return nil, fmt.Errorf("load interrupt %s: %w", interruptID, err)
	}
	return intr, nil
}

// ListInterrupts returns an execution's interrupts, oldest first.
func (s *SqliteStore) ListInterrupts(ctx context.Context, executionID string) ([]*engine.Interrupt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT interrupt_id, execution_id, node_id, interrupt_type, payload, created_at, resolved_at, resolution_payload, schema_version
		 FROM interrupts WHERE execution_id = ? ORDER BY created_at`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list interrupts: %w", err)
	}
	defer rows.Close()

	var interrupts []*engine.Interrupt
	for rows.Next() {
		intr, err := scanInterrupt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan interrupt: %w", err)
		}
		interrupts = append(interrupts, intr)
	}
	return interrupts, rows.Err()
}

// scanInterrupt decodes one interrupt row from any Scan-shaped source.
func scanInterrupt(scan func(...any) error) (*engine.Interrupt, error) {
	var intr engine.Interrupt
	var createdAt string
	var resolvedAt *string
	if err := scan(&intr.InterruptID, &intr.ExecutionID, &intr.NodeID, &intr.Type,
		&intr.Payload, &createdAt, &resolvedAt, &intr.ResolutionPayload, &intr.SchemaVersion); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	intr.CreatedAt = ts
	if resolvedAt != nil {
		ts, err := time.Parse(time.RFC3339Nano, *resolvedAt)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at: %w", err)
		}
		intr.ResolvedAt = &ts
	}
	return &intr, nil
}

// Append inserts one audit entry. Entries are never updated or deleted.
func (s *SqliteStore) Append(ctx context.Context, entry *engine.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (entry_id, execution_id, node_id, decision, rationale, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.EntryID,
		entry.ExecutionID,
		entry.NodeID,
		entry.Decision,
		entry.Rationale,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Entries returns an execution's audit entries in append order.
func (s *SqliteStore) Entries(ctx context.Context, executionID string) ([]*engine.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_id, execution_id, node_id, decision, rationale, timestamp
		 FROM audit_entries WHERE execution_id = ? ORDER BY timestamp, entry_id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*engine.AuditEntry
	for rows.Next() {
		var entry engine.AuditEntry
		var ts string
		if err := rows.Scan(&entry.EntryID, &entry.ExecutionID, &entry.NodeID,
			&entry.Decision, &entry.Rationale, &ts); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		entry.Timestamp = parsed
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Put upserts a document blob by ref.
func (s *SqliteStore) Put(ctx context.Context, ref string, content []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (ref, content, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(ref) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`,
		ref, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put document %s: %w", ref, err)
	}
	return nil
}

// Get returns a document blob by ref.
func (s *SqliteStore) Get(ctx context.Context, ref string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM documents WHERE ref = ?`, ref).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrDocumentNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", ref, err)
	}
	return content, nil
}

var (
	_ engine.StateStore     = (*SqliteStore)(nil)
	_ engine.InterruptStore = (*SqliteStore)(nil)
	_ engine.AuditLog       = (*SqliteStore)(nil)
	_ engine.DocumentStore  = (*SqliteStore)(nil)
)
