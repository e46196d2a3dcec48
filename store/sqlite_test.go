// ABOUTME: Tests for the SQLite store using in-memory databases.
// ABOUTME: Verifies crash-equivalent state round-trips, interrupt lifecycle, audit order, and documents.
package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

func openTestStore(t *testing.T) *SqliteStore {
	t.Helper()
	s, err := OpenSqlite(":memory:")
	if err != nil {
		t.Fatalf("OpenSqlite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := engine.NewExecutionState("graph.json", "start")
	state.RetryCounts["build"] = 2
	state.Vars["intake.classification"] = "standard"
	state.ProducedDocuments["discovery"] = state.ExecutionID + "/discovery"
	state.AppendHistory("start", "success", "edge-1")

	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, state.ExecutionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CurrentNodeID != state.CurrentNodeID {
		t.Errorf("CurrentNodeID = %q, want %q", loaded.CurrentNodeID, state.CurrentNodeID)
	}
	if loaded.RetryCounts["build"] != 2 {
		t.Errorf("RetryCounts[build] = %d, want 2", loaded.RetryCounts["build"])
	}
	if loaded.Vars["intake.classification"] != "standard" {
		t.Errorf("Vars = %v, want classification preserved", loaded.Vars)
	}
	if len(loaded.History) != 1 || loaded.History[0].NodeID != "start" {
		t.Errorf("History = %v, want one start entry", loaded.History)
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := engine.NewExecutionState("graph.json", "start")
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	state.CurrentNodeID = "review"
	state.Status = engine.StatusPausedForInput
	if err := s.Save(ctx, state); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, state.ExecutionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CurrentNodeID != "review" || loaded.Status != engine.StatusPausedForInput {
		t.Errorf("loaded = %s/%s, want review/paused_for_input", loaded.CurrentNodeID, loaded.Status)
	}
}

func TestLoadUnknownExecution(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	if !errors.Is(err, engine.ErrStateNotFound) {
		t.Errorf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestListReturnsAllStates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Save(ctx, engine.NewExecutionState("graph.json", "start")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	states, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 3 {
		t.Errorf("List() returned %d states, want 3", len(states))
	}
}

func TestInterruptLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	intr := &engine.Interrupt{
		SchemaVersion: 1,
		InterruptID:   "int-1",
		ExecutionID:   "exec-1",
		NodeID:        "gate",
		Type:          "clarification",
		Payload:       `{"questions":["scope?"]}`,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.SaveInterrupt(ctx, intr); err != nil {
		t.Fatalf("SaveInterrupt() error = %v", err)
	}

	loaded, err := s.LoadInterrupt(ctx, "int-1")
	if err != nil {
		t.Fatalf("LoadInterrupt() error = %v", err)
	}
	if loaded.Resolved() {
		t.Error("fresh interrupt should not be resolved")
	}

	now := time.Now().UTC()
	intr.ResolvedAt = &now
	intr.ResolutionPayload = `{"answers":["all of it"]}`
	if err := s.SaveInterrupt(ctx, intr); err != nil {
		t.Fatalf("SaveInterrupt() resolve error = %v", err)
	}

	loaded, err = s.LoadInterrupt(ctx, "int-1")
	if err != nil {
		t.Fatalf("LoadInterrupt() after resolve error = %v", err)
	}
	if !loaded.Resolved() || loaded.ResolutionPayload == "" {
		t.Error("resolved interrupt should carry resolution payload")
	}
}

func TestLoadUnknownInterrupt(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadInterrupt(context.Background(), "nope")
	if !errors.Is(err, engine.ErrInterruptNotFound) {
		t.Errorf("LoadInterrupt() error = %v, want ErrInterruptNotFound", err)
	}
}

func TestListInterruptsOldestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"int-b", "int-a", "int-c"} {
		intr := &engine.Interrupt{
			SchemaVersion: 1,
			InterruptID:   id,
			ExecutionID:   "exec-1",
			NodeID:        "gate",
			Type:          "clarification",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveInterrupt(ctx, intr); err != nil {
			t.Fatalf("SaveInterrupt(%s) error = %v", id, err)
		}
	}

	interrupts, err := s.ListInterrupts(ctx, "exec-1")
	if err != nil {
		t.Fatalf("ListInterrupts() error = %v", err)
	}
	if len(interrupts) != 3 {
		t.Fatalf("ListInterrupts() returned %d, want 3", len(interrupts))
	}
	if interrupts[0].InterruptID != "int-b" || interrupts[2].InterruptID != "int-c" {
		t.Errorf("interrupts out of order: %s, %s, %s",
			interrupts[0].InterruptID, interrupts[1].InterruptID, interrupts[2].InterruptID)
	}
}

func TestAuditAppendOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, decision := range []string{"route:e1", "route:e2", "terminal:stabilized"} {
		entry := &engine.AuditEntry{
			EntryID:     string(rune('a' + i)),
			ExecutionID: "exec-1",
			NodeID:      "n",
			Decision:    decision,
			Timestamp:   base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.Append(ctx, entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := s.Entries(ctx, "exec-1")
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Entries() returned %d, want 3", len(entries))
	}
	if entries[2].Decision != "terminal:stabilized" {
		t.Errorf("last entry = %q, want terminal:stabilized", entries[2].Decision)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "exec-1/discovery", []byte(`{"summary":"ok"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "exec-1/discovery")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"summary":"ok"}` {
		t.Errorf("Get() = %q", got)
	}

	_, err = s.Get(ctx, "missing")
	if !errors.Is(err, engine.ErrDocumentNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrDocumentNotFound", err)
	}
}
