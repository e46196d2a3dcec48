// ABOUTME: Shared test doubles: scripted completer, recording prompt assembler, queue-backed checker.
// ABOUTME: Also provides graph-building helpers used across the engine tests.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
)

// scriptedCompleter returns canned completions in FIFO order and records the
// prompts it received.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func newScriptedCompleter(responses ...string) *scriptedCompleter {
	return &scriptedCompleter{responses: responses}
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("scripted completer exhausted")
	}
	text := s.responses[0]
	s.responses = s.responses[1:]
	if strings.HasPrefix(text, "ERROR:") {
		return nil, fmt.Errorf("%s", strings.TrimPrefix(text, "ERROR:"))
	}
	return &Completion{Text: text}, nil
}

func (s *scriptedCompleter) allPrompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.prompts...)
}

// echoPrompts renders the task ref plus extras so tests can assert on what
// reached the completer.
type echoPrompts struct{}

func (echoPrompts) Render(ctx context.Context, taskRef string, state *ExecutionState, extra map[string]string) (string, error) {
	var b strings.Builder
	b.WriteString("task:" + taskRef)
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n" + k + "=" + extra[k])
	}
	return b.String(), nil
}

// queueChecker pops one findings slice per Check call; an empty queue means
// every remaining check passes.
type queueChecker struct {
	mu    sync.Mutex
	queue [][]SchemaCheck
}

func newQueueChecker(results ...[]SchemaCheck) *queueChecker {
	return &queueChecker{queue: results}
}

func (c *queueChecker) Check(ctx context.Context, schemaRef string, content []byte) ([]SchemaCheck, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, nil
	}
	findings := c.queue[0]
	c.queue = c.queue[1:]
	return findings, nil
}

// testConfig builds an engine config over a fresh memory store.
func testConfig(t *testing.T, graphs GraphResolver) (Config, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	cfg := Config{
		Graphs:     graphs,
		States:     store,
		Interrupts: NewInterruptRegistry(store, store),
		Recorder:   NewRecorder(store),
		Executors:  DefaultExecutorRegistry(),
		Docs:       store,
		Prompts:    echoPrompts{},
		Completer:  newScriptedCompleter(),
		Checker:    newQueueChecker(),
	}
	return cfg, store
}

func strPtr(s string) *string { return &s }

// mustGraph indexes and validates a hand-built graph.
func mustGraph(t *testing.T, g *Graph) *Graph {
	t.Helper()
	if _, err := ValidateOrError(g); err != nil {
		t.Fatalf("test graph invalid: %v", err)
	}
	return g
}

// taskQAGraph is the canonical generation/validation pair: a task producing
// a "report" document validated by a structural qa node, with a remediation
// edge looping failures back to the task.
func taskQAGraph(t *testing.T) *Graph {
	return mustGraph(t, &Graph{
		Name:     "task-qa",
		EntryIDs: []string{"T"},
		Nodes: []*Node{
			{ID: "T", Kind: KindTask, TaskRef: "draft_report", DocumentRole: "report"},
			{ID: "Q", Kind: KindQA, QAMode: QAModeStructural, QATargetRole: "report", SchemaRef: "report.v1"},
			{ID: "done", Kind: KindEnd, TerminalOutcome: TerminalStabilized},
			{ID: "halt", Kind: KindEnd, TerminalOutcome: TerminalBlocked},
		},
		Edges: []*Edge{
			{ID: "t-success", From: "T", To: strPtr("Q"), Outcome: OutcomeSuccess},
			{ID: "t-failed", From: "T", To: strPtr("halt"), Outcome: OutcomeFailed},
			{ID: "q-passed", From: "Q", To: strPtr("done"), Outcome: OutcomePassed},
			{ID: "q-failed", From: "Q", To: strPtr("T"), Outcome: OutcomeFailed},
		},
	})
}
