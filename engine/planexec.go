// ABOUTME: Plan executor: the state machine that runs one execution step by step.
// ABOUTME: Sole mutator of ExecutionState; persists before acting and audits every routing decision.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// GraphResolver resolves a graph reference to a loaded, validated graph.
// Child executions name their graph by ref, so spawning needs resolution.
type GraphResolver interface {
	ResolveGraph(ref string) (*Graph, error)
}

// SpawnFunc schedules a child execution whose state has already been
// persisted. The orchestrator supplies this; tests may leave it nil.
type SpawnFunc func(ctx context.Context, child *ExecutionState) error

// Config wires a plan executor's collaborators. Everything is injected;
// the engine holds no hidden globals.
type Config struct {
	Graphs      GraphResolver
	States      StateStore
	Interrupts  *InterruptRegistry
	Recorder    *Recorder
	Executors   *ExecutorRegistry
	Remediation RemediationPolicy
	Docs        DocumentStore
	Prompts     PromptAssembler
	Completer   Completer
	Checker     ContractChecker
	Events      EventHandler
	Spawn       SpawnFunc
}

// PlanExecutor drives one execution. An ExecutionState is owned by exactly
// one PlanExecutor at a time; Step calls are serialized by an internal lock
// so concurrent callers cannot interleave transitions.
type PlanExecutor struct {
	cfg   Config
	graph *Graph
	state *ExecutionState
	loop  *RemediationLoop
	mu    sync.Mutex
}

// Start creates a new execution at the graph's first entry node, persists
// it, and returns its executor. The state exists durably before any step
// runs.
func Start(ctx context.Context, cfg Config, graph *Graph, graphRef string) (*PlanExecutor, error) {
	entries := graph.EntryNodes()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: graph %q has no entry nodes", ErrGraphInvalid, graphRef)
	}
	state := NewExecutionState(graphRef, entries[0].ID)
	if err := cfg.States.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("persist initial state: %w", err)
	}
	pe := &PlanExecutor{cfg: cfg, graph: graph, state: state, loop: NewRemediationLoop(cfg.Remediation)}
	emit(cfg.Events, Event{Type: EventExecutionStarted, ExecutionID: state.ExecutionID})
	return pe, nil
}

// Attach wraps an already-persisted state, typically after a crash or an
// interrupt resolution. The state must have been loaded from the store.
func Attach(cfg Config, graph *Graph, state *ExecutionState) *PlanExecutor {
	return &PlanExecutor{cfg: cfg, graph: graph, state: state, loop: NewRemediationLoop(cfg.Remediation)}
}

// State returns a deep copy of the current execution state.
func (pe *PlanExecutor) State() *ExecutionState {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.state.Clone()
}

// ExecutionID returns the execution's ID.
func (pe *PlanExecutor) ExecutionID() string {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.state.ExecutionID
}

// Status returns the current status.
func (pe *PlanExecutor) Status() Status {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.state.Status
}

// Reload replaces the in-memory state with the last persisted snapshot.
// Called after an interrupt resolution, which updates the store out of band.
func (pe *PlanExecutor) Reload(ctx context.Context) error {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	state, err := pe.cfg.States.Load(ctx, pe.state.ExecutionID)
	if err != nil {
		return err
	}
	pe.state = state
	return nil
}

// Run steps the execution until it suspends, terminates, or the context is
// cancelled. Cancellation is cooperative: checked between steps, never
// mid-step, so the persisted state always reflects the last completed
// transition.
func (pe *PlanExecutor) Run(ctx context.Context) (Status, error) {
	for {
		if err := ctx.Err(); err != nil {
			return pe.Status(), err
		}
		status := pe.Status()
		if status != StatusRunning {
			return status, nil
		}
		if err := pe.Step(ctx); err != nil {
			return pe.Status(), err
		}
	}
}

// Step executes the current node and interprets its result: route, suspend,
// remediate, or terminate. In-memory state never advances past what has been
// successfully persisted; a persistence failure aborts the step with the
// prior state intact.
func (pe *PlanExecutor) Step(ctx context.Context) error {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	if pe.state.Status != StatusRunning {
		return fmt.Errorf("execution %s is %s, not running", pe.state.ExecutionID, pe.state.Status)
	}

	node := pe.graph.FindNode(pe.state.CurrentNodeID)
	if node == nil {
		return fmt.Errorf("%w: current node %q not in graph", ErrGraphInvalid, pe.state.CurrentNodeID)
	}

	executor, err := pe.cfg.Executors.Resolve(node)
	if err != nil {
		return err
	}

	emit(pe.cfg.Events, Event{Type: EventStepStarted, ExecutionID: pe.state.ExecutionID, NodeID: node.ID})

	// Work on a clone so a failed persist leaves the committed state
	// untouched.
	working := pe.state.Clone()

	resolution, err := pe.latestResolution(ctx, node.ID)
	if err != nil {
		return err
	}

	sc := &StepContext{
		Graph:      pe.graph,
		State:      working,
		Docs:       pe.cfg.Docs,
		Prompts:    pe.cfg.Prompts,
		Completer:  pe.cfg.Completer,
		Checker:    pe.cfg.Checker,
		Resolution: resolution,
	}

	var result *NodeResult
	if node.Kind == KindTask && node.RequiresQA && node.SchemaRef != "" && !hasQANode(pe.graph, node.ID) {
		// Inline remediation: the task carries its own contract check when
		// no separate qa node validates it.
		result, err = pe.loop.RunInline(ctx, &TaskExecutor{}, node, sc)
	} else {
		result, err = safeExecute(ctx, executor, node, sc)
	}
	if err != nil {
		emit(pe.cfg.Events, Event{Type: EventStepFailed, ExecutionID: pe.state.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"error": err.Error()}})
		return fmt.Errorf("node %q execution error: %w", node.ID, err)
	}

	pe.applyResult(working, node, result)

	// Suspension: persist the gate progress and hand off to the registry.
	// The registry flips status and persists; the loop stops advancing.
	if result.Interrupt != nil {
		interruptID, err := pe.cfg.Interrupts.Suspend(ctx, working, node.ID, result.Interrupt.Type, result.Interrupt.Payload)
		if err != nil {
			return fmt.Errorf("suspend execution %s: %w", pe.state.ExecutionID, err)
		}
		pe.state = working
		emit(pe.cfg.Events, Event{Type: EventExecutionSuspended, ExecutionID: working.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"interrupt_id": interruptID, "interrupt_type": result.Interrupt.Type}})
		return nil
	}

	// Terminal node: audit, set final status, persist, stop.
	if node.Kind == KindEnd {
		status, ok := terminalStatus(result.Outcome)
		if !ok {
			return fmt.Errorf("end node %q reported non-terminal outcome %q", node.ID, result.Outcome)
		}
		return pe.finish(ctx, working, node, status, result.Notes)
	}

	route, err := SelectEdge(pe.graph, node, result, working)
	if err != nil {
		emit(pe.cfg.Events, Event{Type: EventStepFailed, ExecutionID: pe.state.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"error": err.Error()}})
		return err
	}

	// Remediation bookkeeping: a "failed" outcome routed back into a task
	// node re-invokes generation with feedback, bounded by policy.
	if result.Outcome == OutcomeFailed && !route.Reexecute {
		if target := pe.graph.FindNode(*route.Edge.To); target != nil && target.Kind == KindTask {
			if !pe.loop.Admit(working, target.ID) {
				return pe.exhaust(ctx, working, node, target, result)
			}
			pe.loop.RecordFeedback(working, target.ID, result.Feedback)
			emit(pe.cfg.Events, Event{Type: EventRemediationRetry, ExecutionID: working.ExecutionID, NodeID: target.ID,
				Data: map[string]any{"retry_count": working.RetryCounts[target.ID]}})
		}
	}

	// Every routing decision is audited before the state that depends on it
	// is persisted; a failed audit aborts the transition.
	if err := pe.cfg.Recorder.Record(ctx, working.ExecutionID, node.ID, "route:"+route.Edge.ID,
		fmt.Sprintf("outcome %q via %s edge", result.Outcome, route.Edge.Kind)); err != nil {
		return err
	}

	if route.Reexecute {
		// Non-advancing edge: same node runs again in place.
		working.UpdatedAt = time.Now().UTC()
		if err := pe.persist(ctx, working); err != nil {
			return err
		}
		pe.state = working
		emit(pe.cfg.Events, Event{Type: EventStepCompleted, ExecutionID: working.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"outcome": result.Outcome, "reexecute": true}})
		return nil
	}

	working.CurrentNodeID = *route.Edge.To
	working.UpdatedAt = time.Now().UTC()
	if err := pe.persist(ctx, working); err != nil {
		return err
	}
	pe.state = working

	emit(pe.cfg.Events, Event{Type: EventStepCompleted, ExecutionID: working.ExecutionID, NodeID: node.ID,
		Data: map[string]any{"outcome": result.Outcome, "next": working.CurrentNodeID}})

	if len(node.SpawnChildren) > 0 && result.Outcome == OutcomeSuccess {
		if err := pe.spawnChildren(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

// applyResult folds a NodeResult into the working state: history, produced
// documents, gate progress, and condition-visible vars.
func (pe *PlanExecutor) applyResult(working *ExecutionState, node *Node, result *NodeResult) {
	note := result.Notes
	if note == "" {
		note = "outcome: " + result.Outcome
	}
	role := "engine"
	if result.FailureReason != "" {
		note = result.FailureReason
	}
	working.AppendHistory(node.ID, role, note)

	if result.ArtifactRole != "" && result.ArtifactRef != "" {
		working.ProducedDocuments[result.ArtifactRole] = result.ArtifactRef
	}
	if result.GateUpdate != nil {
		working.GateProgress[node.ID] = result.GateUpdate
	}
	for k, v := range result.VarUpdates {
		working.Vars[k] = v
	}
	if result.Outcome == OutcomeSuccess && node.Kind == KindTask {
		pe.loop.ClearFeedback(working, node.ID)
	}
}

// finish applies a terminal transition: audit first, then persist the final
// status. Audit and state advance are atomic from the caller's view.
func (pe *PlanExecutor) finish(ctx context.Context, working *ExecutionState, node *Node, status Status, rationale string) error {
	if rationale == "" {
		rationale = "terminal outcome " + string(status)
	}
	if err := pe.cfg.Recorder.Record(ctx, working.ExecutionID, node.ID, "terminal:"+string(status), rationale); err != nil {
		return err
	}
	working.CurrentNodeID = node.ID
	working.Status = status
	working.UpdatedAt = time.Now().UTC()
	if err := pe.persist(ctx, working); err != nil {
		return err
	}
	pe.state = working
	emit(pe.cfg.Events, Event{Type: EventExecutionFinished, ExecutionID: working.ExecutionID, NodeID: node.ID,
		Data: map[string]any{"status": string(status)}})
	return nil
}

// exhaust handles a remediation budget overrun: a terminal failure, never a
// silent stop. If the graph offers a failed edge that does not loop back
// into a task, that edge is followed; otherwise the execution blocks.
func (pe *PlanExecutor) exhaust(ctx context.Context, working *ExecutionState, node, target *Node, result *NodeResult) error {
	ec := EvalContext{State: working, NodeID: node.ID, Outcome: OutcomeFailed}
	for _, e := range pe.graph.OutgoingEdges(node.ID) {
		if e.Outcome != OutcomeFailed || e.To == nil {
			continue
		}
		if fallback := pe.graph.FindNode(*e.To); fallback == nil || fallback.Kind == KindTask {
			continue
		}
		if e.Kind == EdgeUserChoice || !EvaluateConditions(e.Conditions, ec) {
			continue
		}
		if err := pe.cfg.Recorder.Record(ctx, working.ExecutionID, node.ID, "route:"+e.ID,
			fmt.Sprintf("remediation budget for %q exhausted (%d attempts)", target.ID, pe.loop.MaxAttempts())); err != nil {
			return err
		}
		working.CurrentNodeID = *e.To
		working.UpdatedAt = time.Now().UTC()
		if err := pe.persist(ctx, working); err != nil {
			return err
		}
		pe.state = working
		emit(pe.cfg.Events, Event{Type: EventStepCompleted, ExecutionID: working.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"outcome": OutcomeFailed, "next": working.CurrentNodeID, "exhausted": true}})
		return nil
	}
	return pe.finish(ctx, working, node, StatusBlocked,
		fmt.Sprintf("remediation budget for %q exhausted: %s", target.ID, result.FailureReason))
}

// spawnChildren creates one child execution per declared child spec.
// Child IDs are deterministic, so re-running a step against a state that
// already recorded a spawn is a no-op.
func (pe *PlanExecutor) spawnChildren(ctx context.Context, node *Node) error {
	for i, spec := range node.SpawnChildren {
		childID := fmt.Sprintf("%s.%s.%d", pe.state.ExecutionID, node.ID, i)
		if pe.state.HasSpawned(childID) {
			continue
		}

		childGraph, err := pe.cfg.Graphs.ResolveGraph(spec.GraphRef)
		if err != nil {
			return fmt.Errorf("resolve child graph %q: %w", spec.GraphRef, err)
		}
		entries := childGraph.EntryNodes()
		if len(entries) == 0 {
			return fmt.Errorf("%w: child graph %q has no entry nodes", ErrGraphInvalid, spec.GraphRef)
		}

		// Record the spawn before creating the child so a crash cannot
		// produce duplicates.
		working := pe.state.Clone()
		working.SpawnedChildren = append(working.SpawnedChildren, childID)
		working.UpdatedAt = time.Now().UTC()
		if err := pe.persist(ctx, working); err != nil {
			return err
		}
		pe.state = working

		child := NewExecutionState(spec.GraphRef, entries[0].ID)
		child.ExecutionID = childID
		child.DocumentRole = spec.DocumentRole
		if _, err := pe.cfg.States.Load(ctx, childID); err == nil {
			continue // already created by a prior attempt
		}
		if err := pe.cfg.States.Save(ctx, child); err != nil {
			return fmt.Errorf("persist child state %s: %w", childID, err)
		}
		emit(pe.cfg.Events, Event{Type: EventChildSpawned, ExecutionID: pe.state.ExecutionID, NodeID: node.ID,
			Data: map[string]any{"child_id": childID, "graph_ref": spec.GraphRef}})

		if pe.cfg.Spawn != nil {
			if err := pe.cfg.Spawn(ctx, child); err != nil {
				return fmt.Errorf("spawn child %s: %w", childID, err)
			}
		}
	}
	return nil
}

// persist saves the working state and emits a save event. Called after
// every transition that changes position, status, retry counts, or the
// pending interrupt; never batched.
func (pe *PlanExecutor) persist(ctx context.Context, working *ExecutionState) error {
	if err := pe.cfg.States.Save(ctx, working); err != nil {
		return fmt.Errorf("persist state for %s: %w", working.ExecutionID, err)
	}
	emit(pe.cfg.Events, Event{Type: EventStateSaved, ExecutionID: working.ExecutionID, NodeID: working.CurrentNodeID})
	return nil
}

// latestResolution returns the resolution payload of the most recently
// resolved interrupt for the given node. Reading it from the store (rather
// than memory) keeps resume correct across a crash between resolve and step.
func (pe *PlanExecutor) latestResolution(ctx context.Context, nodeID string) (string, error) {
	all, err := pe.cfg.Interrupts.interrupts.ListInterrupts(ctx, pe.state.ExecutionID)
	if err != nil {
		return "", err
	}
	var payload string
	for _, intr := range all {
		if intr.NodeID == nodeID && intr.Resolved() {
			payload = intr.ResolutionPayload
		}
	}
	return payload, nil
}

// hasQANode reports whether any qa node's failed edge targets nodeID,
// meaning a separate qa node owns this task's validation.
func hasQANode(g *Graph, nodeID string) bool {
	for _, n := range g.Nodes {
		if n.Kind != KindQA {
			continue
		}
		for _, e := range g.OutgoingEdges(n.ID) {
			if e.To != nil && *e.To == nodeID {
				return true
			}
		}
	}
	return false
}

// safeExecute wraps executor invocation with panic recovery so one
// misbehaving executor cannot take down the engine.
func safeExecute(ctx context.Context, ex NodeExecutor, node *Node, sc *StepContext) (result *NodeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("executor panic in node %q: %v\n%s", node.ID, r, stack)
			result = nil
		}
	}()
	return ex.Execute(ctx, node, sc)
}
