// ABOUTME: Project orchestrator: runs many plan executors concurrently under dependency constraints.
// ABOUTME: Upstream blocked/abandoned documents propagate blocked to dependents without starting them.
package engine

import (
	"context"
	"fmt"
	"sync"
)

// DefaultConcurrency bounds simultaneously running executions when the
// orchestrator config leaves the limit zero.
const DefaultConcurrency = 4

// DocumentSpec declares one document a project produces: which graph drives
// it and which documents must stabilize before it may start.
type DocumentSpec struct {
	Name      string   `json:"name" yaml:"name"`
	GraphRef  string   `json:"graph_ref" yaml:"graph_ref"`
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ProjectPlan is the set of documents a project produces.
type ProjectPlan struct {
	Name      string         `json:"name" yaml:"name"`
	Documents []DocumentSpec `json:"documents" yaml:"documents"`
}

// ProjectStatus aggregates per-document outcomes. Status is stabilized only
// when every document's execution reached stabilized.
type ProjectStatus struct {
	Status    Status            `json:"status"`
	Documents map[string]Status `json:"documents"`
}

// Orchestrator runs a project's plan executors concurrently, respecting
// inter-document dependencies. It only ever talks to plan executors, never
// to individual node executors.
type Orchestrator struct {
	cfg         Config
	plan        ProjectPlan
	concurrency int
	answerer    Answerer

	mu        sync.Mutex
	executors map[string]*PlanExecutor // document name -> executor
	statuses  map[string]Status        // document name -> last observed status
	children  []*ExecutionState        // dynamically spawned child executions
}

// OrchestratorOption configures optional orchestrator behavior.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency bounds how many executions run at once.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithAnswerer supplies operator answers during unattended runs. Without
// one, suspended executions stay paused and the project run reports them.
func WithAnswerer(a Answerer) OrchestratorOption {
	return func(o *Orchestrator) { o.answerer = a }
}

// NewOrchestrator creates an orchestrator for the given plan. The config's
// Spawn hook is replaced so child executions land back in this orchestrator.
func NewOrchestrator(cfg Config, plan ProjectPlan, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		plan:        plan,
		concurrency: DefaultConcurrency,
		executors:   make(map[string]*PlanExecutor),
		statuses:    make(map[string]Status),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.Spawn = o.adopt
	return o
}

// adopt registers a spawned child execution for the next scheduling wave.
func (o *Orchestrator) adopt(ctx context.Context, child *ExecutionState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children = append(o.children, child)
	return nil
}

// Run drives the project to completion: start every ready document, wait for
// the wave to settle (a barrier, not a race), recompute readiness, repeat
// until nothing more can start. Cancellation is cooperative between steps.
func (o *Orchestrator) Run(ctx context.Context) (*ProjectStatus, error) {
	for {
		if err := ctx.Err(); err != nil {
			return o.status(), err
		}

		o.propagateBlocked()

		ready := o.readyDocuments()
		resumable := o.resumableExecutions(ctx)
		pending := o.adoptedChildren()

		if len(ready) == 0 && len(resumable) == 0 && len(pending) == 0 {
			return o.status(), nil
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, o.concurrency)
		errCh := make(chan error, len(ready)+len(resumable)+len(pending))

		runOne := func(name string, pe *PlanExecutor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			status, err := pe.Run(ctx)
			o.mu.Lock()
			o.statuses[name] = status
			o.mu.Unlock()
			if err != nil {
				errCh <- fmt.Errorf("execution for %q: %w", name, err)
			}
		}

		for _, name := range ready {
			spec := o.document(name)
			graph, err := o.cfg.Graphs.ResolveGraph(spec.GraphRef)
			if err != nil {
				return o.status(), fmt.Errorf("resolve graph %q for document %q: %w", spec.GraphRef, name, err)
			}
			pe, err := Start(ctx, o.cfg, graph, spec.GraphRef)
			if err != nil {
				return o.status(), fmt.Errorf("start execution for %q: %w", name, err)
			}
			o.mu.Lock()
			o.executors[name] = pe
			o.statuses[name] = StatusRunning
			o.mu.Unlock()
			wg.Add(1)
			go runOne(name, pe)
		}

		for _, child := range pending {
			graph, err := o.cfg.Graphs.ResolveGraph(child.GraphRef)
			if err != nil {
				return o.status(), fmt.Errorf("resolve graph %q for child %q: %w", child.GraphRef, child.ExecutionID, err)
			}
			name := childDocumentName(child)
			pe := Attach(o.cfg, graph, child)
			o.mu.Lock()
			o.executors[name] = pe
			o.statuses[name] = StatusRunning
			o.mu.Unlock()
			wg.Add(1)
			go runOne(name, pe)
		}

		for name, pe := range resumable {
			wg.Add(1)
			go runOne(name, pe)
		}

		wg.Wait()
		close(errCh)
		for err := range errCh {
			return o.status(), err
		}
	}
}

// resumableExecutions resolves pending interrupts through the answerer and
// returns the executions ready to continue. Without an answerer, paused
// executions stay paused; resolution then arrives via ResumeExecution.
func (o *Orchestrator) resumableExecutions(ctx context.Context) map[string]*PlanExecutor {
	resumable := make(map[string]*PlanExecutor)
	if o.answerer == nil {
		return resumable
	}

	o.mu.Lock()
	paused := make(map[string]*PlanExecutor)
	for name, pe := range o.executors {
		if o.statuses[name] == StatusPausedForInput {
			paused[name] = pe
		}
	}
	o.mu.Unlock()

	for name, pe := range paused {
		pending, err := o.cfg.Interrupts.Pending(ctx, pe.ExecutionID())
		if err != nil || len(pending) == 0 {
			continue
		}
		answer, err := o.answerer.Answer(ctx, pending[0])
		if err != nil {
			continue // stays paused; surfaced in project status
		}
		if _, err := o.cfg.Interrupts.Resolve(ctx, pending[0].InterruptID, answer); err != nil {
			continue
		}
		if err := pe.Reload(ctx); err != nil {
			continue
		}
		emit(o.cfg.Events, Event{Type: EventExecutionResumed, ExecutionID: pe.ExecutionID()})
		resumable[name] = pe
	}
	return resumable
}

// ResumeExecution reloads and re-runs one execution after an out-of-band
// interrupt resolution (the HTTP surface). Safe to call concurrently with a
// project run; step serialization lives in the plan executor.
func (o *Orchestrator) ResumeExecution(ctx context.Context, executionID string) (Status, error) {
	o.mu.Lock()
	var pe *PlanExecutor
	var name string
	for n, candidate := range o.executors {
		if candidate.ExecutionID() == executionID {
			pe, name = candidate, n
			break
		}
	}
	o.mu.Unlock()
	if pe == nil {
		return "", fmt.Errorf("%w: %s", ErrStateNotFound, executionID)
	}
	if err := pe.Reload(ctx); err != nil {
		return "", err
	}
	emit(o.cfg.Events, Event{Type: EventExecutionResumed, ExecutionID: executionID})
	status, err := pe.Run(ctx)
	o.mu.Lock()
	o.statuses[name] = status
	o.mu.Unlock()
	return status, err
}

// readyDocuments returns documents eligible to start: not yet started, with
// every upstream dependency stabilized.
func (o *Orchestrator) readyDocuments() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ready []string
	for _, doc := range o.plan.Documents {
		if _, started := o.statuses[doc.Name]; started {
			continue
		}
		eligible := true
		for _, dep := range doc.DependsOn {
			if o.statuses[dep] != StatusStabilized {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, doc.Name)
		}
	}
	return ready
}

// propagateBlocked marks documents blocked when any upstream dependency is
// blocked or abandoned. Propagated blocking is explicit status, not a
// silent skip; the document's execution never starts.
func (o *Orchestrator) propagateBlocked() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, doc := range o.plan.Documents {
		if _, started := o.statuses[doc.Name]; started {
			continue
		}
		for _, dep := range doc.DependsOn {
			depStatus := o.statuses[dep]
			if depStatus == StatusBlocked || depStatus == StatusAbandoned {
				o.statuses[doc.Name] = StatusBlocked
				emit(o.cfg.Events, Event{Type: EventDocumentBlocked,
					Data: map[string]any{"document": doc.Name, "dependency": dep, "dependency_status": string(depStatus)}})
				break
			}
		}
	}
}

// adoptedChildren drains the spawned-child queue.
func (o *Orchestrator) adoptedChildren() []*ExecutionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	children := o.children
	o.children = nil
	return children
}

// document returns the spec for a document name.
func (o *Orchestrator) document(name string) DocumentSpec {
	for _, doc := range o.plan.Documents {
		if doc.Name == name {
			return doc
		}
	}
	return DocumentSpec{}
}

// status computes the aggregate project status.
func (o *Orchestrator) status() *ProjectStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	ps := &ProjectStatus{Documents: make(map[string]Status, len(o.statuses))}
	for name, s := range o.statuses {
		ps.Documents[name] = s
	}

	allStabilized := len(o.plan.Documents) > 0
	anyPaused := false
	anyFailed := false
	for _, doc := range o.plan.Documents {
		switch ps.Documents[doc.Name] {
		case StatusStabilized:
		case StatusPausedForInput:
			anyPaused = true
			allStabilized = false
		case StatusBlocked, StatusAbandoned:
			anyFailed = true
			allStabilized = false
		default:
			allStabilized = false
		}
	}

	switch {
	case allStabilized:
		ps.Status = StatusStabilized
	case anyPaused:
		ps.Status = StatusPausedForInput
	case anyFailed:
		ps.Status = StatusBlocked
	default:
		ps.Status = StatusRunning
	}
	return ps
}

// Executions returns the orchestrator's executors keyed by document name.
func (o *Orchestrator) Executions() map[string]*PlanExecutor {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := make(map[string]*PlanExecutor, len(o.executors))
	for name, pe := range o.executors {
		result[name] = pe
	}
	return result
}

// childDocumentName derives a document name for a spawned child.
func childDocumentName(child *ExecutionState) string {
	if child.DocumentRole != "" {
		return child.DocumentRole + ":" + child.ExecutionID
	}
	return child.ExecutionID
}
