// ABOUTME: NodeExecutor interface and the explicit per-kind executor registry.
// ABOUTME: The registry is constructed at startup and injected; there are no package-level singletons.
package engine

import (
	"context"
	"fmt"
)

// StepContext is what an executor sees for one step: the graph, a read-only
// view of execution state, and the external collaborators. Executors confine
// side effects to the document store and report everything else through
// NodeResult.
type StepContext struct {
	Graph     *Graph
	State     *ExecutionState
	Docs      DocumentStore
	Prompts   PromptAssembler
	Completer Completer
	Checker   ContractChecker

	// Resolution carries the payload of a just-resolved interrupt when the
	// plan executor re-enters a suspended node. Empty otherwise.
	Resolution string
}

// NodeExecutor executes one node kind. The plan executor depends only on the
// NodeResult contract, never on kind-specific fields.
type NodeExecutor interface {
	Kind() NodeKind
	Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error)
}

// ExecutorRegistry maps node kinds to executors. It is a closed set: the
// five built-in kinds cover every node a valid graph can contain.
type ExecutorRegistry struct {
	executors map[NodeKind]NodeExecutor
}

// NewExecutorRegistry creates an empty registry.
func NewExecutorRegistry() *ExecutorRegistry {
	return &ExecutorRegistry{executors: make(map[NodeKind]NodeExecutor)}
}

// Register adds an executor, replacing any previous one for the same kind.
func (r *ExecutorRegistry) Register(ex NodeExecutor) {
	r.executors[ex.Kind()] = ex
}

// Resolve returns the executor for a node's kind, or an error for unknown
// kinds. Validation rejects unknown kinds at load time, so an error here
// means the registry itself is misconfigured.
func (r *ExecutorRegistry) Resolve(node *Node) (NodeExecutor, error) {
	ex, ok := r.executors[node.Kind]
	if !ok {
		return nil, fmt.Errorf("no executor registered for node kind %q (node %q)", node.Kind, node.ID)
	}
	return ex, nil
}

// DefaultExecutorRegistry wires the five built-in executors.
func DefaultExecutorRegistry() *ExecutorRegistry {
	reg := NewExecutorRegistry()
	reg.Register(&TaskExecutor{})
	reg.Register(&QAExecutor{})
	reg.Register(&GateExecutor{})
	reg.Register(&IntakeExecutor{})
	reg.Register(&EndExecutor{})
	return reg
}
