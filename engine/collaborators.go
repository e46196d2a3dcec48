// ABOUTME: Contracts for the engine's external collaborators: LLM, prompt assembly, documents, schemas.
// ABOUTME: The engine depends only on these interfaces; concrete clients live outside this package.
package engine

import "context"

// Completion is the response from the LLM collaborator.
type Completion struct {
	Text  string
	Usage CompletionUsage
}

// CompletionUsage reports token accounting for a completion.
type CompletionUsage struct {
	InputTokens  int
	OutputTokens int
}

// Completer is the LLM collaborator contract. Any error feeds the remediation
// loop as outcome "failed"; callers must not distinguish transport failures
// from bad output at this layer.
type Completer interface {
	Complete(ctx context.Context, renderedPrompt string) (*Completion, error)
}

// PromptAssembler renders an opaque task reference plus execution context into
// a completion request. Prompt text semantics live outside the engine.
type PromptAssembler interface {
	Render(ctx context.Context, taskRef string, state *ExecutionState, extra map[string]string) (string, error)
}

// DocumentStore is the durable document collaborator.
type DocumentStore interface {
	Put(ctx context.Context, ref string, content []byte) error
	// Get returns ErrDocumentNotFound for unknown refs.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// SchemaCheck is one finding from a structural contract check.
type SchemaCheck struct {
	Path    string
	Message string
}

// ContractChecker validates produced content against an opaque schema
// reference. Used both by task executors (parse gate) and structural QA.
type ContractChecker interface {
	Check(ctx context.Context, schemaRef string, content []byte) ([]SchemaCheck, error)
}
