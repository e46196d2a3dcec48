// ABOUTME: Scripted completer returning canned responses in FIFO order.
// ABOUTME: Used by tests and dry runs to drive executions deterministically.

package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tommoseley/TheCombine-sub006/engine"
)

// ScriptCompleter returns pre-loaded completions in order. It records every
// prompt it receives so tests can assert on what was sent.
type ScriptCompleter struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

// NewScriptCompleter creates a ScriptCompleter pre-loaded with responses.
func NewScriptCompleter(responses ...string) *ScriptCompleter {
	return &ScriptCompleter{responses: append([]string{}, responses...)}
}

// Push appends more responses to the script.
func (s *ScriptCompleter) Push(responses ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

// Complete dequeues the next scripted response, or errors when exhausted.
func (s *ScriptCompleter) Complete(ctx context.Context, renderedPrompt string) (*engine.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, renderedPrompt)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("script exhausted after %d completions", len(s.prompts)-1)
	}
	text := s.responses[0]
	s.responses = s.responses[1:]
	return &engine.Completion{
		Text: text,
		Usage: engine.CompletionUsage{
			InputTokens:  len(renderedPrompt) / 4,
			OutputTokens: len(text) / 4,
		},
	}, nil
}

// Prompts returns a copy of every prompt received so far.
func (s *ScriptCompleter) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.prompts...)
}

var _ engine.Completer = (*ScriptCompleter)(nil)
