// ABOUTME: End executor: terminal nodes that map directly to a terminal outcome.
// ABOUTME: No further edges are evaluated after an end node runs.
package engine

import (
	"context"
	"fmt"
)

// EndExecutor runs end nodes. The node's terminal_outcome becomes the
// execution's final status; the plan executor applies the transition.
type EndExecutor struct{}

// Kind returns KindEnd.
func (e *EndExecutor) Kind() NodeKind { return KindEnd }

// Execute reports the terminal outcome as the result's outcome tag.
func (e *EndExecutor) Execute(ctx context.Context, node *Node, sc *StepContext) (*NodeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validTerminalOutcomes[node.TerminalOutcome] {
		// Load-time validation rejects this; guard against hand-built graphs.
		return nil, fmt.Errorf("end node %q has invalid terminal_outcome %q", node.ID, node.TerminalOutcome)
	}
	return &NodeResult{
		Outcome: string(node.TerminalOutcome),
		Notes:   "terminal: " + string(node.TerminalOutcome),
	}, nil
}

// terminalStatus maps an end node outcome tag to an execution status.
func terminalStatus(outcome string) (Status, bool) {
	switch TerminalOutcome(outcome) {
	case TerminalStabilized:
		return StatusStabilized, true
	case TerminalBlocked:
		return StatusBlocked, true
	case TerminalAbandoned:
		return StatusAbandoned, true
	default:
		return "", false
	}
}
