// ABOUTME: Edge router: selects exactly one outgoing edge for a node result, or fails as a graph defect.
// ABOUTME: Tie-break is first-eligible-in-definition-order; editors render edges in list order.
package engine

import (
	"fmt"
)

// Route is the router's decision for one step.
type Route struct {
	Edge *Edge

	// Reexecute is true when the selected edge has a null target on a
	// non-advancing node: the same node runs again in place.
	Reexecute bool
}

// SelectEdge picks the next edge for a node given the result and execution
// context. Eligibility: the edge's outcome tag matches, every condition
// evaluates true, and user_choice edges are explicitly selected by edge_id.
// Among eligible edges the first in definition order wins. Returns
// ErrNoEligibleEdge when nothing matches; that is a malformed graph, not a
// recoverable condition.
func SelectEdge(g *Graph, node *Node, result *NodeResult, state *ExecutionState) (*Route, error) {
	edges := g.OutgoingEdges(node.ID)
	ec := EvalContext{State: state, NodeID: node.ID, Outcome: result.Outcome}

	for _, e := range edges {
		if e.Outcome != result.Outcome {
			continue
		}
		if e.Kind == EdgeUserChoice && e.ID != result.SelectedEdgeID {
			continue
		}
		if !EvaluateConditions(e.Conditions, ec) {
			continue
		}
		if e.To == nil {
			if !node.NonAdvancing {
				// Load-time validation rejects this shape; guard anyway.
				return nil, fmt.Errorf("%w: edge %q has null target on advancing node %q", ErrNoEligibleEdge, e.ID, node.ID)
			}
			return &Route{Edge: e, Reexecute: true}, nil
		}
		return &Route{Edge: e}, nil
	}

	return nil, fmt.Errorf("%w: node %q outcome %q", ErrNoEligibleEdge, node.ID, result.Outcome)
}
