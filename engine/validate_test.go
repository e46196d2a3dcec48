// ABOUTME: Tests for the graph lint rules.
// ABOUTME: Each rule gets a minimal graph that triggers exactly its diagnostic.
package engine

import (
	"strings"
	"testing"
)

// diagnosticsFor runs validation and returns messages from the named rule.
func diagnosticsFor(g *Graph, rule string) []Diagnostic {
	var matched []Diagnostic
	for _, d := range Validate(g) {
		if d.Rule == rule {
			matched = append(matched, d)
		}
	}
	return matched
}

func endNode(id string) *Node {
	return &Node{ID: id, Kind: KindEnd, TerminalOutcome: TerminalStabilized}
}

func TestDuplicateNodeIDs(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{endNode("a"), endNode("a")},
	}
	if diags := diagnosticsFor(g, "unique_ids"); len(diags) == 0 {
		t.Error("expected duplicate node_id diagnostic")
	}
}

func TestDuplicateEdgeIDs(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask}, endNode("z")},
		Edges: []*Edge{
			{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess},
			{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeFailed},
		},
	}
	if diags := diagnosticsFor(g, "unique_ids"); len(diags) == 0 {
		t.Error("expected duplicate edge_id diagnostic")
	}
}

func TestMissingEntryNodes(t *testing.T) {
	g := &Graph{Nodes: []*Node{endNode("a")}}
	if diags := diagnosticsFor(g, "entry_nodes"); len(diags) == 0 {
		t.Error("expected missing entry diagnostic")
	}
}

func TestEntryNodeMustExist(t *testing.T) {
	g := &Graph{EntryIDs: []string{"ghost"}, Nodes: []*Node{endNode("a")}}
	if diags := diagnosticsFor(g, "entry_nodes"); len(diags) == 0 {
		t.Error("expected nonexistent entry diagnostic")
	}
}

func TestEdgeEndpointsMustExist(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "a", To: strPtr("ghost"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "edge_endpoints"); len(diags) == 0 {
		t.Error("expected nonexistent target diagnostic")
	}
}

func TestUnreachableNode(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask}, endNode("z"), {ID: "island", Kind: KindTask}},
		Edges:    []*Edge{{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	diags := diagnosticsFor(g, "reachability")
	if len(diags) != 1 || diags[0].NodeID != "island" {
		t.Errorf("reachability diagnostics = %v, want one for island", diags)
	}
}

func TestEndNodeOutgoingEdgesRejected(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{endNode("a"), endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "end_nodes"); len(diags) == 0 {
		t.Error("expected end-node-with-edges diagnostic")
	}
}

func TestEndNodeInvalidTerminalOutcome(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindEnd, TerminalOutcome: "exploded"}},
	}
	if diags := diagnosticsFor(g, "end_nodes"); len(diags) == 0 {
		t.Error("expected invalid terminal_outcome diagnostic")
	}
}

func TestGraphWithoutEndNode(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask, NonAdvancing: true}},
		Edges:    []*Edge{{ID: "e", From: "a", To: nil, Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "end_nodes"); len(diags) == 0 {
		t.Error("expected no-end-node diagnostic")
	}
}

func TestUnknownNodeKind(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: "mystery"}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "node_kind"); len(diags) == 0 {
		t.Error("expected unknown kind diagnostic")
	}
}

func TestUnknownQAMode(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"q"},
		Nodes:    []*Node{{ID: "q", Kind: KindQA, QAMode: "vibes"}, endNode("z")},
		Edges: []*Edge{
			{ID: "e1", From: "q", To: strPtr("z"), Outcome: OutcomePassed},
			{ID: "e2", From: "q", To: strPtr("z"), Outcome: OutcomeFailed},
		},
	}
	if diags := diagnosticsFor(g, "node_kind"); len(diags) == 0 {
		t.Error("expected unknown qa_mode diagnostic")
	}
}

func TestUnknownConditionOperator(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask}, endNode("z")},
		Edges: []*Edge{{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess,
			Conditions: []Condition{{Type: "retry_count", Operator: "approximately", Value: 1}}}},
	}
	if diags := diagnosticsFor(g, "condition_operator"); len(diags) == 0 {
		t.Error("expected unknown operator diagnostic")
	}
}

func TestQANodeRequiresUnconditionalFailedEdge(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"q"},
		Nodes:    []*Node{{ID: "q", Kind: KindQA}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "q", To: strPtr("z"), Outcome: OutcomePassed}},
	}
	diags := diagnosticsFor(g, "failure_edge")
	if len(diags) != 1 {
		t.Fatalf("failure_edge diagnostics = %v, want one", diags)
	}
	if !strings.Contains(diags[0].Message, "failed") {
		t.Errorf("message = %q", diags[0].Message)
	}
}

func TestConditionalFailedEdgeDoesNotSatisfyRule(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"q"},
		Nodes:    []*Node{{ID: "q", Kind: KindQA}, endNode("z")},
		Edges: []*Edge{
			{ID: "e1", From: "q", To: strPtr("z"), Outcome: OutcomePassed},
			{ID: "e2", From: "q", To: strPtr("z"), Outcome: OutcomeFailed,
				Conditions: []Condition{{Type: "retry_count", Operator: "gte", Value: 2}}},
		},
	}
	if diags := diagnosticsFor(g, "failure_edge"); len(diags) == 0 {
		t.Error("a conditional failed edge must not satisfy the failure edge rule")
	}
}

func TestRequiresQATaskNeedsFailedEdge(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask, RequiresQA: true, SchemaRef: "s"}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "a", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "failure_edge"); len(diags) == 0 {
		t.Error("expected failure edge diagnostic for requires_qa task")
	}
}

func TestNullTargetRequiresNonAdvancingNode(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"a"},
		Nodes:    []*Node{{ID: "a", Kind: KindTask}, endNode("z")},
		Edges: []*Edge{
			{ID: "e1", From: "a", To: nil, Outcome: OutcomeSuccess},
			{ID: "e2", From: "a", To: strPtr("z"), Outcome: OutcomeFailed},
		},
	}
	if diags := diagnosticsFor(g, "non_advancing_edge"); len(diags) == 0 {
		t.Error("expected null-target diagnostic on advancing node")
	}
}

func TestGateRequiresValidGateKind(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"g"},
		Nodes:    []*Node{{ID: "g", Kind: KindGate, GateKind: "vibes"}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "g", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "gate_config"); len(diags) == 0 {
		t.Error("expected invalid gate_kind diagnostic")
	}
}

func TestGateRejectsUnknownMergeStrategy(t *testing.T) {
	g := &Graph{
		EntryIDs: []string{"g"},
		Nodes:    []*Node{{ID: "g", Kind: KindGate, GateKind: GateDiscovery, Merge: "psychic"}, endNode("z")},
		Edges:    []*Edge{{ID: "e", From: "g", To: strPtr("z"), Outcome: OutcomeSuccess}},
	}
	if diags := diagnosticsFor(g, "gate_config"); len(diags) == 0 {
		t.Error("expected unknown merge strategy diagnostic")
	}
}

func TestValidGraphHasNoErrors(t *testing.T) {
	g := taskQAGraph(t)
	if diags, err := ValidateOrError(g); err != nil {
		t.Errorf("ValidateOrError() error = %v, diags = %v", err, diags)
	}
}
