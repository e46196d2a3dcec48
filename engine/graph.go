// ABOUTME: Graph model for document-production workflows: nodes, typed edges, entry points.
// ABOUTME: Defines LoadGraph for the JSON definition format plus traversal helpers.
package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NodeKind identifies what executor a node dispatches to.
type NodeKind string

const (
	KindTask       NodeKind = "task"
	KindQA         NodeKind = "qa"
	KindGate       NodeKind = "gate"
	KindIntakeGate NodeKind = "intake_gate"
	KindEnd        NodeKind = "end"
)

// QAMode selects how a QA node validates a produced artifact.
type QAMode string

const (
	QAModeStructural QAMode = "structural"
	QAModeSemantic   QAMode = "semantic"
	QAModeHybrid     QAMode = "hybrid"
)

// TerminalOutcome is the status an End node assigns to the execution.
type TerminalOutcome string

const (
	TerminalStabilized TerminalOutcome = "stabilized"
	TerminalBlocked    TerminalOutcome = "blocked"
	TerminalAbandoned  TerminalOutcome = "abandoned"
)

// GateKind names the clarification slot a gate node fills.
type GateKind string

const (
	GateIntake       GateKind = "intake"
	GateDiscovery    GateKind = "discovery"
	GatePlan         GateKind = "plan"
	GateArchitecture GateKind = "architecture"
	GateWorkPackage  GateKind = "work_package"
	GateRemediation  GateKind = "remediation"
	GateCompliance   GateKind = "compliance"
)

// MergeStrategy selects how a gate merges answers into its clarification artifact.
type MergeStrategy string

const (
	MergeLLM        MergeStrategy = "llm"
	MergeMechanical MergeStrategy = "mechanical"
)

// EdgeKind distinguishes automatic routing from operator-chosen branches.
type EdgeKind string

const (
	EdgeAuto       EdgeKind = "auto"
	EdgeUserChoice EdgeKind = "user_choice"
)

// Condition is a guard on an edge. All conditions on an edge must hold.
type Condition struct {
	Type     string `json:"type"`
	Operator string `json:"operator"` // eq, ne, lt, lte, gt, gte
	Value    any    `json:"value"`
}

// Node is a single step definition in a workflow graph.
type Node struct {
	ID              string          `json:"node_id"`
	Kind            NodeKind        `json:"kind"`
	Label           string          `json:"label,omitempty"`
	TaskRef         string          `json:"task_ref,omitempty"`   // prompt template reference, opaque to the engine
	SchemaRef       string          `json:"schema_ref,omitempty"` // output contract reference, opaque to the engine
	DocumentRole    string          `json:"document_role,omitempty"`
	QAMode          QAMode          `json:"qa_mode,omitempty"`
	QATargetRole    string          `json:"qa_target_role,omitempty"`
	GateKind        GateKind        `json:"gate_kind,omitempty"`
	Merge           MergeStrategy   `json:"merge,omitempty"`
	TerminalOutcome TerminalOutcome `json:"terminal_outcome,omitempty"`
	RequiresQA      bool            `json:"requires_qa,omitempty"`
	NonAdvancing    bool            `json:"non_advancing,omitempty"`
	SpawnChildren   []ChildSpec     `json:"spawn_children,omitempty"`
}

// ChildSpec declares a child execution a node spawns once it completes.
type ChildSpec struct {
	GraphRef     string `json:"graph_ref"`
	DocumentRole string `json:"document_role"`
}

// Edge is a directed, outcome-tagged transition between nodes.
// A nil To on a non-advancing node re-executes the same node.
type Edge struct {
	ID         string      `json:"edge_id"`
	From       string      `json:"from_node_id"`
	To         *string     `json:"to_node_id"`
	Outcome    string      `json:"outcome"`
	Kind       EdgeKind    `json:"kind"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Graph is an immutable workflow definition. Build it with LoadGraph and do
// not mutate it afterwards; executions share a single Graph value.
type Graph struct {
	Name     string   `json:"name,omitempty"`
	Nodes    []*Node  `json:"nodes"`
	Edges    []*Edge  `json:"edges"`
	EntryIDs []string `json:"entry_node_ids"`

	byID map[string]*Node
}

// LoadGraph parses a JSON graph definition and validates it. A graph that
// fails validation with errors is rejected before any execution starts.
func LoadGraph(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse graph definition: %w", err)
	}
	g.index()
	if _, err := ValidateOrError(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

// index builds the node lookup map. Called by LoadGraph; exposed for tests
// that assemble graphs in code.
func (g *Graph) index() {
	g.byID = make(map[string]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		g.byID[n.ID] = n
	}
}

// FindNode returns the node with the given ID, or nil if not found.
func (g *Graph) FindNode(id string) *Node {
	if g.byID == nil {
		g.index()
	}
	return g.byID[id]
}

// OutgoingEdges returns all edges originating from the given node ID,
// in definition order. Definition order is load-bearing: the router's
// tie-break picks the first eligible edge.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	var result []*Edge
	for _, e := range g.Edges {
		if e.From == nodeID {
			result = append(result, e)
		}
	}
	return result
}

// IncomingEdges returns all edges terminating at the given node ID.
func (g *Graph) IncomingEdges(nodeID string) []*Edge {
	var result []*Edge
	for _, e := range g.Edges {
		if e.To != nil && *e.To == nodeID {
			result = append(result, e)
		}
	}
	return result
}

// EntryNodes resolves the declared entry points to nodes.
func (g *Graph) EntryNodes() []*Node {
	nodes := make([]*Node, 0, len(g.EntryIDs))
	for _, id := range g.EntryIDs {
		if n := g.FindNode(id); n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// NodeIDs returns all node IDs in sorted order for deterministic output.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

// FindEdge returns the edge with the given ID, or nil if not found.
func (g *Graph) FindEdge(id string) *Edge {
	for _, e := range g.Edges {
		if e.ID == id {
			return e
		}
	}
	return nil
}
