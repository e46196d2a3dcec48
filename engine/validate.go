// ABOUTME: Graph validation rules that check structure and node/edge config before any execution starts.
// ABOUTME: Provides a pluggable LintRule interface, built-in rules, Validate, and ValidateOrError.
package engine

import (
	"fmt"
)

// Severity represents diagnostic severity level.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// String returns a human-readable name for the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	case SeverityInfo:
		return "INFO"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Diagnostic represents a validation finding.
type Diagnostic struct {
	Rule     string
	Severity Severity
	Message  string
	NodeID   string // optional
	EdgeID   string // optional
	Fix      string // optional suggested fix
}

// LintRule is the interface for validation rules.
type LintRule interface {
	Name() string
	Apply(g *Graph) []Diagnostic
}

var validQAModes = map[QAMode]bool{
	QAModeStructural: true,
	QAModeSemantic:   true,
	QAModeHybrid:     true,
}

var validTerminalOutcomes = map[TerminalOutcome]bool{
	TerminalStabilized: true,
	TerminalBlocked:    true,
	TerminalAbandoned:  true,
}

var validGateKinds = map[GateKind]bool{
	GateIntake:       true,
	GateDiscovery:    true,
	GatePlan:         true,
	GateArchitecture: true,
	GateWorkPackage:  true,
	GateRemediation:  true,
	GateCompliance:   true,
}

var validNodeKinds = map[NodeKind]bool{
	KindTask:       true,
	KindQA:         true,
	KindGate:       true,
	KindIntakeGate: true,
	KindEnd:        true,
}

var validOperators = map[string]bool{
	"eq": true, "ne": true, "lt": true, "lte": true, "gt": true, "gte": true,
}

// builtinRules returns all built-in lint rules.
func builtinRules() []LintRule {
	return []LintRule{
		&uniqueIDsRule{},
		&entryNodesRule{},
		&edgeEndpointsRule{},
		&reachabilityRule{},
		&endNodeRule{},
		&nodeKindRule{},
		&conditionOperatorRule{},
		&failureEdgeRule{},
		&nonAdvancingEdgeRule{},
		&gateConfigRule{},
	}
}

// Validate runs all built-in lint rules plus any extra rules on the graph.
func Validate(g *Graph, extraRules ...LintRule) []Diagnostic {
	var diags []Diagnostic
	rules := builtinRules()
	rules = append(rules, extraRules...)
	for _, rule := range rules {
		diags = append(diags, rule.Apply(g)...)
	}
	return diags
}

// ValidateOrError runs validation and returns an error if any ERROR-severity
// diagnostics exist. A malformed graph is rejected here, never at run time.
func ValidateOrError(g *Graph, extraRules ...LintRule) ([]Diagnostic, error) {
	diags := Validate(g, extraRules...)
	var errCount int
	for _, d := range diags {
		if d.Severity == SeverityError {
			errCount++
		}
	}
	if errCount > 0 {
		return diags, fmt.Errorf("%w: %d error(s): %s", ErrGraphInvalid, errCount, firstError(diags))
	}
	return diags, nil
}

func firstError(diags []Diagnostic) string {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return d.Message
		}
	}
	return ""
}

// --- Built-in lint rules ---

// uniqueIDsRule checks that node and edge IDs are unique within the graph.
type uniqueIDsRule struct{}

func (r *uniqueIDsRule) Name() string { return "unique_ids" }

func (r *uniqueIDsRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	seenNodes := map[string]bool{}
	for _, n := range g.Nodes {
		if n.ID == "" {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, Message: "node with empty node_id"})
			continue
		}
		if seenNodes[n.ID] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("duplicate node_id %q", n.ID)})
		}
		seenNodes[n.ID] = true
	}
	seenEdges := map[string]bool{}
	for _, e := range g.Edges {
		if e.ID == "" {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, Message: "edge with empty edge_id"})
			continue
		}
		if seenEdges[e.ID] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
				Message: fmt.Sprintf("duplicate edge_id %q", e.ID)})
		}
		seenEdges[e.ID] = true
	}
	return diags
}

// entryNodesRule checks that at least one entry node is declared and that
// every declared entry references an existing node.
type entryNodesRule struct{}

func (r *entryNodesRule) Name() string { return "entry_nodes" }

func (r *entryNodesRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	if len(g.EntryIDs) == 0 {
		diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError,
			Message: "graph declares no entry_node_ids",
			Fix:     "add at least one entry node id"})
	}
	for _, id := range g.EntryIDs {
		if g.FindNode(id) == nil {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: id,
				Message: fmt.Sprintf("entry node %q does not exist", id)})
		}
	}
	return diags
}

// edgeEndpointsRule checks that every edge references existing nodes.
type edgeEndpointsRule struct{}

func (r *edgeEndpointsRule) Name() string { return "edge_endpoints" }

func (r *edgeEndpointsRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges {
		if g.FindNode(e.From) == nil {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
				Message: fmt.Sprintf("edge %q originates from nonexistent node %q", e.ID, e.From)})
		}
		if e.To != nil && g.FindNode(*e.To) == nil {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
				Message: fmt.Sprintf("edge %q points to nonexistent node %q", e.ID, *e.To)})
		}
	}
	return diags
}

// reachabilityRule checks that every non-entry node is reachable from an entry node.
type reachabilityRule struct{}

func (r *reachabilityRule) Name() string { return "reachability" }

func (r *reachabilityRule) Apply(g *Graph) []Diagnostic {
	if len(g.EntryIDs) == 0 {
		return nil // entryNodesRule reports this
	}
	visited := map[string]bool{}
	queue := append([]string{}, g.EntryIDs...)
	for _, id := range g.EntryIDs {
		visited[id] = true
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.OutgoingEdges(current) {
			if e.To == nil {
				continue
			}
			if !visited[*e.To] {
				visited[*e.To] = true
				queue = append(queue, *e.To)
			}
		}
	}
	var diags []Diagnostic
	for _, n := range g.Nodes {
		if !visited[n.ID] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("node %q is unreachable from any entry node", n.ID)})
		}
	}
	return diags
}

// endNodeRule checks that end nodes declare a valid terminal outcome and
// have no outgoing edges, and that at least one end node exists.
type endNodeRule struct{}

func (r *endNodeRule) Name() string { return "end_nodes" }

func (r *endNodeRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	endCount := 0
	for _, n := range g.Nodes {
		if n.Kind != KindEnd {
			continue
		}
		endCount++
		if !validTerminalOutcomes[n.TerminalOutcome] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("end node %q has invalid terminal_outcome %q", n.ID, n.TerminalOutcome),
				Fix:     "use stabilized, blocked, or abandoned"})
		}
		if len(g.OutgoingEdges(n.ID)) > 0 {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("end node %q has outgoing edges", n.ID)})
		}
	}
	if endCount == 0 {
		diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError,
			Message: "graph has no end node"})
	}
	return diags
}

// nodeKindRule checks that every node declares a known kind.
type nodeKindRule struct{}

func (r *nodeKindRule) Name() string { return "node_kind" }

func (r *nodeKindRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes {
		if !validNodeKinds[n.Kind] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("node %q has unknown kind %q", n.ID, n.Kind)})
		}
		if n.Kind == KindQA && n.QAMode != "" && !validQAModes[n.QAMode] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("qa node %q has unknown qa_mode %q", n.ID, n.QAMode)})
		}
	}
	return diags
}

// conditionOperatorRule checks that edge conditions use known operators.
type conditionOperatorRule struct{}

func (r *conditionOperatorRule) Name() string { return "condition_operator" }

func (r *conditionOperatorRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges {
		for _, c := range e.Conditions {
			if !validOperators[c.Operator] {
				diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
					Message: fmt.Sprintf("edge %q condition uses unknown operator %q", e.ID, c.Operator),
					Fix:     "use one of eq, ne, lt, lte, gt, gte"})
			}
			if c.Type == "" {
				diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
					Message: fmt.Sprintf("edge %q condition has empty type", e.ID)})
			}
		}
	}
	return diags
}

// failureEdgeRule checks that every qa node and every requires_qa task has an
// unconditional "failed" edge. Remediation exhaustion routes through that
// edge; without it exhaustion would have nowhere to go at run time.
type failureEdgeRule struct{}

func (r *failureEdgeRule) Name() string { return "failure_edge" }

func (r *failureEdgeRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes {
		needsFailEdge := n.Kind == KindQA || (n.Kind == KindTask && n.RequiresQA)
		if !needsFailEdge {
			continue
		}
		hasUnconditionalFail := false
		for _, e := range g.OutgoingEdges(n.ID) {
			if e.Outcome == OutcomeFailed && len(e.Conditions) == 0 {
				hasUnconditionalFail = true
				break
			}
		}
		if !hasUnconditionalFail {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("node %q can fail but has no unconditional %q edge", n.ID, OutcomeFailed),
				Fix:     "add a failed edge, typically to an end node with terminal_outcome=blocked"})
		}
	}
	return diags
}

// nonAdvancingEdgeRule checks that null-target edges only appear on
// non-advancing nodes, and warns when a non-advancing node has none.
type nonAdvancingEdgeRule struct{}

func (r *nonAdvancingEdgeRule) Name() string { return "non_advancing_edge" }

func (r *nonAdvancingEdgeRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, e := range g.Edges {
		if e.To != nil {
			continue
		}
		n := g.FindNode(e.From)
		if n == nil {
			continue // edgeEndpointsRule reports this
		}
		if !n.NonAdvancing {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, EdgeID: e.ID,
				Message: fmt.Sprintf("edge %q has null target but node %q is not non_advancing", e.ID, n.ID)})
		}
	}
	return diags
}

// gateConfigRule checks gate node configuration: a valid gate kind and, when
// set, a known merge strategy.
type gateConfigRule struct{}

func (r *gateConfigRule) Name() string { return "gate_config" }

func (r *gateConfigRule) Apply(g *Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes {
		if n.Kind != KindGate {
			continue
		}
		if !validGateKinds[n.GateKind] {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("gate node %q has invalid gate_kind %q", n.ID, n.GateKind)})
		}
		if n.Merge != "" && n.Merge != MergeLLM && n.Merge != MergeMechanical {
			diags = append(diags, Diagnostic{Rule: r.Name(), Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("gate node %q has unknown merge strategy %q", n.ID, n.Merge)})
		}
	}
	return diags
}
