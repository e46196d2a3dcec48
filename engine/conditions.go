// ABOUTME: Condition evaluation for edge guards against the current execution context.
// ABOUTME: Supports eq/ne/lt/lte/gt/gte with numeric comparison when both sides are numbers.
package engine

import (
	"fmt"
	"strconv"
)

// EvalContext is the slice of execution state visible to edge conditions.
type EvalContext struct {
	State   *ExecutionState
	NodeID  string
	Outcome string
}

// lookup resolves a condition type to its current value.
// "retry_count" resolves to the remediation count of the current node,
// "outcome" to the node result's outcome tag, "status" to the execution
// status, anything else to the execution's Vars map.
func (ec EvalContext) lookup(condType string) (any, bool) {
	switch condType {
	case "retry_count":
		return ec.State.RetryCounts[ec.NodeID], true
	case "outcome":
		return ec.Outcome, true
	case "status":
		return string(ec.State.Status), true
	default:
		v, ok := ec.State.Vars[condType]
		return v, ok
	}
}

// EvaluateConditions reports whether every condition on an edge holds.
// An edge with no conditions is unconditional and always eligible.
func EvaluateConditions(conds []Condition, ec EvalContext) bool {
	for _, c := range conds {
		if !evaluateCondition(c, ec) {
			return false
		}
	}
	return true
}

// evaluateCondition evaluates a single condition. A missing context value
// never matches: the edge is simply ineligible, not an error.
func evaluateCondition(c Condition, ec EvalContext) bool {
	actual, ok := ec.lookup(c.Type)
	if !ok {
		return false
	}

	if an, aok := toFloat(actual); aok {
		if en, eok := toFloat(c.Value); eok {
			return compareFloats(an, en, c.Operator)
		}
	}

	// Non-numeric comparison: only equality operators make sense.
	as := toString(actual)
	es := toString(c.Value)
	switch c.Operator {
	case "eq":
		return as == es
	case "ne":
		return as != es
	default:
		return false
	}
}

func compareFloats(a, b float64, op string) bool {
	switch op {
	case "eq":
		return a == b
	case "ne":
		return a != b
	case "lt":
		return a < b
	case "lte":
		return a <= b
	case "gt":
		return a > b
	case "gte":
		return a >= b
	default:
		return false
	}
}

// toFloat coerces ints, floats, and numeric strings. JSON unmarshals numbers
// as float64, so condition values arrive in that shape.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
