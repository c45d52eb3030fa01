package query

import (
	"sort"
)

// Plan describes how a provider evaluates an expression
type Plan struct {
	Expression    string
	Optimizations []string
}

// Optimize returns a copy of expr whose AND groups evaluate their most
// selective conditions first
func Optimize(expr *Expression) (*Expression, []string) {
	optimized := *expr
	var applied []string
	if expr.Where != nil {
		where, changed := reorderConditions(expr.Where)
		optimized.Where = where
		if changed {
			applied = append(applied, "Reordered conditions for selectivity")
		}
	}
	return &optimized, applied
}

// Explain returns the evaluation plan of expr
func Explain(expr *Expression) *Plan {
	optimized, applied := Optimize(expr)
	return &Plan{Expression: optimized.String(), Optimizations: applied}
}

// reorderConditions copies pg with the conditions of every AND group sorted
// by score. OR groups keep their order.
func reorderConditions(pg *PredicateGroup) (*PredicateGroup, bool) {
	cp := &PredicateGroup{
		Conditions: append([]*Condition(nil), pg.Conditions...),
		Groups:     make([]*PredicateGroup, len(pg.Groups)),
		Or:         pg.Or,
	}
	changed := false
	for i, g := range pg.Groups {
		var groupChanged bool
		cp.Groups[i], groupChanged = reorderConditions(g)
		changed = changed || groupChanged
	}
	if pg.Or || len(cp.Conditions) <= 1 {
		return cp, changed
	}

	sort.SliceStable(cp.Conditions, func(i, j int) bool {
		return scoreCondition(cp.Conditions[i]) < scoreCondition(cp.Conditions[j])
	})
	for i := range cp.Conditions {
		if cp.Conditions[i] != pg.Conditions[i] {
			changed = true
			break
		}
	}
	return cp, changed
}

// scoreCondition assigns a selectivity score to a condition
// Lower scores are more selective (better to evaluate first)
func scoreCondition(cond *Condition) int {
	switch cond.Operator {
	case OpEqual:
		return 1
	case OpIn:
		if values, ok := cond.Value.([]interface{}); ok && len(values) <= 3 {
			return 2
		}
		return 4
	case OpIsNull, OpIsNotNull:
		return 3
	case OpBetween:
		return 5
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return 6
	case OpLike, OpILike:
		return 8
	case OpNotEqual, OpNotIn:
		return 10
	default:
		return 5
	}
}
