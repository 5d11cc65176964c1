package kpi

import (
	"strconv"
	"strings"
)

// Evaluate computes the signed reward (positive) or penalty (negative)
// amount for a record against its definition. Callers are expected to
// evaluate approved records only; that policy lives in the reporting layer.
//
// The penalty branch fires on actual > target, matching the behavior the
// reporting screens have always shown. Whether penalizing over-achievement
// is intended is an open product question (see DESIGN.md); it is preserved
// here rather than silently changed.
func Evaluate(def Definition, rec Record) float64 {
	if def.Penalty > 0 && rec.Actual > rec.Target {
		return -def.Penalty * rec.Actual
	}

	if def.Reward > 0 && rec.Actual >= rec.Target {
		var amount float64
		switch {
		case rec.Target == 0 && rec.Actual > 0:
			// Occurrence-style KPI: reward scales with the count.
			amount = def.Reward * rec.Actual
		case rec.Target > 0:
			// Flat reward; overshoot does not scale it.
			amount = def.Reward
		}
		if def.MaxReward > 0 && amount > def.MaxReward {
			amount = def.MaxReward
		}
		return amount
	}

	return 0
}

// Matches evaluates the condition's operator against an observed value.
// Numeric operators parse both sides as floats; contains operators work on
// the raw strings. Unparseable numeric input never matches.
func (c Condition) Matches(observed string) bool {
	switch c.Operator {
	case OpContains:
		return strings.Contains(observed, c.Value)
	case OpNotContains:
		return !strings.Contains(observed, c.Value)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(observed), 64)
	if err != nil {
		return false
	}
	want, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return false
	}

	switch c.Operator {
	case OpGTE:
		return value >= want
	case OpGT:
		return value > want
	case OpLTE:
		return value <= want
	case OpLT:
		return value < want
	case OpEQ:
		return value == want
	case OpNEQ:
		return value != want
	case OpBetween:
		upper, err := strconv.ParseFloat(strings.TrimSpace(c.SecondValue), 64)
		if err != nil {
			return false
		}
		return value >= want && value <= upper
	}
	return false
}

func (c Criterion) matches(observations map[string]string) bool {
	if len(c.Conditions) == 0 {
		return false
	}
	for _, cond := range c.Conditions {
		observed, ok := observations[cond.Metric]
		if !ok {
			return false
		}
		if !cond.Matches(observed) {
			return false
		}
	}
	return true
}

// EvaluateProgram sums the amounts of all satisfied criteria. Each
// criterion is independently satisfiable; within one criterion all
// conditions must match. MaxReward, when set, caps the total.
func (p Program) EvaluateProgram(observations map[string]string) float64 {
	var total float64
	for _, criterion := range p.Criteria {
		if criterion.matches(observations) {
			total += criterion.Amount
		}
	}
	if p.MaxReward > 0 && total > p.MaxReward {
		total = p.MaxReward
	}
	return total
}

// Grade maps an average completion percentage onto a letter grade.
func Grade(avgCompletionPct float64) string {
	switch {
	case avgCompletionPct >= 110:
		return "A+"
	case avgCompletionPct >= 100:
		return "A"
	case avgCompletionPct >= 90:
		return "B"
	case avgCompletionPct >= 75:
		return "C"
	default:
		return "D"
	}
}
