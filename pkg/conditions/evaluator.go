// Package conditions evaluates step conditions against entity snapshots.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/staffly/approvalflow/pkg/models"
)

// Evaluate folds the condition list left-to-right against the entity
// snapshot. Each condition's Logic field specifies how its result combines
// with the next condition; AND is the default connector. An empty condition
// list is vacuously true.
func Evaluate(conds []models.StepCondition, entity models.EntitySnapshot) bool {
	if len(conds) == 0 {
		return true
	}

	result := evaluateOne(conds[0], entity)

	for i := 1; i < len(conds); i++ {
		connector := conds[i-1].Logic
		if connector == "" {
			connector = models.LogicAnd
		}

		next := evaluateOne(conds[i], entity)

		if connector == models.LogicOr {
			result = result || next
		} else {
			result = result && next
		}
	}

	return result
}

// evaluateOne applies a single condition. Unresolvable fields are treated as
// undefined: every operator except notEquals fails closed.
func evaluateOne(cond models.StepCondition, entity models.EntitySnapshot) bool {
	fieldValue, present := entity[cond.Field]

	switch cond.Operator {
	case models.OperatorEquals:
		if !present {
			return false
		}

		return looseEqual(fieldValue, cond.Value)
	case models.OperatorNotEquals:
		if !present {
			return true
		}

		return !looseEqual(fieldValue, cond.Value)
	case models.OperatorGreaterThan:
		left, right, ok := numericPair(fieldValue, cond.Value)
		if !present || !ok {
			return false
		}

		return left > right
	case models.OperatorLessThan:
		left, right, ok := numericPair(fieldValue, cond.Value)
		if !present || !ok {
			return false
		}

		return left < right
	case models.OperatorContains:
		if !present {
			return false
		}

		haystack, ok := stringify(fieldValue)
		if !ok {
			return false
		}

		needle, ok := stringify(cond.Value)
		if !ok {
			return false
		}

		return strings.Contains(haystack, needle)
	default:
		return false
	}
}

// looseEqual compares two values after coercing them to the same shape:
// numeric pairs compare numerically, everything else compares by rendered
// string. This mirrors equality over flat JSON-ish entity fields where 80
// and "80" denote the same value.
func looseEqual(a, b any) bool {
	if left, right, ok := numericPair(a, b); ok {
		return left == right
	}

	leftStr, leftOK := stringify(a)

	rightStr, rightOK := stringify(b)
	if !leftOK || !rightOK {
		return false
	}

	return leftStr == rightStr
}

// numericPair coerces both values to float64, failing when either side is
// non-numeric.
func numericPair(a, b any) (float64, float64, bool) {
	left, leftOK := toFloat(a)

	right, rightOK := toFloat(b)
	if !leftOK || !rightOK {
		return 0, 0, false
	}

	return left, right, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

// stringify renders string-coercible values (strings, numbers, booleans).
// Maps, slices and nil are not string-coercible.
func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprint(s), true
	default:
		return "", false
	}
}
