// Package condition decides whether an event snapshot satisfies a rule's
// condition list.
package condition

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/marminbh/automation-svc/internal/models"
)

// Evaluate folds the conditions left to right. Each result is combined with
// the accumulator using the logical operator of the condition before it, so
// [A(AND), B(OR), C] is ((A AND B) OR C). An empty list always matches.
func Evaluate(conditions []models.Condition, snapshot models.Snapshot) bool {
	if len(conditions) == 0 {
		return true
	}

	acc := Check(conditions[0], snapshot)
	for i := 1; i < len(conditions); i++ {
		result := Check(conditions[i], snapshot)
		if conditions[i-1].LogicalOperator == models.LogicalOr {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}
	return acc
}

// Check evaluates a single condition. Unresolvable operands fail closed.
func Check(c models.Condition, snapshot models.Snapshot) bool {
	actual, _ := snapshot.Lookup(c.Field)

	switch c.Operator {
	case models.OpEquals:
		return equal(actual, c.Value)
	case models.OpNotEquals:
		return !equal(actual, c.Value)
	case models.OpGreaterThan, models.OpGreaterThanOrEqual, models.OpLessThan, models.OpLessThanOrEqual:
		return compare(c.Operator, actual, c.Value)
	case models.OpContains:
		return contains(actual, c.Value)
	case models.OpNotContains:
		return !contains(actual, c.Value)
	case models.OpStartsWith:
		s, ok := actual.(string)
		return ok && strings.HasPrefix(s, stringify(c.Value))
	case models.OpEndsWith:
		s, ok := actual.(string)
		return ok && strings.HasSuffix(s, stringify(c.Value))
	case models.OpIsEmpty:
		return isEmpty(actual)
	case models.OpIsNotEmpty:
		return !isEmpty(actual)
	case models.OpInList:
		list, ok := asList(c.Value)
		return ok && member(list, actual)
	case models.OpNotInList:
		list, ok := asList(c.Value)
		return ok && !member(list, actual)
	default:
		return false
	}
}

func compare(op models.Operator, actual, expected any) bool {
	a, ok := toNumber(actual)
	if !ok {
		return false
	}
	b, ok := toNumber(expected)
	if !ok {
		return false
	}

	switch op {
	case models.OpGreaterThan:
		return a > b
	case models.OpGreaterThanOrEqual:
		return a >= b
	case models.OpLessThan:
		return a < b
	case models.OpLessThanOrEqual:
		return a <= b
	}
	return false
}

// toNumber coerces JSON numbers, Go numerics and numeric strings
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func equal(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	if a, ok := toNumber(actual); ok {
		if _, isString := actual.(string); !isString {
			if b, ok := toNumber(expected); ok {
				return a == b
			}
		}
	}
	switch a := actual.(type) {
	case string:
		return a == stringify(expected)
	case bool:
		b, ok := expected.(bool)
		if !ok {
			return stringify(expected) == strconv.FormatBool(a)
		}
		return a == b
	}
	return reflect.DeepEqual(actual, expected)
}

func contains(actual, expected any) bool {
	switch a := actual.(type) {
	case string:
		return strings.Contains(a, stringify(expected))
	case nil:
		return false
	}
	if list, ok := asList(actual); ok {
		return member(list, expected)
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func member(list []any, v any) bool {
	for _, item := range list {
		if equal(v, item) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
