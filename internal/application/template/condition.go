package template

import (
	"encoding/json"
	"strconv"
	"strings"
)

type conditionKind int

const (
	kindThreshold conditionKind = iota + 1
	kindEquals
	kindBoolEquals
)

// Condition is a predicate over trigger data. Build one with Threshold,
// Equals or BoolEquals.
type Condition struct {
	kind  conditionKind
	key   string
	min   float64
	value string
	flag  bool
}

// Threshold holds when data[key] is numeric and at least min.
func Threshold(key string, min float64) Condition {
	return Condition{kind: kindThreshold, key: key, min: min}
}

// Equals holds when data[key] is the string value.
func Equals(key, value string) Condition {
	return Condition{kind: kindEquals, key: key, value: value}
}

// BoolEquals holds when data[key] coerces to the boolean value.
func BoolEquals(key string, value bool) Condition {
	return Condition{kind: kindBoolEquals, key: key, flag: value}
}

func (c Condition) Key() string { return c.key }

// Satisfied evaluates the condition. A missing key or a value that cannot be
// coerced is simply unsatisfied.
func (c Condition) Satisfied(data map[string]any) bool {
	actual, ok := data[c.key]
	if !ok {
		return false
	}
	switch c.kind {
	case kindThreshold:
		n, ok := toFloat(actual)
		return ok && n >= c.min
	case kindEquals:
		s, ok := actual.(string)
		return ok && s == c.value
	case kindBoolEquals:
		b, ok := toBool(actual)
		return ok && b == c.flag
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return parsed, err == nil
	}
	return false, false
}
