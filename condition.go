package pdp

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThan           Operator = "less_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpMatches            Operator = "matches"
	OpNotMatches         Operator = "not_matches"
)

// Condition compares one attribute against an expected value. It is
// stateless; the same condition may evaluate against many Attributes
// instances concurrently.
type Condition struct {
	Namespace Namespace `json:"namespace" yaml:"namespace"`
	Attribute string    `json:"attribute" yaml:"attribute"`
	Operator  Operator  `json:"operator" yaml:"operator"`
	Value     any       `json:"value" yaml:"value"`
}

func (c *Condition) String() string {
	return fmt.Sprintf("%s.%s %s %v", c.Namespace, c.Attribute, c.Operator, c.Value)
}

// Evaluate reports whether the condition holds for the given attributes.
// A missing attribute never satisfies a condition, negated operators
// included: "not_equals" still requires the attribute to exist and compare
// unequal. Type mismatches evaluate to false, never error; the comparison
// helpers report comparability separately from the result so a mismatch
// cannot flip a negated operator to true.
func (c *Condition) Evaluate(attrs *Attributes) bool {
	actual, found := attrs.Lookup(c.Namespace, c.Attribute)
	if !found {
		return false
	}
	switch c.Operator {
	case OpEquals:
		eq, ok := equalValue(actual, c.Value)
		return ok && eq
	case OpNotEquals:
		eq, ok := equalValue(actual, c.Value)
		return ok && !eq
	case OpGreaterThan:
		cmp, ok := orderValue(actual, c.Value)
		return ok && cmp > 0
	case OpGreaterThanOrEqual:
		cmp, ok := orderValue(actual, c.Value)
		return ok && cmp >= 0
	case OpLessThan:
		cmp, ok := orderValue(actual, c.Value)
		return ok && cmp < 0
	case OpLessThanOrEqual:
		cmp, ok := orderValue(actual, c.Value)
		return ok && cmp <= 0
	case OpIn:
		member, ok := memberOf(actual, c.Value)
		return ok && member
	case OpNotIn:
		member, ok := memberOf(actual, c.Value)
		return ok && !member
	case OpContains:
		has, ok := containsValue(actual, c.Value)
		return ok && has
	case OpNotContains:
		has, ok := containsValue(actual, c.Value)
		return ok && !has
	case OpMatches:
		matched, ok := matchesPattern(actual, c.Value)
		return ok && matched
	case OpNotMatches:
		matched, ok := matchesPattern(actual, c.Value)
		return ok && !matched
	}
	return false
}

// equalValue compares an attribute against an expected scalar or set. The
// second return reports comparability; a kind/type mismatch is not a
// comparison and must not satisfy either equals or not_equals.
func equalValue(actual AttributeValue, expected any) (bool, bool) {
	switch actual.Kind {
	case KindString:
		s, _ := actual.asString()
		es, ok := expected.(string)
		if !ok {
			return false, false
		}
		return s == es, true
	case KindNumber:
		n, _ := actual.asNumber()
		en, ok := toFloat(expected)
		if !ok {
			return false, false
		}
		return n == en, true
	case KindBoolean:
		b, _ := actual.asBool()
		eb, ok := expected.(bool)
		if !ok {
			return false, false
		}
		return b == eb, true
	case KindTimestamp:
		t, _ := actual.asTime()
		et, ok := toTime(expected)
		if !ok {
			return false, false
		}
		return t.Equal(et), true
	case KindStringSet:
		set, _ := actual.asSet()
		eset, ok := toStringSlice(expected)
		if !ok {
			return false, false
		}
		if len(set) != len(eset) {
			return false, true
		}
		seen := make(map[string]int, len(set))
		for _, s := range set {
			seen[s]++
		}
		for _, s := range eset {
			if seen[s] == 0 {
				return false, true
			}
			seen[s]--
		}
		return true, true
	}
	return false, false
}

// orderValue returns -1/0/1 for orderable kinds (number, timestamp, string).
func orderValue(actual AttributeValue, expected any) (int, bool) {
	switch actual.Kind {
	case KindNumber:
		n, _ := actual.asNumber()
		en, ok := toFloat(expected)
		if !ok {
			return 0, false
		}
		switch {
		case n < en:
			return -1, true
		case n > en:
			return 1, true
		}
		return 0, true
	case KindTimestamp:
		t, _ := actual.asTime()
		et, ok := toTime(expected)
		if !ok {
			return 0, false
		}
		switch {
		case t.Before(et):
			return -1, true
		case t.After(et):
			return 1, true
		}
		return 0, true
	case KindString:
		s, _ := actual.asString()
		es, ok := expected.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, es), true
	}
	return 0, false
}

// memberOf reports whether the actual scalar is a member of the expected
// collection, and whether the pair was comparable at all.
func memberOf(actual AttributeValue, expected any) (bool, bool) {
	switch actual.Kind {
	case KindString:
		s, _ := actual.asString()
		items, ok := toStringSlice(expected)
		if !ok {
			return false, false
		}
		for _, item := range items {
			if item == s {
				return true, true
			}
		}
		return false, true
	case KindNumber:
		n, _ := actual.asNumber()
		items, ok := expected.([]any)
		if !ok {
			return false, false
		}
		for _, item := range items {
			if f, ok := toFloat(item); ok && f == n {
				return true, true
			}
		}
		return false, true
	}
	return false, false
}

// containsValue reports whether the actual collection (or string) contains
// the expected scalar, and whether the pair was comparable at all.
func containsValue(actual AttributeValue, expected any) (bool, bool) {
	switch actual.Kind {
	case KindStringSet:
		set, _ := actual.asSet()
		es, ok := expected.(string)
		if !ok {
			return false, false
		}
		for _, s := range set {
			if s == es {
				return true, true
			}
		}
		return false, true
	case KindString:
		s, _ := actual.asString()
		es, ok := expected.(string)
		if !ok {
			return false, false
		}
		return strings.Contains(s, es), true
	}
	return false, false
}

// matchesPattern regex-matches the stringified actual value against the
// expected pattern. A non-string or uncompilable pattern is not a match
// attempt at all, so not_matches cannot ride on it either.
func matchesPattern(actual AttributeValue, expected any) (bool, bool) {
	pattern, ok := expected.(string)
	if !ok {
		return false, false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, false
	}
	return re.MatchString(stringify(actual)), true
}

func stringify(v AttributeValue) string {
	switch v.Kind {
	case KindString:
		s, _ := v.asString()
		return s
	case KindNumber:
		n, _ := v.asNumber()
		return strconvFloat(n)
	case KindTimestamp:
		t, _ := v.asTime()
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Value)
	}
}

func strconvFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

func toStringSlice(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
