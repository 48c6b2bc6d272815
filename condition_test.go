package pdp

import (
	"testing"
	"time"
)

func testAttrs() *Attributes {
	attrs := NewAttributes()
	attrs.Set(NamespaceSubject, "department", StringAttr("engineering", "test"))
	attrs.Set(NamespaceSubject, "clearance", NumberAttr(3, "test"))
	attrs.Set(NamespaceSubject, "groups", SetAttr([]string{"eng", "oncall"}, "test"))
	attrs.Set(NamespaceSubject, "active", BoolAttr(true, "test"))
	attrs.Set(NamespaceResource, "owner", StringAttr("alice", "test"))
	attrs.Set(NamespaceEnvironment, "request_time", TimeAttr(time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), "test"))
	return attrs
}

func TestConditionEquality(t *testing.T) {
	attrs := testAttrs()

	eq := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: OpEquals, Value: "engineering"}
	if !eq.Evaluate(attrs) {
		t.Fatalf("expected equals to hold")
	}
	neq := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotEquals, Value: "sales"}
	if !neq.Evaluate(attrs) {
		t.Fatalf("expected not_equals to hold")
	}
	boolEq := &Condition{Namespace: NamespaceSubject, Attribute: "active", Operator: OpEquals, Value: true}
	if !boolEq.Evaluate(attrs) {
		t.Fatalf("expected boolean equals to hold")
	}
}

func TestConditionOrdering(t *testing.T) {
	attrs := testAttrs()

	cases := []struct {
		op    Operator
		value any
		want  bool
	}{
		{OpGreaterThan, 2, true},
		{OpGreaterThan, 3, false},
		{OpGreaterThanOrEqual, 3, true},
		{OpLessThan, 4, true},
		{OpLessThanOrEqual, 2, false},
	}
	for _, tc := range cases {
		c := &Condition{Namespace: NamespaceSubject, Attribute: "clearance", Operator: tc.op, Value: tc.value}
		if got := c.Evaluate(attrs); got != tc.want {
			t.Fatalf("clearance %s %v: got %v, want %v", tc.op, tc.value, got, tc.want)
		}
	}
}

func TestConditionTimestampOrdering(t *testing.T) {
	attrs := testAttrs()

	before := &Condition{
		Namespace: NamespaceEnvironment,
		Attribute: "request_time",
		Operator:  OpLessThan,
		Value:     "2026-03-01T18:00:00Z",
	}
	if !before.Evaluate(attrs) {
		t.Fatalf("expected request_time before cutoff")
	}
	after := &Condition{
		Namespace: NamespaceEnvironment,
		Attribute: "request_time",
		Operator:  OpGreaterThan,
		Value:     "2026-03-01T18:00:00Z",
	}
	if after.Evaluate(attrs) {
		t.Fatalf("expected request_time not after cutoff")
	}
}

func TestConditionMembership(t *testing.T) {
	attrs := testAttrs()

	in := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: OpIn, Value: []string{"engineering", "sre"}}
	if !in.Evaluate(attrs) {
		t.Fatalf("expected in to hold")
	}
	notIn := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotIn, Value: []string{"sales"}}
	if !notIn.Evaluate(attrs) {
		t.Fatalf("expected not_in to hold")
	}
	contains := &Condition{Namespace: NamespaceSubject, Attribute: "groups", Operator: OpContains, Value: "oncall"}
	if !contains.Evaluate(attrs) {
		t.Fatalf("expected contains to hold")
	}
	notContains := &Condition{Namespace: NamespaceSubject, Attribute: "groups", Operator: OpNotContains, Value: "finance"}
	if !notContains.Evaluate(attrs) {
		t.Fatalf("expected not_contains to hold")
	}
}

func TestConditionMatches(t *testing.T) {
	attrs := testAttrs()

	m := &Condition{Namespace: NamespaceResource, Attribute: "owner", Operator: OpMatches, Value: "^ali.*"}
	if !m.Evaluate(attrs) {
		t.Fatalf("expected matches to hold")
	}
	bad := &Condition{Namespace: NamespaceResource, Attribute: "owner", Operator: OpMatches, Value: "["}
	if bad.Evaluate(attrs) {
		t.Fatalf("invalid pattern must evaluate to false")
	}
}

func TestConditionMissingAttribute(t *testing.T) {
	attrs := testAttrs()

	// A missing attribute never satisfies a condition, even a negated one.
	for _, op := range []Operator{OpEquals, OpNotEquals, OpNotIn, OpNotContains, OpNotMatches} {
		c := &Condition{Namespace: NamespaceSubject, Attribute: "nonexistent", Operator: op, Value: "x"}
		if c.Evaluate(attrs) {
			t.Fatalf("operator %s on missing attribute must be false", op)
		}
	}
}

func TestConditionTypeMismatch(t *testing.T) {
	attrs := testAttrs()

	// Ordering a string attribute against a number is a mismatch, not a panic.
	c := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: OpGreaterThan, Value: 5}
	if c.Evaluate(attrs) {
		t.Fatalf("type mismatch must evaluate to false")
	}
	// contains on a non-set, non-string attribute.
	c2 := &Condition{Namespace: NamespaceSubject, Attribute: "active", Operator: OpContains, Value: "x"}
	if c2.Evaluate(attrs) {
		t.Fatalf("contains on boolean must evaluate to false")
	}

	// A mismatch must not flip negated operators to true: there was no
	// comparison to negate.
	mismatches := []Condition{
		{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotEquals, Value: 5},
		{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotIn, Value: 5},
		{Namespace: NamespaceSubject, Attribute: "groups", Operator: OpNotContains, Value: 5},
		{Namespace: NamespaceSubject, Attribute: "active", Operator: OpNotIn, Value: []any{"x"}},
		{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotMatches, Value: 5},
		{Namespace: NamespaceSubject, Attribute: "department", Operator: OpNotMatches, Value: "["},
	}
	for _, c := range mismatches {
		if c.Evaluate(attrs) {
			t.Fatalf("%s with mismatched value %v must evaluate to false", c.Operator, c.Value)
		}
	}
}

func TestConditionUnknownOperator(t *testing.T) {
	attrs := testAttrs()
	c := &Condition{Namespace: NamespaceSubject, Attribute: "department", Operator: "bogus", Value: "engineering"}
	if c.Evaluate(attrs) {
		t.Fatalf("unknown operator must evaluate to false")
	}
}
