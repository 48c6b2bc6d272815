package pdp

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func cond(ns Namespace, attr string, op Operator, value any) *RuleNode {
	return Cond(Condition{Namespace: ns, Attribute: attr, Operator: op, Value: value})
}

func TestRuleLogicalOperators(t *testing.T) {
	attrs := testAttrs()

	and, err := NewRule(OpAnd,
		cond(NamespaceSubject, "department", OpEquals, "engineering"),
		cond(NamespaceSubject, "clearance", OpGreaterThanOrEqual, 3),
	)
	if err != nil {
		t.Fatalf("build and rule: %v", err)
	}
	if !and.Evaluate(attrs) {
		t.Fatalf("expected and rule to hold")
	}

	or, err := NewRule(OpOr,
		cond(NamespaceSubject, "department", OpEquals, "sales"),
		cond(NamespaceSubject, "clearance", OpGreaterThanOrEqual, 3),
	)
	if err != nil {
		t.Fatalf("build or rule: %v", err)
	}
	if !or.Evaluate(attrs) {
		t.Fatalf("expected or rule to hold")
	}

	inner, _ := NewRule(OpAnd, cond(NamespaceSubject, "department", OpEquals, "sales"))
	not, err := NewRule(OpNot, Group(inner))
	if err != nil {
		t.Fatalf("build not rule: %v", err)
	}
	if !not.Evaluate(attrs) {
		t.Fatalf("expected not rule to hold")
	}
}

func TestRuleNotArity(t *testing.T) {
	c1 := cond(NamespaceSubject, "department", OpEquals, "engineering")
	c2 := cond(NamespaceSubject, "clearance", OpGreaterThan, 1)

	if _, err := NewRule(OpNot, c1, c2); err == nil {
		t.Fatalf("not with two children must fail validation")
	}
	if _, err := NewRule(OpNot); err == nil {
		t.Fatalf("not with no children must fail validation")
	}
	if _, err := NewRule(OpAnd); err == nil {
		t.Fatalf("and with no children must fail validation")
	}
	if _, err := NewRule("xor", c1); err == nil {
		t.Fatalf("unknown operator must fail validation")
	}
}

func TestRuleJSONDecode(t *testing.T) {
	doc := `{
		"op": "and",
		"children": [
			{"namespace": "subject", "attribute": "department", "operator": "equals", "value": "engineering"},
			{"op": "or", "children": [
				{"namespace": "subject", "attribute": "clearance", "operator": "greater_than", "value": 2},
				{"namespace": "subject", "attribute": "groups", "operator": "contains", "value": "oncall"}
			]}
		]
	}`
	rule := &Rule{}
	if err := json.Unmarshal([]byte(doc), rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if !rule.Evaluate(testAttrs()) {
		t.Fatalf("expected decoded rule to hold")
	}
}

func TestRuleJSONDecodeRejectsBadNot(t *testing.T) {
	doc := `{
		"op": "not",
		"children": [
			{"namespace": "subject", "attribute": "a", "operator": "equals", "value": 1},
			{"namespace": "subject", "attribute": "b", "operator": "equals", "value": 2}
		]
	}`
	rule := &Rule{}
	if err := json.Unmarshal([]byte(doc), rule); err == nil {
		t.Fatalf("not with two children must fail decoding")
	}
}

func TestRuleYAMLDecode(t *testing.T) {
	doc := `
op: or
children:
  - namespace: subject
    attribute: department
    operator: equals
    value: sales
  - namespace: subject
    attribute: department
    operator: equals
    value: engineering
`
	rule := &Rule{}
	if err := yaml.Unmarshal([]byte(doc), rule); err != nil {
		t.Fatalf("decode yaml rule: %v", err)
	}
	if !rule.Evaluate(testAttrs()) {
		t.Fatalf("expected decoded yaml rule to hold")
	}
}

func TestRuleJSONRoundTrip(t *testing.T) {
	inner, _ := NewRule(OpOr,
		cond(NamespaceSubject, "clearance", OpGreaterThan, 2),
		cond(NamespaceSubject, "groups", OpContains, "oncall"),
	)
	rule, _ := NewRule(OpAnd,
		cond(NamespaceSubject, "department", OpEquals, "engineering"),
		Group(inner),
	)

	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal rule: %v", err)
	}
	decoded := &Rule{}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}
	if !decoded.Evaluate(testAttrs()) {
		t.Fatalf("round-tripped rule must evaluate identically")
	}
}
