package pdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LogicalOp combines the children of a rule.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
	OpNot LogicalOp = "not"
)

// Rule is a boolean combination of conditions and/or nested rules. The
// children are ordered; NOT must wrap exactly one child, which is enforced
// at construction and decode time, never at evaluation time.
type Rule struct {
	Op       LogicalOp   `json:"op" yaml:"op"`
	Children []*RuleNode `json:"children" yaml:"children"`
}

// RuleNode is one element of a rule: either a condition leaf or a nested
// rule group. Exactly one of the two fields is set.
type RuleNode struct {
	Cond  *Condition
	Group *Rule
}

// NewRule builds a validated rule.
func NewRule(op LogicalOp, children ...*RuleNode) (*Rule, error) {
	r := &Rule{Op: op, Children: children}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Cond wraps a condition as a rule node.
func Cond(c Condition) *RuleNode {
	return &RuleNode{Cond: &c}
}

// Group wraps a rule as a rule node.
func Group(r *Rule) *RuleNode {
	return &RuleNode{Group: r}
}

// Validate checks the rule tree invariants: a known operator, at least one
// child, NOT with exactly one child, and each node carrying exactly one of
// condition/group.
func (r *Rule) Validate() error {
	switch r.Op {
	case OpAnd, OpOr:
		if len(r.Children) == 0 {
			return &ConfigError{Msg: fmt.Sprintf("%s rule requires at least one child", r.Op)}
		}
	case OpNot:
		if len(r.Children) != 1 {
			return &ConfigError{Msg: fmt.Sprintf("not rule requires exactly one child, got %d", len(r.Children))}
		}
	default:
		return &ConfigError{Msg: fmt.Sprintf("unknown rule operator %q", r.Op)}
	}
	for i, child := range r.Children {
		if child == nil {
			return &ConfigError{Msg: fmt.Sprintf("rule child %d is empty", i)}
		}
		if (child.Cond == nil) == (child.Group == nil) {
			return &ConfigError{Msg: fmt.Sprintf("rule child %d must be either a condition or a group", i)}
		}
		if child.Group != nil {
			if err := child.Group.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate applies the combinator over the children. Assumes a validated
// tree; an unvalidated NOT with the wrong arity is a construction bug, not
// an evaluation concern.
func (r *Rule) Evaluate(attrs *Attributes) bool {
	switch r.Op {
	case OpAnd:
		for _, child := range r.Children {
			if !child.evaluate(attrs) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range r.Children {
			if child.evaluate(attrs) {
				return true
			}
		}
		return false
	case OpNot:
		return !r.Children[0].evaluate(attrs)
	}
	return false
}

func (n *RuleNode) evaluate(attrs *Attributes) bool {
	if n.Cond != nil {
		return n.Cond.Evaluate(attrs)
	}
	if n.Group != nil {
		return n.Group.Evaluate(attrs)
	}
	return false
}

func (r *Rule) String() string {
	parts := make([]string, 0, len(r.Children))
	for _, child := range r.Children {
		if child.Cond != nil {
			parts = append(parts, child.Cond.String())
		} else if child.Group != nil {
			parts = append(parts, child.Group.String())
		}
	}
	if r.Op == OpNot {
		return fmt.Sprintf("NOT(%s)", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " "+strings.ToUpper(string(r.Op))+" "))
}

// ruleNodeDoc is the wire shape of a rule node. A node carrying "children"
// decodes as a group combined by "op", anything else as a condition with a
// comparison "operator"; unknown fields are ignored.
type ruleNodeDoc struct {
	Namespace Namespace   `json:"namespace" yaml:"namespace"`
	Attribute string      `json:"attribute" yaml:"attribute"`
	Op        string      `json:"op" yaml:"op"`
	Operator  string      `json:"operator" yaml:"operator"`
	Value     any         `json:"value" yaml:"value"`
	Children  []*RuleNode `json:"children" yaml:"children"`
}

func (n *RuleNode) fromDoc(doc *ruleNodeDoc) error {
	if len(doc.Children) > 0 {
		op := doc.Op
		if op == "" {
			op = doc.Operator
		}
		group := &Rule{Op: LogicalOp(strings.ToLower(op)), Children: doc.Children}
		if err := group.Validate(); err != nil {
			return err
		}
		n.Group = group
		return nil
	}
	if doc.Attribute == "" {
		return &ConfigError{Msg: "rule node requires either children or an attribute"}
	}
	n.Cond = &Condition{
		Namespace: doc.Namespace,
		Attribute: doc.Attribute,
		Operator:  Operator(strings.ToLower(doc.Operator)),
		Value:     doc.Value,
	}
	return nil
}

func (n *RuleNode) UnmarshalJSON(data []byte) error {
	var doc ruleNodeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ConfigError{Msg: "decode rule node", Err: err}
	}
	return n.fromDoc(&doc)
}

func (n *RuleNode) MarshalJSON() ([]byte, error) {
	if n.Cond != nil {
		return json.Marshal(n.Cond)
	}
	return json.Marshal(n.Group)
}

func (n *RuleNode) UnmarshalYAML(unmarshal func(any) error) error {
	var doc ruleNodeDoc
	if err := unmarshal(&doc); err != nil {
		return &ConfigError{Msg: "decode rule node", Err: err}
	}
	return n.fromDoc(&doc)
}

func (n *RuleNode) MarshalYAML() (any, error) {
	if n.Cond != nil {
		return n.Cond, nil
	}
	return n.Group, nil
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return &ConfigError{Msg: "decode rule", Err: err}
	}
	p.Op = LogicalOp(strings.ToLower(string(p.Op)))
	*r = Rule(p)
	return r.Validate()
}

func (r *Rule) UnmarshalYAML(unmarshal func(any) error) error {
	type plain Rule
	var p plain
	if err := unmarshal(&p); err != nil {
		return &ConfigError{Msg: "decode rule", Err: err}
	}
	p.Op = LogicalOp(strings.ToLower(string(p.Op)))
	*r = Rule(p)
	return r.Validate()
}
