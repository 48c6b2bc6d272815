package pdp

import "time"

// Builders provide a fluent API for creating Policies, Roles and RoleGrants

// PolicyBuilder builds a Policy
type PolicyBuilder struct {
	p *Policy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &Policy{Enabled: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder          { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(n string) *PolicyBuilder         { b.p.Name = n; return b }
func (b *PolicyBuilder) Description(d string) *PolicyBuilder  { b.p.Description = d; return b }
func (b *PolicyBuilder) Effect(e Effect) *PolicyBuilder       { b.p.Effect = e; return b }
func (b *PolicyBuilder) Allow() *PolicyBuilder                { b.p.Effect = EffectAllow; return b }
func (b *PolicyBuilder) Deny() *PolicyBuilder                 { b.p.Effect = EffectDeny; return b }
func (b *PolicyBuilder) Priority(p int) *PolicyBuilder        { b.p.Priority = p; return b }
func (b *PolicyBuilder) Enabled(enabled bool) *PolicyBuilder  { b.p.Enabled = enabled; return b }
func (b *PolicyBuilder) Rule(rules ...*Rule) *PolicyBuilder {
	b.p.Rules = append(b.p.Rules, rules...)
	return b
}

// When adds a single-condition rule, the common case.
func (b *PolicyBuilder) When(ns Namespace, attribute string, op Operator, value any) *PolicyBuilder {
	rule, _ := NewRule(OpAnd, Cond(Condition{
		Namespace: ns,
		Attribute: attribute,
		Operator:  op,
		Value:     value,
	}))
	b.p.Rules = append(b.p.Rules, rule)
	return b
}

func (b *PolicyBuilder) Build() (*Policy, error) {
	if err := b.p.Validate(); err != nil {
		return nil, err
	}
	return b.p, nil
}

// RuleBuilder composes condition trees.
type RuleBuilder struct {
	op       LogicalOp
	children []*RuleNode
}

func All() *RuleBuilder  { return &RuleBuilder{op: OpAnd} }
func Any() *RuleBuilder  { return &RuleBuilder{op: OpOr} }

func (b *RuleBuilder) Where(ns Namespace, attribute string, op Operator, value any) *RuleBuilder {
	b.children = append(b.children, Cond(Condition{
		Namespace: ns,
		Attribute: attribute,
		Operator:  op,
		Value:     value,
	}))
	return b
}

func (b *RuleBuilder) Not(inner *RuleBuilder) *RuleBuilder {
	rule, err := inner.Build()
	if err == nil {
		neg, nerr := NewRule(OpNot, Group(rule))
		if nerr == nil {
			b.children = append(b.children, Group(neg))
		}
	}
	return b
}

func (b *RuleBuilder) Group(inner *RuleBuilder) *RuleBuilder {
	rule, err := inner.Build()
	if err == nil {
		b.children = append(b.children, Group(rule))
	}
	return b
}

func (b *RuleBuilder) Build() (*Rule, error) {
	return NewRule(b.op, b.children...)
}

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Enabled: true}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder        { b.r.ID = id; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder       { b.r.Name = n; return b }
func (b *RoleBuilder) Description(d string) *RoleBuilder { b.r.Description = d; return b }
func (b *RoleBuilder) Permissions(ids ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, ids...)
	return b
}
func (b *RoleBuilder) Parents(ids ...string) *RoleBuilder {
	b.r.Parents = append(b.r.Parents, ids...)
	return b
}
func (b *RoleBuilder) Build() *Role { return b.r }

// GrantBuilder builds a RoleGrant
type GrantBuilder struct {
	g *RoleGrant
}

func NewGrantBuilder() *GrantBuilder {
	return &GrantBuilder{g: &RoleGrant{GrantedAt: time.Now()}}
}

func (b *GrantBuilder) User(id string) *GrantBuilder          { b.g.UserID = id; return b }
func (b *GrantBuilder) Role(id string) *GrantBuilder          { b.g.RoleID = id; return b }
func (b *GrantBuilder) GrantedBy(id string) *GrantBuilder     { b.g.GrantedBy = id; return b }
func (b *GrantBuilder) ExpiresAt(t time.Time) *GrantBuilder   { b.g.ExpiresAt = t; return b }
func (b *GrantBuilder) Build() *RoleGrant                     { return b.g }
