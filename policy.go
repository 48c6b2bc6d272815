package pdp

import (
	"time"
)

// Effect is the outcome a policy produces when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Policy is a named, prioritized set of rules with an effect. The rule list
// is an implicit AND: the policy matches only when every rule evaluates
// true. Disabled policies never match.
type Policy struct {
	ID          string    `json:"policy_id" yaml:"policy_id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      Effect    `json:"effect" yaml:"effect"`
	Rules       []*Rule   `json:"rules" yaml:"rules"`
	Priority    int       `json:"priority" yaml:"priority"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate checks the policy invariants.
func (p *Policy) Validate() error {
	if p.ID == "" {
		return &ConfigError{Msg: "policy id is required"}
	}
	if p.Name == "" {
		return &ConfigError{Msg: "policy name is required"}
	}
	if p.Effect != EffectAllow && p.Effect != EffectDeny {
		return &ConfigError{Msg: "policy effect must be allow or deny: " + p.ID}
	}
	if len(p.Rules) == 0 {
		return &ConfigError{Msg: "policy must have at least one rule: " + p.ID}
	}
	for _, r := range p.Rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches reports whether every rule of an enabled policy holds.
func (p *Policy) Matches(attrs *Attributes) bool {
	if !p.Enabled {
		return false
	}
	for _, r := range p.Rules {
		if !r.Evaluate(attrs) {
			return false
		}
	}
	return true
}

// Clone returns a copy with its own rule slice. The rules themselves are
// shared; they are immutable after construction.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	dup := *p
	dup.Rules = append([]*Rule(nil), p.Rules...)
	return &dup
}
