package pdp

import (
	"fmt"
	"sort"
	"time"
)

// PrecedenceRule selects how multiple matching policies combine into one
// decision.
type PrecedenceRule string

const (
	DenyOverrides     PrecedenceRule = "deny_overrides"
	AllowOverrides    PrecedenceRule = "allow_overrides"
	FirstApplicable   PrecedenceRule = "first_applicable"
	OnlyOneApplicable PrecedenceRule = "only_one_applicable"
)

const (
	reasonNoPolicies   = "no applicable policies"
	reasonPolicyActive = "matched policy"
)

// EvaluatePolicies evaluates an ordered policy set against the attributes
// and applies the precedence rule. Policies are stable-sorted by priority
// descending; ties keep their input order. Every enabled policy that is
// evaluated is recorded in the decision's EvaluatedPolicies regardless of
// match. The default posture is deny: no applicable policies always yields
// a Deny decision, never an allow-by-omission.
//
// The only error case is OnlyOneApplicable with more than one match, which
// surfaces a *ConflictError instead of silently resolving the ambiguity.
func EvaluatePolicies(policies []*Policy, attrs *Attributes, rule PrecedenceRule) (*Decision, error) {
	return evaluatePolicies(policies, attrs, rule, nil)
}

func evaluatePolicies(policies []*Policy, attrs *Attributes, rule PrecedenceRule, trace *[]string) (*Decision, error) {
	ordered := make([]*Policy, len(policies))
	copy(ordered, policies)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	evaluated := make([]string, 0, len(ordered))
	applicable := make([]*Policy, 0, len(ordered))

	for _, p := range ordered {
		if !p.Enabled {
			if trace != nil {
				*trace = append(*trace, fmt.Sprintf("policy=%s skipped disabled", p.ID))
			}
			continue
		}
		evaluated = append(evaluated, p.ID)
		matched := p.Matches(attrs)
		if trace != nil {
			*trace = append(*trace, fmt.Sprintf("policy=%s priority=%d effect=%s matched=%v", p.ID, p.Priority, p.Effect, matched))
		}
		if !matched {
			continue
		}
		if rule == FirstApplicable {
			return &Decision{
				Effect:            p.Effect,
				PolicyID:          p.ID,
				Reason:            fmt.Sprintf("first applicable policy %s", p.ID),
				EvaluatedPolicies: evaluated,
				Timestamp:         time.Now(),
			}, nil
		}
		applicable = append(applicable, p)
	}

	if len(applicable) == 0 {
		return denyDecision(reasonNoPolicies, evaluated), nil
	}

	// applicable preserves priority order, so the first entry of a given
	// effect is the highest-priority one.
	firstOf := func(effect Effect) *Policy {
		for _, p := range applicable {
			if p.Effect == effect {
				return p
			}
		}
		return nil
	}

	switch rule {
	case DenyOverrides:
		if p := firstOf(EffectDeny); p != nil {
			return applicableDecision(p, evaluated), nil
		}
		return applicableDecision(firstOf(EffectAllow), evaluated), nil
	case AllowOverrides:
		if p := firstOf(EffectAllow); p != nil {
			return applicableDecision(p, evaluated), nil
		}
		return applicableDecision(firstOf(EffectDeny), evaluated), nil
	case OnlyOneApplicable:
		if len(applicable) > 1 {
			ids := make([]string, len(applicable))
			for i, p := range applicable {
				ids[i] = p.ID
			}
			return nil, &ConflictError{PolicyIDs: ids}
		}
		return applicableDecision(applicable[0], evaluated), nil
	default:
		return nil, &ConfigError{Msg: fmt.Sprintf("unknown precedence rule %q", rule)}
	}
}

func applicableDecision(p *Policy, evaluated []string) *Decision {
	return &Decision{
		Effect:            p.Effect,
		PolicyID:          p.ID,
		Reason:            fmt.Sprintf("%s policy %s (%s)", reasonPolicyActive, p.ID, p.Effect),
		EvaluatedPolicies: evaluated,
		Timestamp:         time.Now(),
	}
}
