package pdp

import "time"

// ResolutionStrategy combines multiple independently produced decisions
// (for example one from RBAC aggregation and one from ABAC evaluation)
// into one final verdict.
type ResolutionStrategy string

const (
	ResolveDenyOverrides   ResolutionStrategy = "deny_overrides"
	ResolveAllowOverrides  ResolutionStrategy = "allow_overrides"
	ResolveFirstApplicable ResolutionStrategy = "first_applicable"
	ResolveUnanimous       ResolutionStrategy = "unanimous"
	ResolveMajority        ResolutionStrategy = "majority"
)

// ResolveDecisions merges the input decisions under the given strategy.
// Zero inputs resolve to Deny; a single input is returned unmodified (as a
// clone). Unknown strategies fall back to deny_overrides, keeping the
// resolver fail-secure.
func ResolveDecisions(decisions []*Decision, strategy ResolutionStrategy) *Decision {
	if len(decisions) == 0 {
		return &Decision{
			Effect:            EffectDeny,
			Reason:            "no decisions to resolve",
			EvaluatedPolicies: []string{},
			Timestamp:         time.Now(),
		}
	}
	if len(decisions) == 1 {
		return decisions[0].Clone()
	}

	switch strategy {
	case ResolveAllowOverrides:
		for _, d := range decisions {
			if d.Effect == EffectAllow {
				return d.Clone()
			}
		}
		return decisions[0].Clone()
	case ResolveFirstApplicable:
		return decisions[0].Clone()
	case ResolveUnanimous:
		first := decisions[0].Effect
		for _, d := range decisions[1:] {
			if d.Effect != first {
				return &Decision{
					Effect:            EffectDeny,
					Reason:            "no unanimous decision",
					EvaluatedPolicies: mergeEvaluated(decisions),
					Timestamp:         time.Now(),
				}
			}
		}
		return decisions[0].Clone()
	case ResolveMajority:
		allows := 0
		for _, d := range decisions {
			if d.Effect == EffectAllow {
				allows++
			}
		}
		denies := len(decisions) - allows
		if allows > denies {
			for _, d := range decisions {
				if d.Effect == EffectAllow {
					return d.Clone()
				}
			}
		}
		// strict majority required; a tie resolves to Deny
		for _, d := range decisions {
			if d.Effect == EffectDeny {
				return d.Clone()
			}
		}
		return decisions[0].Clone()
	default:
		// deny_overrides
		for _, d := range decisions {
			if d.Effect == EffectDeny {
				return d.Clone()
			}
		}
		return decisions[0].Clone()
	}
}

func mergeEvaluated(decisions []*Decision) []string {
	out := make([]string, 0)
	for _, d := range decisions {
		out = append(out, d.EvaluatedPolicies...)
	}
	return out
}
