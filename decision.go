package pdp

import "time"

// Decision is the auditable outcome of one evaluation. EvaluatedPolicies
// lists every policy id that was considered, in evaluation order, whether
// or not it matched.
type Decision struct {
	Effect            Effect    `json:"effect"`
	PolicyID          string    `json:"policy_id,omitempty"`
	Reason            string    `json:"reason"`
	EvaluatedPolicies []string  `json:"evaluated_policies"`
	Timestamp         time.Time `json:"timestamp"`
}

// Allowed is a convenience accessor for integrations.
func (d *Decision) Allowed() bool { return d.Effect == EffectAllow }

// Clone returns an independent copy. Cached decisions are cloned on the way
// in and out of the cache so a caller mutating its copy cannot poison later
// reads.
func (d *Decision) Clone() *Decision {
	if d == nil {
		return nil
	}
	dup := *d
	dup.EvaluatedPolicies = append([]string(nil), d.EvaluatedPolicies...)
	return &dup
}

func denyDecision(reason string, evaluated []string) *Decision {
	// keep the audit shape uniform: an empty list marshals as [], not null
	if evaluated == nil {
		evaluated = []string{}
	}
	return &Decision{
		Effect:            EffectDeny,
		Reason:            reason,
		EvaluatedPolicies: evaluated,
		Timestamp:         time.Now(),
	}
}
