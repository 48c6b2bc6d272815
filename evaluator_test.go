package pdp

import (
	"errors"
	"testing"
)

func allowAll(id string, priority int) *Policy {
	rule, _ := NewRule(OpAnd, cond(NamespaceSubject, "department", OpEquals, "engineering"))
	return &Policy{ID: id, Name: id, Effect: EffectAllow, Rules: []*Rule{rule}, Priority: priority, Enabled: true}
}

func denyAll(id string, priority int) *Policy {
	rule, _ := NewRule(OpAnd, cond(NamespaceSubject, "department", OpEquals, "engineering"))
	return &Policy{ID: id, Name: id, Effect: EffectDeny, Rules: []*Rule{rule}, Priority: priority, Enabled: true}
}

func noMatch(id string, effect Effect) *Policy {
	rule, _ := NewRule(OpAnd, cond(NamespaceSubject, "department", OpEquals, "sales"))
	return &Policy{ID: id, Name: id, Effect: effect, Rules: []*Rule{rule}, Priority: 0, Enabled: true}
}

func TestEvaluateDefaultDeny(t *testing.T) {
	d, err := EvaluatePolicies(nil, testAttrs(), DenyOverrides)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatalf("no policies must deny")
	}
	if len(d.EvaluatedPolicies) != 0 {
		t.Fatalf("expected empty evaluated list, got %v", d.EvaluatedPolicies)
	}
}

func TestEvaluateNoApplicableDenies(t *testing.T) {
	policies := []*Policy{noMatch("p1", EffectAllow), noMatch("p2", EffectAllow)}
	d, err := EvaluatePolicies(policies, testAttrs(), DenyOverrides)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatalf("no applicable policies must deny")
	}
	if len(d.EvaluatedPolicies) != 2 {
		t.Fatalf("both enabled policies must be recorded, got %v", d.EvaluatedPolicies)
	}
}

func TestEvaluateDenyOverrides(t *testing.T) {
	policies := []*Policy{allowAll("allow", 100), denyAll("deny", 1)}
	d, err := EvaluatePolicies(policies, testAttrs(), DenyOverrides)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatalf("deny must win under deny_overrides regardless of priority")
	}
	if d.PolicyID != "deny" {
		t.Fatalf("expected deny policy to decide, got %s", d.PolicyID)
	}
}

func TestEvaluateAllowOverrides(t *testing.T) {
	policies := []*Policy{denyAll("deny", 100), allowAll("allow", 1)}
	d, err := EvaluatePolicies(policies, testAttrs(), AllowOverrides)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("allow must win under allow_overrides")
	}
	if d.PolicyID != "allow" {
		t.Fatalf("expected allow policy to decide, got %s", d.PolicyID)
	}
}

func TestEvaluateFirstApplicableHonorsPriority(t *testing.T) {
	policies := []*Policy{allowAll("low", 1), denyAll("high", 50)}
	d, err := EvaluatePolicies(policies, testAttrs(), FirstApplicable)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.PolicyID != "high" {
		t.Fatalf("first_applicable must walk in priority order, got %s", d.PolicyID)
	}
	if d.Allowed() {
		t.Fatalf("expected deny from the higher-priority policy")
	}
}

func TestEvaluateEqualPriorityTieBreak(t *testing.T) {
	// Equal priority resolves by the order policies were supplied.
	policies := []*Policy{denyAll("deny-first", 10), allowAll("allow-second", 10)}
	d, err := EvaluatePolicies(policies, testAttrs(), FirstApplicable)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.PolicyID != "deny-first" {
		t.Fatalf("equal priority must keep input order, got %s", d.PolicyID)
	}
}

func TestEvaluateOnlyOneApplicable(t *testing.T) {
	one := []*Policy{allowAll("only", 10), noMatch("other", EffectDeny)}
	d, err := EvaluatePolicies(one, testAttrs(), OnlyOneApplicable)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() || d.PolicyID != "only" {
		t.Fatalf("single applicable policy must decide, got %+v", d)
	}

	two := []*Policy{allowAll("a", 10), denyAll("b", 10)}
	_, err = EvaluatePolicies(two, testAttrs(), OnlyOneApplicable)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.PolicyIDs) != 2 {
		t.Fatalf("conflict must name both policies, got %v", conflict.PolicyIDs)
	}
}

func TestEvaluateSkipsDisabled(t *testing.T) {
	disabled := denyAll("disabled", 100)
	disabled.Enabled = false
	policies := []*Policy{disabled, allowAll("allow", 1)}
	d, err := EvaluatePolicies(policies, testAttrs(), DenyOverrides)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("disabled deny must not participate")
	}
	for _, id := range d.EvaluatedPolicies {
		if id == "disabled" {
			t.Fatalf("disabled policy must not appear in evaluated list")
		}
	}
}

func TestEvaluateUnknownPrecedence(t *testing.T) {
	_, err := EvaluatePolicies([]*Policy{allowAll("a", 1)}, testAttrs(), "bogus")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for unknown precedence, got %v", err)
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	policies := []*Policy{allowAll("a", 1), denyAll("b", 100), allowAll("c", 50)}
	if _, err := EvaluatePolicies(policies, testAttrs(), DenyOverrides); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if policies[0].ID != "a" || policies[1].ID != "b" || policies[2].ID != "c" {
		t.Fatalf("input slice order must be preserved")
	}
}
