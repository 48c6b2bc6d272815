package pdp

import (
	"context"
	"strings"
	"testing"
	"time"
)

const sampleConfigYAML = `
version: 1
policies:
  - policy_id: corp-network-read
    name: Corp network read
    effect: allow
    priority: 10
    enabled: true
    rules:
      - op: and
        children:
          - namespace: environment
            attribute: network
            operator: equals
            value: corp
roles:
  - id: viewer
    name: Viewer
    permissions: [document.read]
  - id: editor
    name: Editor
    permissions: [document.write]
    parents: [viewer]
grants:
  - user_id: alice
    role_id: editor
engine:
  decision_cache_ttl_ms: 60000
  precedence: first_applicable
`

func TestConfigLoadYAML(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Policies) != 1 || cfg.Policies[0].ID != "corp-network-read" {
		t.Fatalf("unexpected policies: %+v", cfg.Policies)
	}
	if len(cfg.Roles) != 2 || len(cfg.Grants) != 1 {
		t.Fatalf("unexpected roles/grants: %d/%d", len(cfg.Roles), len(cfg.Grants))
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Fatalf("sample config must validate, got %v", issues)
	}
}

func TestConfigValidateFindsProblems(t *testing.T) {
	cfg := &Config{
		Policies: []*Policy{{ID: "", Name: "", Effect: "sideways"}},
		Roles:    []*Role{{ID: "a", Parents: []string{"ghost"}}},
		Grants:   []*RoleGrant{{UserID: "u", RoleID: "nope"}},
	}
	issues := cfg.Validate()
	if len(issues) < 3 {
		t.Fatalf("expected policy, role and grant findings, got %v", issues)
	}
	var sawParent, sawGrant bool
	for _, issue := range issues {
		if strings.Contains(issue, "missing parent ghost") {
			sawParent = true
		}
		if strings.Contains(issue, "missing role nope") {
			sawGrant = true
		}
	}
	if !sawParent || !sawGrant {
		t.Fatalf("expected dangling references to be reported: %v", issues)
	}
}

func TestConfigApply(t *testing.T) {
	ctx := context.Background()
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	e, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()

	if err := e.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	d, err := e.EvaluateAccess(ctx, &AccessRequest{
		SubjectID:  "alice",
		ResourceID: "document:1",
		Action:     "read",
		Context:    map[string]any{"network": "corp"},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed() {
		t.Fatalf("applied policy must allow corp network reads, got %+v", d)
	}

	perm, err := e.CheckPermission(ctx, "alice", "document.read")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !perm.Allowed() {
		t.Fatalf("applied grant must give alice document.read")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(sampleConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	jsonData, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	back, err := NewConfigLoader().LoadJSON(jsonData)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(back.Policies) != len(cfg.Policies) || len(back.Roles) != len(cfg.Roles) {
		t.Fatalf("round trip lost content")
	}
	if !back.Policies[0].Rules[0].Evaluate(corpAttrs()) {
		t.Fatalf("round-tripped rule must still evaluate")
	}
}

func corpAttrs() *Attributes {
	attrs := NewAttributes()
	attrs.Set(NamespaceEnvironment, "network", StringAttr("corp", "test"))
	return attrs
}

func TestConfigAppliesEngineSettings(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Engine: EngineConfig{DecisionCacheTTL: 5000, Precedence: "allow_overrides"}}

	e, err := NewEngine()
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer e.Close()
	if err := e.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if e.cacheTTL != 5*time.Second {
		t.Fatalf("cache ttl not applied: %v", e.cacheTTL)
	}
	if e.precedence != AllowOverrides {
		t.Fatalf("precedence not applied: %v", e.precedence)
	}

	bad := &Config{Engine: EngineConfig{Precedence: "nonsense"}}
	if err := e.ApplyConfig(ctx, bad); err == nil {
		t.Fatalf("unknown precedence must be rejected")
	}
}
