package pdp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of a complete decision point: policies,
// the role graph, grants and engine tuning, loadable from YAML or JSON.
type Config struct {
	Version  int          `json:"version" yaml:"version"`
	Policies []*Policy    `json:"policies,omitempty" yaml:"policies,omitempty"`
	Roles    []*Role      `json:"roles,omitempty" yaml:"roles,omitempty"`
	Grants   []*RoleGrant `json:"grants,omitempty" yaml:"grants,omitempty"`
	Engine   EngineConfig `json:"engine,omitempty" yaml:"engine,omitempty"`
}

type EngineConfig struct {
	DecisionCacheTTL    int64  `json:"decision_cache_ttl_ms,omitempty" yaml:"decision_cache_ttl_ms,omitempty"`
	Precedence          string `json:"precedence,omitempty" yaml:"precedence,omitempty"`
	RistrettoNumCounter int64  `json:"ristretto_num_counter,omitempty" yaml:"ristretto_num_counter,omitempty"`
	RistrettoMaxCost    int64  `json:"ristretto_max_cost,omitempty" yaml:"ristretto_max_cost,omitempty"`
	RistrettoBuffer     int64  `json:"ristretto_buffer,omitempty" yaml:"ristretto_buffer,omitempty"`
}

// ConfigLoader decodes configuration documents.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Msg: "decode yaml config", Err: err}
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, &ConfigError{Msg: "decode json config", Err: err}
	}
	return cfg, nil
}

// LoadFile picks the decoder from the file extension.
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	}
	return nil, &ConfigError{Msg: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate checks every embedded policy, role and grant without touching an
// engine. Returns all findings rather than stopping at the first.
func (c *Config) Validate() []string {
	issues := make([]string, 0)
	seen := make(map[string]bool)
	for i, p := range c.Policies {
		if err := p.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("policy %d (%s): %v", i, p.ID, err))
		}
		if p.ID != "" && seen[p.ID] {
			issues = append(issues, fmt.Sprintf("duplicate policy id %s", p.ID))
		}
		seen[p.ID] = true
	}
	roleIDs := make(map[string]bool, len(c.Roles))
	for i, r := range c.Roles {
		if r.ID == "" {
			issues = append(issues, fmt.Sprintf("role %d: missing id", i))
			continue
		}
		if roleIDs[r.ID] {
			issues = append(issues, fmt.Sprintf("duplicate role id %s", r.ID))
		}
		roleIDs[r.ID] = true
	}
	for _, r := range c.Roles {
		for _, parent := range r.Parents {
			if !roleIDs[parent] {
				issues = append(issues, fmt.Sprintf("role %s references missing parent %s", r.ID, parent))
			}
		}
	}
	for i, g := range c.Grants {
		if g.UserID == "" || g.RoleID == "" {
			issues = append(issues, fmt.Sprintf("grant %d: user_id and role_id are required", i))
			continue
		}
		if !roleIDs[g.RoleID] {
			issues = append(issues, fmt.Sprintf("grant for %s references missing role %s", g.UserID, g.RoleID))
		}
	}
	return issues
}

// ApplyConfig loads a configuration into a live engine: engine tuning
// first, then roles, grants and policies. Any failure aborts with state
// partially applied, so apply to a fresh engine when atomicity matters.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if cfg.Engine.DecisionCacheTTL > 0 {
		if err := e.SetCacheTTL(time.Duration(cfg.Engine.DecisionCacheTTL) * time.Millisecond); err != nil {
			return err
		}
	}
	if cfg.Engine.Precedence != "" {
		if err := WithPrecedence(PrecedenceRule(cfg.Engine.Precedence))(e); err != nil {
			return err
		}
	}
	if cfg.Engine.RistrettoNumCounter > 0 {
		if err := WithRistrettoCache(RistrettoConfig{
			NumCounters: cfg.Engine.RistrettoNumCounter,
			MaxCost:     cfg.Engine.RistrettoMaxCost,
			BufferItems: cfg.Engine.RistrettoBuffer,
		})(e); err != nil {
			return err
		}
	}

	for _, role := range cfg.Roles {
		if err := e.AddRole(role); err != nil {
			return fmt.Errorf("role %s: %w", role.ID, err)
		}
	}
	for _, grant := range cfg.Grants {
		if err := e.AssignRole(ctx, grant); err != nil {
			return fmt.Errorf("grant %s/%s: %w", grant.UserID, grant.RoleID, err)
		}
	}
	for _, p := range cfg.Policies {
		if err := e.AddPolicy(ctx, p); err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
	}
	return nil
}

// Snapshot exports the engine's current policies, roles and grants back
// into a Config for inspection or round-tripping.
func (e *Engine) Snapshot(ctx context.Context) (*Config, error) {
	policies, err := e.policyStore.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &Config{Version: 1, Policies: policies}
	e.hierarchy.mu.RLock()
	for _, role := range e.hierarchy.roles {
		dup := *role
		cfg.Roles = append(cfg.Roles, &dup)
	}
	e.hierarchy.mu.RUnlock()
	sort.Slice(cfg.Roles, func(i, j int) bool { return cfg.Roles[i].ID < cfg.Roles[j].ID })
	return cfg, nil
}
