package pdp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oarkflow/pdp/logger"
)

// AccessRequest is one question put to the engine: may SubjectID perform
// Action on ResourceID. Context carries caller-supplied environment hints
// (request ip, channel, ...) folded into the environment namespace before
// provider attributes.
type AccessRequest struct {
	SubjectID  string         `json:"subject_id"`
	ResourceID string         `json:"resource_id"`
	Action     string         `json:"action"`
	Context    map[string]any `json:"context,omitempty"`
	// Precedence overrides the engine default for this request only.
	Precedence PrecedenceRule `json:"precedence,omitempty"`
	// SkipCache forces a fresh evaluation against current attributes.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// Explanation pairs a decision with the per-policy evaluation trace that
// produced it.
type Explanation struct {
	Decision *Decision `json:"decision"`
	Trace    []string  `json:"trace"`
}

// Engine is the policy decision point. It owns the stores, the role
// hierarchy, attribute collection, the decision cache and audit fan-out.
type Engine struct {
	policyStore PolicyStore
	grantStore  GrantStore
	auditStore  AuditStore
	hierarchy   *Hierarchy
	provider    AttributeProvider
	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc

	// mu guards the settings mutable on a live engine, through
	// SetCacheTTL and ApplyConfig, against concurrent evaluations.
	mu         sync.RWMutex
	cache      DecisionCache
	cacheTTL   time.Duration
	precedence PrecedenceRule

	// asynchronous audit channel keeps persistence off the hot path
	auditCh chan AuditEntry
	done    chan struct{}
}

// EngineOption customizes engine construction.
type EngineOption func(e *Engine) error

func WithPolicyStore(s PolicyStore) EngineOption {
	return func(e *Engine) error {
		e.policyStore = s
		return nil
	}
}

func WithGrantStore(s GrantStore) EngineOption {
	return func(e *Engine) error {
		e.grantStore = s
		return nil
	}
}

func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) error {
		e.auditStore = s
		return nil
	}
}

func WithAttributeProvider(p AttributeProvider) EngineOption {
	return func(e *Engine) error {
		e.provider = p
		return nil
	}
}

func WithDecisionCache(c DecisionCache) EngineOption {
	return func(e *Engine) error {
		e.mu.Lock()
		e.cache = c
		e.mu.Unlock()
		return nil
	}
}

// WithRistrettoCache swaps the default map cache for a cost-bounded
// ristretto cache.
func WithRistrettoCache(cfg RistrettoConfig) EngineOption {
	return func(e *Engine) error {
		cache, err := NewRistrettoDecisionCache(cfg)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.cache = cache
		e.mu.Unlock()
		return nil
	}
}

func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return &ConfigError{Msg: "cache ttl must be positive"}
		}
		e.mu.Lock()
		e.cacheTTL = ttl
		e.mu.Unlock()
		return nil
	}
}

func WithPrecedence(rule PrecedenceRule) EngineOption {
	return func(e *Engine) error {
		switch rule {
		case DenyOverrides, AllowOverrides, FirstApplicable, OnlyOneApplicable:
			e.mu.Lock()
			e.precedence = rule
			e.mu.Unlock()
			return nil
		}
		return &ConfigError{Msg: fmt.Sprintf("unknown precedence rule %q", rule)}
	}
}

func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}

// NewEngine builds an engine with in-memory defaults for every collaborator
// not supplied through options.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		policyStore: NewMemoryPolicyStore(),
		grantStore:  NewMemoryGrantStore(),
		auditStore:  NewMemoryAuditStore(0),
		hierarchy:   NewHierarchy(),
		provider:    NewMemoryAttributeProvider(),
		cache:       NewMemoryDecisionCache(),
		cacheTTL:    DefaultCacheTTL,
		precedence:  DenyOverrides,
		logger:      logger.NewNullLogger(),
		traceIDFunc: logger.RandomTraceID,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.auditCh = make(chan AuditEntry, 1024)
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		bg := context.Background()
		for entry := range e.auditCh {
			if err := e.auditStore.Record(bg, &entry); err != nil {
				e.logger.Error("audit record failed", "error", err)
			}
		}
	}()
	return e, nil
}

// Close drains and stops the audit worker.
func (e *Engine) Close() {
	close(e.auditCh)
	<-e.done
}

// EvaluateAccess answers an access request. Failures on the data path
// (attribute providers, policy listing) resolve to Deny, never Allow;
// misconfiguration and only-one-applicable conflicts return typed errors
// the caller can inspect.
func (e *Engine) EvaluateAccess(ctx context.Context, req *AccessRequest) (*Decision, error) {
	return e.evaluate(ctx, req, nil)
}

// ReEvaluateContext bypasses the cache so the decision reflects current
// attribute state, for use after long waits or privilege-sensitive steps.
func (e *Engine) ReEvaluateContext(ctx context.Context, req *AccessRequest) (*Decision, error) {
	fresh := *req
	fresh.SkipCache = true
	return e.evaluate(ctx, &fresh, nil)
}

// ExplainAccess evaluates without the cache and returns the per-policy
// trace alongside the decision.
func (e *Engine) ExplainAccess(ctx context.Context, req *AccessRequest) (*Explanation, error) {
	trace := make([]string, 0, 8)
	fresh := *req
	fresh.SkipCache = true
	d, err := e.evaluate(ctx, &fresh, &trace)
	if err != nil {
		return nil, err
	}
	return &Explanation{Decision: d, Trace: trace}, nil
}

// BatchEvaluate answers several requests sequentially. The first typed
// error aborts the batch.
func (e *Engine) BatchEvaluate(ctx context.Context, reqs []*AccessRequest) ([]*Decision, error) {
	decisions := make([]*Decision, len(reqs))
	for i, req := range reqs {
		d, err := e.evaluate(ctx, req, nil)
		if err != nil {
			return nil, err
		}
		decisions[i] = d
	}
	return decisions, nil
}

func (e *Engine) evaluate(ctx context.Context, req *AccessRequest, trace *[]string) (*Decision, error) {
	if req == nil || req.SubjectID == "" || req.Action == "" {
		return nil, &ConfigError{Msg: "access request requires subject_id and action"}
	}
	traceID := e.traceIDFunc()

	cache, ttl, defaultPrecedence := e.snapshotSettings()

	var key string
	if !req.SkipCache {
		key = Fingerprint(req.SubjectID, req.ResourceID, req.Action, req.Context)
		if d, ok := cache.Get(key); ok {
			e.logger.Debug("decision cache hit", "trace_id", traceID, "subject", req.SubjectID, "resource", req.ResourceID, "action", req.Action)
			e.audit(traceID, req, d, true)
			return d, nil
		}
	}

	attrs, err := e.collectAttributes(ctx, req)
	if err != nil {
		e.logger.Error("attribute collection failed", "trace_id", traceID, "subject", req.SubjectID, "error", err)
		d := denyDecision(fmt.Sprintf("attribute collection failed: %v", err), nil)
		e.audit(traceID, req, d, false)
		return d, nil
	}

	policies, err := e.policyStore.ListPolicies(ctx)
	if err != nil {
		e.logger.Error("policy listing failed", "trace_id", traceID, "error", err)
		d := denyDecision(fmt.Sprintf("policy store unavailable: %v", err), nil)
		e.audit(traceID, req, d, false)
		return d, nil
	}

	precedence := req.Precedence
	if precedence == "" {
		precedence = defaultPrecedence
	}
	d, err := evaluatePolicies(policies, attrs, precedence, trace)
	if err != nil {
		return nil, err
	}

	if !req.SkipCache {
		cache.Set(key, d, ttl)
	}
	e.logger.Info("access evaluated",
		"trace_id", traceID,
		"subject", req.SubjectID,
		"resource", req.ResourceID,
		"action", req.Action,
		"effect", string(d.Effect),
		"policy", d.PolicyID,
	)
	e.audit(traceID, req, d, false)
	return d, nil
}

func (e *Engine) collectAttributes(ctx context.Context, req *AccessRequest) (*Attributes, error) {
	attrs := NewAttributes()
	attrs.Set(NamespaceSubject, "id", StringAttr(req.SubjectID, "request"))
	attrs.Set(NamespaceResource, "id", StringAttr(req.ResourceID, "request"))
	attrs.Set(NamespaceAction, "id", StringAttr(req.Action, "request"))
	// Caller hints land first so they win over provider values on conflict.
	for name, raw := range req.Context {
		attrs.Set(NamespaceEnvironment, name, AttrFromAny(raw, "request"))
	}

	subject, err := e.provider.GetSubjectAttributes(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("subject attributes: %w", err)
	}
	resource, err := e.provider.GetResourceAttributes(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("resource attributes: %w", err)
	}
	environment, err := e.provider.GetEnvironmentAttributes(ctx, req.Context)
	if err != nil {
		return nil, fmt.Errorf("environment attributes: %w", err)
	}
	action, err := e.provider.GetActionAttributes(ctx, req.Action)
	if err != nil {
		return nil, fmt.Errorf("action attributes: %w", err)
	}
	attrs.Merge(NamespaceSubject, subject)
	attrs.Merge(NamespaceResource, resource)
	attrs.Merge(NamespaceEnvironment, environment)
	attrs.Merge(NamespaceAction, action)
	return attrs, nil
}

func (e *Engine) audit(traceID string, req *AccessRequest, d *Decision, cached bool) {
	entry := AuditEntry{
		TraceID:   traceID,
		SubjectID: req.SubjectID,
		Resource:  req.ResourceID,
		Action:    req.Action,
		Effect:    d.Effect,
		PolicyID:  d.PolicyID,
		Reason:    d.Reason,
		Cached:    cached,
		Timestamp: time.Now(),
	}
	select {
	case e.auditCh <- entry:
	default:
		// drop instead of blocking evaluation
	}
}

// CheckPermission answers the pure role question: does any currently valid
// role of the subject grant the permission, directly or through parents.
func (e *Engine) CheckPermission(ctx context.Context, subjectID, permission string) (*Decision, error) {
	grants, err := e.grantStore.ListBySubject(ctx, subjectID)
	if err != nil {
		e.logger.Error("grant listing failed", "subject", subjectID, "error", err)
		return denyDecision(fmt.Sprintf("grant store unavailable: %v", err), nil), nil
	}
	for _, g := range grants {
		if !g.IsValid() {
			continue
		}
		if e.hierarchy.RoleHasPermission(g.RoleID, permission) {
			return &Decision{
				Effect:    EffectAllow,
				Reason:    fmt.Sprintf("role %s grants %s", g.RoleID, permission),
				Timestamp: time.Now(),
			}, nil
		}
	}
	return denyDecision(fmt.Sprintf("no role grants %s", permission), nil), nil
}

// Authorize combines the role check and the policy evaluation under a
// conflict resolution strategy. The permission consulted is derived from
// the resource type and the action ("document:42" + "read" -> "document.read").
func (e *Engine) Authorize(ctx context.Context, req *AccessRequest, strategy ResolutionStrategy) (*Decision, error) {
	rbac, err := e.CheckPermission(ctx, req.SubjectID, permissionFor(req.ResourceID, req.Action))
	if err != nil {
		return nil, err
	}
	abac, err := e.evaluate(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return ResolveDecisions([]*Decision{rbac, abac}, strategy), nil
}

func permissionFor(resourceID, action string) string {
	resourceType := resourceID
	if i := strings.IndexByte(resourceID, ':'); i > 0 {
		resourceType = resourceID[:i]
	}
	return resourceType + "." + action
}

// AddPolicy validates and stores a policy, then invalidates every cached
// decision. Invalidation is coarse on purpose: correctness over cache
// warmth.
func (e *Engine) AddPolicy(ctx context.Context, p *Policy) error {
	if err := e.policyStore.CreatePolicy(ctx, p); err != nil {
		return err
	}
	e.decisionCache().Clear()
	e.logger.Info("policy added", "policy", p.ID)
	return nil
}

func (e *Engine) UpdatePolicy(ctx context.Context, p *Policy) error {
	if err := e.policyStore.UpdatePolicy(ctx, p); err != nil {
		return err
	}
	e.decisionCache().Clear()
	e.logger.Info("policy updated", "policy", p.ID)
	return nil
}

func (e *Engine) RemovePolicy(ctx context.Context, id string) error {
	if err := e.policyStore.DeletePolicy(ctx, id); err != nil {
		return err
	}
	e.decisionCache().Clear()
	e.logger.Info("policy removed", "policy", id)
	return nil
}

func (e *Engine) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return e.policyStore.GetPolicy(ctx, id)
}

func (e *Engine) Policies(ctx context.Context) ([]*Policy, error) {
	return e.policyStore.ListPolicies(ctx)
}

// LoadPoliciesFromDirectory reads every .json, .yaml and .yml file in dir
// as either a single policy or a list of policies. Files that fail to parse
// or validate are logged and skipped. Returns how many policies loaded.
func (e *Engine) LoadPoliciesFromDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		policies, err := decodePolicyFile(path, ext)
		if err != nil {
			e.logger.Warn("skipping policy file", "file", path, "error", err)
			continue
		}
		for _, p := range policies {
			if err := e.policyStore.CreatePolicy(ctx, p); err != nil {
				e.logger.Warn("skipping policy", "file", path, "policy", p.ID, "error", err)
				continue
			}
			loaded++
		}
	}
	if loaded > 0 {
		e.decisionCache().Clear()
	}
	e.logger.Info("policies loaded from directory", "dir", dir, "count", loaded)
	return loaded, nil
}

func decodePolicyFile(path, ext string) ([]*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	unmarshal := json.Unmarshal
	if ext == ".yaml" || ext == ".yml" {
		unmarshal = yaml.Unmarshal
	}
	var list []*Policy
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single Policy
	if err := unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []*Policy{&single}, nil
}

// AddRole registers or replaces a role in the hierarchy and invalidates
// cached decisions.
func (e *Engine) AddRole(role *Role) error {
	if err := e.hierarchy.AddRole(role); err != nil {
		return err
	}
	e.decisionCache().Clear()
	return nil
}

// AllPermissions returns the aggregated permission ids of a role, sorted.
func (e *Engine) AllPermissions(roleID string) []string {
	set := e.hierarchy.AllPermissions(roleID)
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) RoleTree(roleID string) *RoleTreeNode {
	return e.hierarchy.RoleTree(roleID)
}

func (e *Engine) ValidateHierarchy() []string {
	return e.hierarchy.Validate()
}

// AssignRole grants a role to a subject.
func (e *Engine) AssignRole(ctx context.Context, grant *RoleGrant) error {
	if err := e.grantStore.Assign(ctx, grant); err != nil {
		return err
	}
	e.decisionCache().Clear()
	e.logger.Info("role assigned", "subject", grant.UserID, "role", grant.RoleID)
	return nil
}

func (e *Engine) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := e.grantStore.Revoke(ctx, userID, roleID); err != nil {
		return err
	}
	e.decisionCache().Clear()
	e.logger.Info("role revoked", "subject", userID, "role", roleID)
	return nil
}

// UserRoles returns the role ids currently in force for a subject.
func (e *Engine) UserRoles(ctx context.Context, userID string) ([]string, error) {
	grants, err := e.grantStore.ListBySubject(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		if g.IsValid() {
			roles = append(roles, g.RoleID)
		}
	}
	sort.Strings(roles)
	return roles, nil
}

// CleanupExpiredRoles removes lapsed grants and reports how many.
func (e *Engine) CleanupExpiredRoles(ctx context.Context) (int, error) {
	removed, err := e.grantStore.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.decisionCache().Clear()
		e.logger.Info("expired role grants removed", "count", removed)
	}
	return removed, nil
}

// AccessLog queries recorded decisions.
func (e *Engine) AccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return e.auditStore.Query(ctx, filter)
}

func (e *Engine) CacheStats() CacheStats {
	return e.decisionCache().Stats()
}

func (e *Engine) InvalidateDecisionCache() {
	e.decisionCache().Clear()
}

func (e *Engine) SetCacheTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return &ConfigError{Msg: "cache ttl must be positive"}
	}
	e.mu.Lock()
	e.cacheTTL = ttl
	e.mu.Unlock()
	return nil
}

// snapshotSettings reads the runtime-mutable settings under one lock so an
// evaluation works against a consistent view.
func (e *Engine) snapshotSettings() (DecisionCache, time.Duration, PrecedenceRule) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache, e.cacheTTL, e.precedence
}

func (e *Engine) decisionCache() DecisionCache {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache
}
