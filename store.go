package pdp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// PolicyStore persists policies. Implementations must be safe for concurrent
// use; Get and List return copies so callers cannot mutate stored state.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	UpdatePolicy(ctx context.Context, p *Policy) error
	DeletePolicy(ctx context.Context, id string) error
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	ListPolicies(ctx context.Context) ([]*Policy, error)
}

// MemoryPolicyStore is the default in-process PolicyStore.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*Policy)}
}

func (s *MemoryPolicyStore) CreatePolicy(_ context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := p.Clone()
	dup.CreatedAt = time.Now()
	dup.UpdatedAt = dup.CreatedAt
	s.policies[p.ID] = dup
	return nil
}

func (s *MemoryPolicyStore) UpdatePolicy(_ context.Context, p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return fmt.Errorf("policy %s not found", p.ID)
	}
	dup := p.Clone()
	dup.UpdatedAt = time.Now()
	s.policies[p.ID] = dup
	return nil
}

func (s *MemoryPolicyStore) DeletePolicy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return fmt.Errorf("policy %s not found", id)
	}
	delete(s.policies, id)
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(_ context.Context, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s not found", id)
	}
	return p.Clone(), nil
}

func (s *MemoryPolicyStore) ListPolicies(_ context.Context) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AuditEntry is one recorded evaluation outcome.
type AuditEntry struct {
	TraceID   string    `json:"trace_id,omitempty"`
	SubjectID string    `json:"subject_id"`
	Resource  string    `json:"resource"`
	Action    string    `json:"action"`
	Effect    Effect    `json:"effect"`
	PolicyID  string    `json:"policy_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Cached    bool      `json:"cached,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditFilter narrows an audit query. Zero-valued fields match everything.
type AuditFilter struct {
	SubjectID string
	Resource  string
	Effect    Effect
	Since     time.Time
	Limit     int
}

func (f AuditFilter) matches(e *AuditEntry) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Effect != "" && e.Effect != f.Effect {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// AuditStore records evaluation outcomes for later inspection.
type AuditStore interface {
	Record(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// MemoryAuditStore keeps a bounded ring of recent entries.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
	max     int
}

func NewMemoryAuditStore(max int) *MemoryAuditStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryAuditStore{max: max}
}

func (s *MemoryAuditStore) Record(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *entry
	if dup.Timestamp.IsZero() {
		dup.Timestamp = time.Now()
	}
	s.entries = append(s.entries, &dup)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

func (s *MemoryAuditStore) Query(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditEntry, 0)
	// Newest first.
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !filter.matches(e) {
			continue
		}
		dup := *e
		out = append(out, &dup)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
