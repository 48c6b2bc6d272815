package pdp

import (
	"context"
	"sync"
	"time"
)

// RoleGrant binds a subject to a role, optionally until an expiry instant.
// A zero ExpiresAt means the grant never expires.
type RoleGrant struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	RoleID    string    `json:"role_id" yaml:"role_id"`
	GrantedBy string    `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at" yaml:"granted_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// IsExpired reports whether the grant has lapsed at the given instant.
func (g *RoleGrant) IsExpired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && !now.Before(g.ExpiresAt)
}

// IsValid reports whether the grant is in force right now.
func (g *RoleGrant) IsValid() bool {
	return !g.IsExpired(time.Now())
}

// GrantStore persists subject-to-role assignments. Implementations must be
// safe for concurrent use. ListBySubject returns every stored grant
// including expired ones; callers filter with IsValid.
type GrantStore interface {
	Assign(ctx context.Context, grant *RoleGrant) error
	Revoke(ctx context.Context, userID, roleID string) error
	ListBySubject(ctx context.Context, userID string) ([]*RoleGrant, error)
	// DeleteExpired removes every grant lapsed at the given instant and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryGrantStore is the default in-process GrantStore.
type MemoryGrantStore struct {
	mu     sync.RWMutex
	grants map[string]map[string]*RoleGrant // userID -> roleID -> grant
}

func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make(map[string]map[string]*RoleGrant)}
}

func (s *MemoryGrantStore) Assign(_ context.Context, grant *RoleGrant) error {
	if grant == nil || grant.UserID == "" || grant.RoleID == "" {
		return &ConfigError{Msg: "grant requires user_id and role_id"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byRole, ok := s.grants[grant.UserID]
	if !ok {
		byRole = make(map[string]*RoleGrant)
		s.grants[grant.UserID] = byRole
	}
	dup := *grant
	if dup.GrantedAt.IsZero() {
		dup.GrantedAt = time.Now()
	}
	byRole[grant.RoleID] = &dup
	return nil
}

func (s *MemoryGrantStore) Revoke(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byRole, ok := s.grants[userID]; ok {
		delete(byRole, roleID)
		if len(byRole) == 0 {
			delete(s.grants, userID)
		}
	}
	return nil
}

func (s *MemoryGrantStore) ListBySubject(_ context.Context, userID string) ([]*RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byRole := s.grants[userID]
	out := make([]*RoleGrant, 0, len(byRole))
	for _, g := range byRole {
		dup := *g
		out = append(out, &dup)
	}
	return out, nil
}

func (s *MemoryGrantStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, byRole := range s.grants {
		for roleID, g := range byRole {
			if g.IsExpired(now) {
				delete(byRole, roleID)
				removed++
			}
		}
		if len(byRole) == 0 {
			delete(s.grants, userID)
		}
	}
	return removed, nil
}
