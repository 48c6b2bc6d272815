package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLPolicyStore persists policies in SQL via squealx named queries. Rule
// trees are stored as JSON in rules_json; the schema stays flat while the
// rule structure keeps its full shape.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *pdp.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := time.Now()
	created := p.CreatedAt
	if created.IsZero() {
		created = now
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return err
	}
	q := `INSERT INTO policies(id, name, description, effect, rules_json, priority, enabled, created_at, updated_at)
	      VALUES(:id, :name, :description, :effect, :rules_json, :priority, :enabled, :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"effect":      string(p.Effect),
		"rules_json":  string(rules),
		"priority":    p.Priority,
		"enabled":     boolToInt(p.Enabled),
		"created_at":  created,
		"updated_at":  now,
	})
	return err
}

func (s *SQLPolicyStore) UpdatePolicy(ctx context.Context, p *pdp.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return err
	}
	q := `UPDATE policies SET name=:name, description=:description, effect=:effect, rules_json=:rules_json,
	      priority=:priority, enabled=:enabled, updated_at=:updated_at WHERE id=:id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"effect":      string(p.Effect),
		"rules_json":  string(rules),
		"priority":    p.Priority,
		"enabled":     boolToInt(p.Enabled),
		"updated_at":  time.Now(),
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("policy %s not found", p.ID)
	}
	return nil
}

func (s *SQLPolicyStore) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.db.NamedExecContext(ctx, `DELETE FROM policies WHERE id = :id`, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("policy %s not found", id)
	}
	return nil
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*pdp.Policy, error) {
	q := `SELECT id, name, description, effect, rules_json, priority, enabled, created_at, updated_at
	      FROM policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy %s not found", id)
	}
	return scanPolicy(r)
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context) ([]*pdp.Policy, error) {
	q := `SELECT id, name, description, effect, rules_json, priority, enabled, created_at, updated_at
	      FROM policies ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.Policy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(r rowScanner) (*pdp.Policy, error) {
	var (
		id, name, description, effect, rulesJSON string
		priority, enabledInt                     int
		createdRaw, updatedRaw                   any
	)
	if err := r.Scan(&id, &name, &description, &effect, &rulesJSON, &priority, &enabledInt, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	p := &pdp.Policy{
		ID:          id,
		Name:        name,
		Description: description,
		Effect:      pdp.Effect(effect),
		Priority:    priority,
		Enabled:     enabledInt != 0,
		CreatedAt:   scanTime(createdRaw),
		UpdatedAt:   scanTime(updatedRaw),
	}
	if err := json.Unmarshal([]byte(rulesJSON), &p.Rules); err != nil {
		return nil, fmt.Errorf("decode rules for policy %s: %w", id, err)
	}
	return p, nil
}
