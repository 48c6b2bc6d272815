package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLGrantStore persists role grants in SQL.
type SQLGrantStore struct {
	db *squealx.DB
}

func NewSQLGrantStore(db *squealx.DB) *SQLGrantStore {
	return &SQLGrantStore{db: db}
}

func (s *SQLGrantStore) Assign(ctx context.Context, grant *pdp.RoleGrant) error {
	grantedAt := grant.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = time.Now()
	}
	q := `INSERT INTO role_grants(user_id, role_id, granted_by, granted_at, expires_at)
	      VALUES(:user_id, :role_id, :granted_by, :granted_at, :expires_at)
	      ON CONFLICT(user_id, role_id) DO UPDATE SET
	        granted_by = excluded.granted_by,
	        granted_at = excluded.granted_at,
	        expires_at = excluded.expires_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":    grant.UserID,
		"role_id":    grant.RoleID,
		"granted_by": grant.GrantedBy,
		"granted_at": grantedAt,
		"expires_at": timeOrNil(grant.ExpiresAt),
	})
	return err
}

func (s *SQLGrantStore) Revoke(ctx context.Context, userID, roleID string) error {
	q := `DELETE FROM role_grants WHERE user_id = :user_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_id": roleID})
	return err
}

func (s *SQLGrantStore) ListBySubject(ctx context.Context, userID string) ([]*pdp.RoleGrant, error) {
	q := `SELECT user_id, role_id, granted_by, granted_at, expires_at FROM role_grants WHERE user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.RoleGrant, 0)
	for r.Next() {
		var (
			uid, rid, grantedBy    string
			grantedRaw, expiresRaw any
		)
		if err := r.Scan(&uid, &rid, &grantedBy, &grantedRaw, &expiresRaw); err != nil {
			return nil, err
		}
		out = append(out, &pdp.RoleGrant{
			UserID:    uid,
			RoleID:    rid,
			GrantedBy: grantedBy,
			GrantedAt: scanTime(grantedRaw),
			ExpiresAt: scanTime(expiresRaw),
		})
	}
	return out, nil
}

func (s *SQLGrantStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	q := `DELETE FROM role_grants WHERE expires_at IS NOT NULL AND expires_at <= :now`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"now": now})
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
