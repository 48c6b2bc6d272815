package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/pdp"
)

// RedisGrantStore keeps each subject's grants in a Redis hash keyed
// grants:{userID}, field per role id, value the JSON-encoded grant. A hash
// per subject keeps ListBySubject a single HGETALL.
type RedisGrantStore struct {
	client *redis.Client
	keyFmt string
}

func NewRedisGrantStore(client *redis.Client) *RedisGrantStore {
	return &RedisGrantStore{client: client, keyFmt: "grants:%s"}
}

func (r *RedisGrantStore) key(userID string) string {
	return fmt.Sprintf(r.keyFmt, userID)
}

func (r *RedisGrantStore) Assign(ctx context.Context, grant *pdp.RoleGrant) error {
	if grant == nil || grant.UserID == "" || grant.RoleID == "" {
		return fmt.Errorf("grant requires user_id and role_id")
	}
	dup := *grant
	if dup.GrantedAt.IsZero() {
		dup.GrantedAt = time.Now()
	}
	payload, err := json.Marshal(&dup)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key(grant.UserID), grant.RoleID, payload).Err()
}

func (r *RedisGrantStore) Revoke(ctx context.Context, userID, roleID string) error {
	return r.client.HDel(ctx, r.key(userID), roleID).Err()
}

func (r *RedisGrantStore) ListBySubject(ctx context.Context, userID string) ([]*pdp.RoleGrant, error) {
	fields, err := r.client.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*pdp.RoleGrant, 0, len(fields))
	for roleID, payload := range fields {
		grant := &pdp.RoleGrant{}
		if err := json.Unmarshal([]byte(payload), grant); err != nil {
			return nil, fmt.Errorf("decode grant %s/%s: %w", userID, roleID, err)
		}
		out = append(out, grant)
	}
	return out, nil
}

// DeleteExpired scans grant hashes and removes lapsed entries. SCAN keeps
// the sweep incremental so large keyspaces do not block the server.
func (r *RedisGrantStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, fmt.Sprintf(r.keyFmt, "*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		for roleID, payload := range fields {
			grant := &pdp.RoleGrant{}
			if err := json.Unmarshal([]byte(payload), grant); err != nil {
				continue
			}
			if grant.IsExpired(now) {
				if err := r.client.HDel(ctx, key, roleID).Err(); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
