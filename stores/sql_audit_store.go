package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/pdp"
)

// SQLAuditStore persists decision audit entries in SQL.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) Record(ctx context.Context, entry *pdp.AuditEntry) error {
	q := `INSERT INTO audit_log(trace_id, subject_id, resource, action, effect, policy_id, reason, cached, timestamp)
	      VALUES(:trace_id, :subject_id, :resource, :action, :effect, :policy_id, :reason, :cached, :timestamp)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"trace_id":   entry.TraceID,
		"subject_id": entry.SubjectID,
		"resource":   entry.Resource,
		"action":     entry.Action,
		"effect":     string(entry.Effect),
		"policy_id":  entry.PolicyID,
		"reason":     entry.Reason,
		"cached":     boolToInt(entry.Cached),
		"timestamp":  entry.Timestamp,
	})
	return err
}

func (s *SQLAuditStore) Query(ctx context.Context, filter pdp.AuditFilter) ([]*pdp.AuditEntry, error) {
	q := `SELECT trace_id, subject_id, resource, action, effect, policy_id, reason, cached, timestamp
	      FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = filter.Resource
	}
	if filter.Effect != "" {
		q += " AND effect = :effect"
		params["effect"] = string(filter.Effect)
	}
	if !filter.Since.IsZero() {
		q += " AND timestamp >= :since"
		params["since"] = filter.Since
	}
	q += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*pdp.AuditEntry, 0)
	for r.Next() {
		var (
			traceID, subjectID, resource, action, effect, policyID, reason string
			cachedInt                                                      int
			tsRaw                                                          any
		)
		if err := r.Scan(&traceID, &subjectID, &resource, &action, &effect, &policyID, &reason, &cachedInt, &tsRaw); err != nil {
			return nil, err
		}
		out = append(out, &pdp.AuditEntry{
			TraceID:   traceID,
			SubjectID: subjectID,
			Resource:  resource,
			Action:    action,
			Effect:    pdp.Effect(effect),
			PolicyID:  policyID,
			Reason:    reason,
			Cached:    cachedInt != 0,
			Timestamp: scanTime(tsRaw),
		})
	}
	return out, nil
}
