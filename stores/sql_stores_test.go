package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/pdp"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testPolicy(id string) *pdp.Policy {
	rule, _ := pdp.NewRule(pdp.OpAnd, pdp.Cond(pdp.Condition{
		Namespace: pdp.NamespaceSubject,
		Attribute: "department",
		Operator:  pdp.OpEquals,
		Value:     "engineering",
	}))
	return &pdp.Policy{
		ID:       id,
		Name:     "Test " + id,
		Effect:   pdp.EffectAllow,
		Rules:    []*pdp.Rule{rule},
		Priority: 7,
		Enabled:  true,
	}
}

func TestSQLPolicyStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLPolicyStore(newTestDB(t))

	if err := store.CreatePolicy(ctx, testPolicy("p1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetPolicy(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Effect != pdp.EffectAllow || got.Priority != 7 || !got.Enabled {
		t.Fatalf("unexpected policy: %+v", got)
	}
	attrs := pdp.NewAttributes()
	attrs.Set(pdp.NamespaceSubject, "department", pdp.StringAttr("engineering", "test"))
	if !got.Matches(attrs) {
		t.Fatalf("stored rule tree must survive the round trip")
	}

	got.Priority = 99
	got.Enabled = false
	if err := store.UpdatePolicy(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := store.GetPolicy(ctx, "p1")
	if updated.Priority != 99 || updated.Enabled {
		t.Fatalf("update not persisted: %+v", updated)
	}

	list, err := store.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(list))
	}

	if err := store.DeletePolicy(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetPolicy(ctx, "p1"); err == nil {
		t.Fatalf("deleted policy must not resolve")
	}
	if err := store.DeletePolicy(ctx, "p1"); err == nil {
		t.Fatalf("double delete must report not found")
	}
}

func TestSQLGrantStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLGrantStore(newTestDB(t))

	if err := store.Assign(ctx, &pdp.RoleGrant{UserID: "alice", RoleID: "editor", GrantedBy: "admin"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	// Upsert replaces the existing grant.
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := store.Assign(ctx, &pdp.RoleGrant{UserID: "alice", RoleID: "editor", ExpiresAt: expiry}); err != nil {
		t.Fatalf("re-assign: %v", err)
	}

	grants, err := store.ListBySubject(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("upsert must keep one row, got %d", len(grants))
	}
	if grants[0].ExpiresAt.IsZero() {
		t.Fatalf("expiry must round-trip")
	}

	if err := store.Revoke(ctx, "alice", "editor"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	grants, _ = store.ListBySubject(ctx, "alice")
	if len(grants) != 0 {
		t.Fatalf("revoked grant must be gone, got %+v", grants)
	}
}

func TestSQLGrantStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewSQLGrantStore(newTestDB(t))
	now := time.Now()

	_ = store.Assign(ctx, &pdp.RoleGrant{UserID: "a", RoleID: "keep"})
	_ = store.Assign(ctx, &pdp.RoleGrant{UserID: "a", RoleID: "drop", ExpiresAt: now.Add(-time.Hour)})

	removed, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	grants, _ := store.ListBySubject(ctx, "a")
	if len(grants) != 1 || grants[0].RoleID != "keep" {
		t.Fatalf("permanent grant must survive the sweep, got %+v", grants)
	}
}

func TestSQLAuditStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLAuditStore(newTestDB(t))

	entry := &pdp.AuditEntry{
		TraceID:   "trace-1",
		SubjectID: "alice",
		Resource:  "document:1",
		Action:    "read",
		Effect:    pdp.EffectDeny,
		PolicyID:  "p-deny",
		Reason:    "outside business hours",
		Timestamp: time.Now().UTC(),
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, &pdp.AuditEntry{SubjectID: "bob", Action: "write", Effect: pdp.EffectAllow, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := store.Query(ctx, pdp.AuditFilter{SubjectID: "alice"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry for alice, got %d", len(entries))
	}
	got := entries[0]
	if got.TraceID != "trace-1" || got.Effect != pdp.EffectDeny || got.Reason != "outside business hours" {
		t.Fatalf("unexpected entry: %+v", got)
	}

	denied, err := store.Query(ctx, pdp.AuditFilter{Effect: pdp.EffectDeny})
	if err != nil {
		t.Fatalf("query by effect: %v", err)
	}
	if len(denied) != 1 {
		t.Fatalf("expected 1 denied entry, got %d", len(denied))
	}
}
