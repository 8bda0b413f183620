package retention

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
	"github.com/rowkeep/rowkeep/internal/timeuuid"
)

type fakeRunner struct {
	rows []map[string]any
	ran  [][]query.Statement
}

func (f *fakeRunner) All(ctx context.Context, stmt query.Statement) ([]map[string]any, error) {
	return f.rows, nil
}

func (f *fakeRunner) Run(ctx context.Context, stmts []query.Statement) error {
	f.ran = append(f.ran, stmts)
	return nil
}

func sessionsInfo(t *testing.T, policy *schema.RetentionPolicy) *schema.Info {
	t.Helper()
	s := &schema.Schema{
		Table:                   "sessions",
		Attributes:              map[string]string{"user_id": "string"},
		Index:                   []schema.IndexElement{{Attribute: "user_id", Type: schema.ElemHash}},
		RevisionRetentionPolicy: policy,
	}
	if err := schema.Validate(s); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	info, err := schema.DeriveInfo(s, "grp_sessions")
	if err != nil {
		t.Fatalf("DeriveInfo: %v", err)
	}
	return info
}

func mintTid(t *testing.T) string {
	t.Helper()
	stored, _, err := timeuuid.Mint()
	if err != nil {
		t.Fatalf("timeuuid.Mint: %v", err)
	}
	return stored
}

func TestHashGroupValuesExtractsOnlyHashKeys(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionAll})
	attrs := map[string]any{"user_id": "u1", info.TidAttr: "t1"}
	got := hashGroupValues(info, attrs)
	if len(got) != 1 || got["user_id"] != "u1" {
		t.Errorf("hashGroupValues = %v, want only user_id", got)
	}
}

func TestTombstonePastCountKeepsNewestCount(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatest, Count: 2})
	rows := []map[string]any{
		{"user_id": "u1", info.TidAttr: mintTid(t)},
		{"user_id": "u1", info.TidAttr: mintTid(t)},
		{"user_id": "u1", info.TidAttr: mintTid(t)},
	}
	stmts := tombstonePastCount(info, rows, 2, 1000, 0)
	if len(stmts) != 1 {
		t.Fatalf("expected exactly 1 tombstone statement (3 rows, keep 2), got %d", len(stmts))
	}
	if !strings.HasPrefix(stmts[0].SQL, "UPDATE") || !strings.Contains(stmts[0].SQL, "_exist_until") {
		t.Errorf("expected an _exist_until UPDATE, got %q", stmts[0].SQL)
	}
}

func TestTombstonePastCountAppliesGraceTTL(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatest, Count: 0, GraceTTL: 30})
	rows := []map[string]any{{"user_id": "u1", info.TidAttr: mintTid(t)}}
	stmts := tombstonePastCount(info, rows, 0, 1000, 30)
	if len(stmts) != 1 {
		t.Fatalf("expected 1 tombstone, got %d", len(stmts))
	}
	if stmts[0].Args[0] != int64(1000+30*1000) {
		t.Errorf("_exist_until arg = %v, want %d", stmts[0].Args[0], 1000+30*1000)
	}
}

func TestAdjacentDeleteStatementTargetsNextOlderRow(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatestHash, Count: 1})
	newest := mintTid(t)
	older := mintTid(t)
	rows := []map[string]any{
		{"user_id": "u1", info.TidAttr: newest},
		{"user_id": "u1", info.TidAttr: older},
	}
	stmt, ok := adjacentDeleteStatement(info, rows, newest)
	if !ok {
		t.Fatal("expected an adjacent delete statement")
	}
	if !strings.HasPrefix(stmt.SQL, "DELETE FROM") {
		t.Errorf("expected DELETE FROM, got %q", stmt.SQL)
	}
	if len(stmt.Args) == 0 || stmt.Args[len(stmt.Args)-1] != older {
		t.Errorf("expected the delete to key on the older tid %q, got args %v", older, stmt.Args)
	}
}

func TestAdjacentDeleteStatementNoOlderRow(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatestHash, Count: 1})
	newest := mintTid(t)
	rows := []map[string]any{{"user_id": "u1", info.TidAttr: newest}}
	if _, ok := adjacentDeleteStatement(info, rows, newest); ok {
		t.Error("expected no adjacent delete when there is no older row")
	}
}

func TestEngineApplyAllPolicyIsNoOp(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionAll})
	runner := &fakeRunner{}
	engine := New(runner, slog.Default())
	plan := &query.PutPlan{Attributes: map[string]any{"user_id": "u1", info.TidAttr: mintTid(t)}, Tid: "x"}
	g := engine.Apply(info, plan, 1000)
	if err := g.Wait(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(runner.ran) != 0 {
		t.Errorf("expected no statements run under the all policy, got %d batches", len(runner.ran))
	}
}

func TestEngineApplyLatestPolicyRunsGC(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatest, Count: 1})
	newTid := mintTid(t)
	runner := &fakeRunner{rows: []map[string]any{
		{"user_id": "u1", info.TidAttr: newTid},
		{"user_id": "u1", info.TidAttr: mintTid(t)},
	}}
	engine := New(runner, slog.Default())
	plan := &query.PutPlan{Attributes: map[string]any{"user_id": "u1", info.TidAttr: newTid}, Tid: newTid}
	g := engine.Apply(info, plan, 2000)
	if err := g.Wait(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(runner.ran) != 1 {
		t.Fatalf("expected exactly one GC transaction, got %d", len(runner.ran))
	}
	if len(runner.ran[0]) < 2 {
		t.Errorf("expected a tombstone statement plus the delete-expired sweep, got %+v", runner.ran[0])
	}
}

func TestEnginePanicRecovered(t *testing.T) {
	info := sessionsInfo(t, &schema.RetentionPolicy{Type: schema.RetentionLatest, Count: 1})
	engine := New(&panicRunner{}, slog.Default())
	plan := &query.PutPlan{Attributes: map[string]any{"user_id": "u1", info.TidAttr: mintTid(t)}, Tid: "x"}
	g := engine.Apply(info, plan, 1000)
	if err := g.Wait(); err != nil {
		t.Fatalf("Apply should recover from a panic and report no error, got %v", err)
	}
}

type panicRunner struct{}

func (panicRunner) All(ctx context.Context, stmt query.Statement) ([]map[string]any, error) {
	panic("boom")
}
func (panicRunner) Run(ctx context.Context, stmts []query.Statement) error { return nil }
