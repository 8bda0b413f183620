// Package retention implements C9, spec.md §4.9: after every successful put,
// applying the schema's revisionRetentionPolicy by soft-deleting (and
// opportunistically purging) superseded revisions within a hash-key group.
package retention

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
	"github.com/rowkeep/rowkeep/internal/timeuuid"
)

// Runner is the subset of *sqlite.Client retention needs: read the current
// group and run the tombstone/purge transaction. A narrow interface keeps
// this package testable without a real database file.
type Runner interface {
	All(ctx context.Context, stmt query.Statement) ([]map[string]any, error)
	Run(ctx context.Context, stmts []query.Statement) error
}

// Engine applies retention policies. GC runs in its own transaction, off the
// critical path of the write that triggered it (spec.md §5: "best-effort and
// not part of the write transaction's atomicity").
type Engine struct {
	db  Runner
	log *slog.Logger
}

func New(db Runner, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{db: db, log: log}
}

// Apply schedules the policy described by info against the row just written
// (plan), returning an errgroup the caller may optionally Wait on (tests do;
// production call sites let it run to completion in the background).
func (e *Engine) Apply(info *schema.Info, plan *query.PutPlan, now int64) *errgroup.Group {
	g := &errgroup.Group{}
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("retention: panic", "table", info.PhysicalName, "recovered", r)
				err = nil
			}
		}()
		if runErr := e.run(context.Background(), info, plan, now); runErr != nil {
			e.log.Warn("retention: gc failed", "table", info.PhysicalName, "error", runErr)
		}
		return nil
	})
	return g
}

func (e *Engine) run(ctx context.Context, info *schema.Info, plan *query.PutPlan, now int64) error {
	policy := info.Schema.RevisionRetentionPolicy
	if policy == nil || policy.Type == schema.RetentionAll {
		return nil
	}

	group := hashGroupValues(info, plan.Attributes)
	rows, err := e.liveGroupDescending(ctx, info, group, now)
	if err != nil {
		return err
	}

	var stmts []query.Statement
	switch policy.Type {
	case schema.RetentionLatest:
		stmts = append(stmts, tombstonePastCount(info, rows, policy.Count, now, policy.GraceTTL)...)
	case schema.RetentionLatestHash:
		stmts = append(stmts, tombstonePastCount(info, rows, policy.Count, now, policy.GraceTTL)...)
		if stmt, ok := adjacentDeleteStatement(info, rows, plan.Tid); ok {
			stmts = append(stmts, stmt)
		}
	case schema.RetentionInterval:
		stmts = append(stmts, intervalTombstones(info, rows, policy, now)...)
	}

	stmts = append(stmts, query.BuildDeleteExpiredQuery(info, now))
	if len(stmts) == 0 {
		return nil
	}
	return e.db.Run(ctx, stmts)
}

// hashGroupValues extracts the hash-key subset of a resolved attribute map.
func hashGroupValues(info *schema.Info, attrs map[string]any) map[string]any {
	out := map[string]any{}
	for attr, el := range info.IKeyMap {
		if el.Type == schema.ElemHash {
			out[attr] = attrs[attr]
		}
	}
	return out
}

// liveGroupDescending fetches every live row for the hash-key group, ordered
// by tid descending (newest first), using the same query compiler path a
// normal get uses.
func (e *Engine) liveGroupDescending(ctx context.Context, info *schema.Info, group map[string]any, now int64) ([]map[string]any, error) {
	attrs := make(map[string]envelope.Predicate, len(group))
	for k, v := range group {
		attrs[k] = envelope.Bare(v)
	}
	proj := append([]string{}, info.IKeys...)
	req := &envelope.GetRequest{
		Attributes: attrs,
		Proj:       proj,
		Order:      map[string]string{info.TidAttr: envelope.OrderDesc},
	}
	stmt, err := query.BuildGetQuery(info, req, true, now)
	if err != nil {
		return nil, err
	}
	return e.db.All(ctx, stmt)
}

func tombstonePastCount(info *schema.Info, rows []map[string]any, count int, now int64, graceTTLSeconds int64) []query.Statement {
	if count < 0 {
		count = 0
	}
	var stmts []query.Statement
	for i, row := range rows {
		if i < count {
			continue
		}
		keyValues := keyValuesFromRow(info, row)
		existUntil := now + graceTTLSeconds*1000
		stmt, err := query.BuildTombstoneQuery(info, keyValues, existUntil)
		if err != nil {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

// adjacentDeleteStatement implements the latest_hash adjacency rule (see
// DESIGN.md's Open Question decision): it physically deletes the row
// immediately older than the just-written revision in the descending-tid
// listing, i.e. the entry one position past the current write's.
func adjacentDeleteStatement(info *schema.Info, rowsDesc []map[string]any, writtenTid string) (query.Statement, bool) {
	idx := -1
	for i, row := range rowsDesc {
		if v, ok := row[info.TidAttr]; ok && rowString(v) == writtenTid {
			idx = i
			break
		}
	}
	if idx == -1 || idx+1 >= len(rowsDesc) {
		return query.Statement{}, false
	}
	older := rowsDesc[idx+1]
	keyValues := keyValuesFromRow(info, older)
	stmt, err := query.BuildDeleteOlderQuery(info, keyValues)
	if err != nil {
		return query.Statement{}, false
	}
	return stmt, true
}

func intervalTombstones(info *schema.Info, rowsDesc []map[string]any, policy *schema.RetentionPolicy, now int64) []query.Statement {
	type bucketed struct {
		row    map[string]any
		bucket int64
	}
	intervalMs := policy.Interval * 1000
	if intervalMs <= 0 {
		return nil
	}
	var items []bucketed
	for _, row := range rowsDesc {
		tidVal := rowString(row[info.TidAttr])
		millis, err := tidMillis(tidVal)
		if err != nil {
			continue
		}
		bucket := millis - (millis % intervalMs)
		items = append(items, bucketed{row: row, bucket: bucket})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].bucket > items[j].bucket })

	counts := map[int64]int{}
	var stmts []query.Statement
	for _, it := range items {
		counts[it.bucket]++
		if counts[it.bucket] <= policy.Count {
			continue
		}
		keyValues := keyValuesFromRow(info, it.row)
		existUntil := now + policy.GraceTTL*1000
		stmt, err := query.BuildTombstoneQuery(info, keyValues, existUntil)
		if err != nil {
			continue
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

func keyValuesFromRow(info *schema.Info, row map[string]any) map[string]any {
	out := make(map[string]any, len(info.IKeys))
	for _, k := range info.IKeys {
		if v, ok := row[k]; ok {
			out[k] = v
		}
	}
	return out
}

func rowString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

func tidMillis(stored string) (int64, error) {
	u, err := timeuuid.Read(stored)
	if err != nil {
		return 0, err
	}
	sec, nsec := u.Time().UnixTime()
	return sec*1000 + nsec/1_000_000, nil
}
