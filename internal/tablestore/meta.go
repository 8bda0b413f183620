package tablestore

import (
	"context"
	"encoding/json"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
)

func (db *DB) metaInfo() *schema.Info {
	info, _ := db.cacheGet(schema.MetaTableName)
	return info
}

// readMetaSchema returns the stored logical schema for physical table name
// N, or nil if no row exists.
func (db *DB) readMetaSchema(ctx context.Context, n string) (*schema.Schema, error) {
	req := &envelope.GetRequest{
		Attributes: map[string]envelope.Predicate{"table": envelope.Bare(n)},
		Proj:       []string{"table", "value"},
	}
	stmt, err := query.BuildGetQuery(db.metaInfo(), req, true, db.clock.NowMillis())
	if err != nil {
		return nil, apierr.Engine("tablestore: compile meta read", err)
	}
	rows, err := db.client.All(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	raw, err := asBytes(rows[0]["value"])
	if err != nil {
		return nil, apierr.Engine("tablestore: malformed meta row", err)
	}
	var s schema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apierr.Engine("tablestore: decode stored schema", err)
	}
	return &s, nil
}

// writeMetaSchema upserts the (table, value) row for N.
func (db *DB) writeMetaSchema(ctx context.Context, n string, s *schema.Schema) error {
	attrs := map[string]any{"table": n, "value": s}
	plan, err := query.BuildPutQuery(db.metaInfo(), &envelope.PutRequest{Attributes: attrs}, db.clock.NowMillis(), true)
	if err != nil {
		return apierr.Engine("tablestore: compile meta write", err)
	}
	// Every write mints a fresh _tid, so clear N's previous row in the same
	// transaction to keep exactly one row per table.
	del, err := query.BuildDeleteQuery(db.metaInfo(), &envelope.DeleteRequest{
		Attributes: map[string]envelope.Predicate{"table": envelope.Bare(n)},
	})
	if err != nil {
		return apierr.Engine("tablestore: compile meta write", err)
	}
	return db.client.Run(ctx, append([]query.Statement{del}, plan.Statements...))
}

// readMetaRowTid returns the bookkeeping tid of N's meta row, used as the
// getTableSchema response's etag header (spec.md §6:
// "headers.etag = tid.toString() where available").
func (db *DB) readMetaRowTid(ctx context.Context, n string) (string, error) {
	info := db.metaInfo()
	req := &envelope.GetRequest{
		Attributes: map[string]envelope.Predicate{"table": envelope.Bare(n)},
		Proj:       []string{info.TidAttr},
	}
	stmt, err := query.BuildGetQuery(info, req, true, db.clock.NowMillis())
	if err != nil {
		return "", err
	}
	rows, err := db.client.All(ctx, stmt)
	if err != nil || len(rows) == 0 {
		return "", err
	}
	raw, err := asBytes(rows[0][info.TidAttr])
	if err != nil {
		if s, ok := rows[0][info.TidAttr].(string); ok {
			return s, nil
		}
		return "", nil
	}
	return string(raw), nil
}

// deleteMetaSchema removes the meta row for N, if any.
func (db *DB) deleteMetaSchema(ctx context.Context, n string) error {
	stmt, err := query.BuildDeleteQuery(db.metaInfo(), &envelope.DeleteRequest{
		Attributes: map[string]envelope.Predicate{"table": envelope.Bare(n)},
	})
	if err != nil {
		return apierr.Engine("tablestore: compile meta delete", err)
	}
	return db.client.Run(ctx, []query.Statement{stmt})
}

// loadSchemaInfo resolves the derived schema-info for physical table name N:
// cache hit, else a meta read, else nil (spec.md §4.8). Concurrent first-
// access loads for the same N collapse into a single meta read.
func (db *DB) loadSchemaInfo(ctx context.Context, n string) (*schema.Info, error) {
	if info, ok := db.cacheGet(n); ok {
		return info, nil
	}
	v, err, _ := db.loadGroup.Do(n, func() (any, error) {
		s, err := db.readMetaSchema(ctx, n)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		info, err := schema.DeriveInfo(s, n)
		if err != nil {
			return nil, err
		}
		db.cachePut(n, info)
		return info, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*schema.Info), nil
}

func asBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, apierr.Engine("tablestore: unexpected column type", nil)
	}
}
