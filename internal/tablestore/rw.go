package tablestore

import (
	"context"
	"net/http"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
)

// Get implements C8's get (spec.md §4.8). An unknown table is treated as an
// empty result, not an engine error (spec.md §4.4's failure semantics).
func (db *DB) Get(ctx context.Context, domain string, req *envelope.GetRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)
	info, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}
	if info == nil {
		return &envelope.Response{Status: http.StatusNotFound, Body: envelope.GetBody{Count: 0, Items: []map[string]any{}}}
	}

	now := db.clock.NowMillis()
	stmt, err := query.BuildGetQuery(info, req, true, now)
	if err != nil {
		return errorResponse(err)
	}
	rows, err := db.client.All(ctx, stmt)
	if err != nil {
		return errorResponse(err)
	}

	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		converted, err := decodeRow(info, row)
		if err != nil {
			return errorResponse(err)
		}
		items = append(items, converted)
	}

	status := http.StatusOK
	if len(items) == 0 {
		status = http.StatusNotFound
	}
	body := envelope.GetBody{Count: len(items), Items: items}
	if req.Next != 0 || req.Limit != 0 {
		next := req.Next + len(items)
		body.Next = &next
	}
	return &envelope.Response{Status: status, Body: body}
}

// decodeRow strips bookkeeping columns and passes every remaining scanned
// value through its attribute's codec Read (spec.md §4.8).
func decodeRow(info *schema.Info, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for col, raw := range row {
		if col == schema.AttrExistUntil || col == schema.AttrDomainGhost {
			continue
		}
		conv, ok := info.Converters[col]
		if !ok {
			out[col] = raw
			continue
		}
		v, err := conv.Read(raw)
		if err != nil {
			return nil, apierr.Engine("tablestore: decode column", err).With("column", col)
		}
		out[col] = v
	}
	return out, nil
}

// Put implements C8's put: resolve schema, compile, execute inside one
// transaction, then trigger retention (spec.md §4.8–4.9). Retention runs
// best-effort after the write commits and never fails the caller's put.
func (db *DB) Put(ctx context.Context, domain string, req *envelope.PutRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)
	info, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}
	if info == nil {
		return errorResponse(apierr.NotFound("tablestore: no schema for table", nil).With("table", n))
	}

	now := db.clock.NowMillis()
	plan, err := query.BuildPutQuery(info, req, now, false)
	if err != nil {
		return errorResponse(err)
	}
	if err := db.client.Run(ctx, plan.Statements); err != nil {
		return errorResponse(err)
	}

	db.retention.Apply(info, plan, now)

	return &envelope.Response{Status: http.StatusCreated}
}

// Delete implements C8's delete: a hard delete gated only by the caller's
// predicate (spec.md §4.4).
func (db *DB) Delete(ctx context.Context, domain string, req *envelope.DeleteRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)
	info, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}
	if info == nil {
		return errorResponse(apierr.NotFound("tablestore: no schema for table", nil).With("table", n))
	}
	stmt, err := query.BuildDeleteQuery(info, req)
	if err != nil {
		return errorResponse(err)
	}
	if err := db.client.Run(ctx, []query.Statement{stmt}); err != nil {
		return errorResponse(err)
	}
	return &envelope.Response{Status: http.StatusNoContent}
}

// ListTables returns the physical names of every managed logical table — a
// supplemented feature (original_source/ exposes table enumeration; spec.md's
// distillation dropped it since the envelope only names single-table ops).
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	req := &envelope.GetRequest{Proj: []string{"table"}}
	stmt, err := query.BuildGetQuery(db.metaInfo(), req, true, db.clock.NowMillis())
	if err != nil {
		return nil, err
	}
	rows, err := db.client.All(ctx, stmt)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if s, ok := row["table"].(string); ok {
			names = append(names, s)
		} else if b, ok := row["table"].([]byte); ok {
			names = append(names, string(b))
		}
	}
	return names, nil
}
