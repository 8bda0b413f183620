package tablestore

import (
	"context"
	"net/http"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/migrate"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
)

// CreateTable implements C7's createTable (spec.md §4.7): materialize on
// first sight, no-op on an identical re-declaration, migrate in place when
// the schema's hash changed and the diff is additive.
func (db *DB) CreateTable(ctx context.Context, domain string, req *envelope.CreateTableRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)

	proposed := ToLogicalSchema(req)
	if err := schema.Validate(proposed); err != nil {
		return errorResponse(err)
	}
	proposedInfo, err := schema.DeriveInfo(proposed, n)
	if err != nil {
		return errorResponse(err)
	}

	current, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}

	if current == nil {
		stmts, err := query.BuildCreateStatements(proposedInfo)
		if err != nil {
			return errorResponse(err)
		}
		if err := db.client.Run(ctx, stmts); err != nil {
			return errorResponse(err)
		}
		if err := db.writeMetaSchema(ctx, n, proposed); err != nil {
			return errorResponse(err)
		}
		db.cachePut(n, proposedInfo)
		return &envelope.Response{Status: http.StatusCreated}
	}

	if current.Hash == proposedInfo.Hash {
		return &envelope.Response{Status: http.StatusCreated}
	}

	plan, err := migrate.Validate(current, proposedInfo)
	if err != nil {
		return errorResponse(err)
	}
	for _, stmt := range plan.Statements {
		if err := db.client.Run(ctx, []query.Statement{stmt}); err != nil {
			if migrate.IsIdempotentDDLError(err) {
				continue
			}
			return errorResponse(err)
		}
	}
	if err := db.writeMetaSchema(ctx, n, proposed); err != nil {
		return errorResponse(err)
	}
	db.stmts.InvalidateTable(n)
	db.cachePut(n, proposedInfo)
	return &envelope.Response{Status: http.StatusCreated}
}

// DropTable implements C7's dropTable: idempotent, succeeds even if the
// table was already absent.
func (db *DB) DropTable(ctx context.Context, domain string, req *envelope.DropTableRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)
	info, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}
	if info == nil {
		return &envelope.Response{Status: http.StatusNoContent}
	}
	stmts := query.BuildDropStatements(info)
	if err := db.client.Run(ctx, stmts); err != nil {
		return errorResponse(err)
	}
	if err := db.deleteMetaSchema(ctx, n); err != nil {
		return errorResponse(err)
	}
	db.stmts.InvalidateTable(n)
	db.cacheDelete(n)
	return &envelope.Response{Status: http.StatusNoContent}
}

// GetTableSchema implements C7's getTableSchema.
func (db *DB) GetTableSchema(ctx context.Context, domain string, req *envelope.GetTableSchemaRequest) *envelope.Response {
	n := db.physicalName(domain, req.Table)
	info, err := db.loadSchemaInfo(ctx, n)
	if err != nil {
		return errorResponse(err)
	}
	if info == nil {
		return errorResponse(apierr.NotFound("tablestore: no schema for table", nil).With("table", n))
	}
	headers := map[string]string{}
	if tid, err := db.readMetaRowTid(ctx, n); err == nil && tid != "" {
		headers["etag"] = tid
	}
	return &envelope.Response{Status: http.StatusOK, Headers: headers, Body: info.Schema}
}

func errorResponse(err error) *envelope.Response {
	status := apierr.StatusOf(err)
	body := envelope.ErrorBody{Type: "engine", Title: err.Error()}
	var apiErr *apierr.Error
	if e, ok := err.(*apierr.Error); ok {
		apiErr = e
	}
	if apiErr != nil {
		body.Type = string(apiErr.Type)
		body.Title = apiErr.Title
		body.Ctx = apiErr.Context
	}
	return &envelope.Response{Status: status, Body: body}
}
