package query

import (
	"strings"

	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/schema"
)

// BuildDeleteQuery compiles a hard DELETE against [N_data] gated only by the
// caller's predicate (spec.md §4.4: "soft-delete gate off — a hard delete").
func BuildDeleteQuery(info *schema.Info, req *envelope.DeleteRequest) (Statement, error) {
	allowed := map[string]bool{}
	for attr, el := range info.IKeyMap {
		if el.Type == schema.ElemHash || el.Type == schema.ElemRange {
			allowed[attr] = true
		}
	}
	where, args, err := buildWhereClause(info, req.Attributes, "", allowed)
	if err != nil {
		return Statement{}, err
	}
	sql := "DELETE FROM " + quoteIdent(info.PhysicalName)
	if where != "" {
		sql += " WHERE " + where
	}
	return Statement{SQL: sql, Args: args}, nil
}

// BuildDeleteExpiredQuery compiles the GC statement that hard-purges
// soft-deleted rows once their grace period has elapsed.
func BuildDeleteExpiredQuery(info *schema.Info, now int64) Statement {
	sql := "DELETE FROM " + quoteIdent(info.PhysicalName) +
		" WHERE " + quoteIdent(schema.AttrExistUntil) + " < ?"
	return Statement{SQL: sql, Args: []any{now}}
}

// BuildDeleteOlderQuery compiles a single-row delete keyed by iKeys, used by
// the latest_hash retention policy to physically remove a superseded
// revision rather than merely tombstoning it. keyValues holds physical
// values straight out of a prior scan (see BuildTombstoneQuery), so they
// are bound as-is rather than re-encoded.
func BuildDeleteOlderQuery(info *schema.Info, keyValues map[string]any) (Statement, error) {
	var parts []string
	var args []any
	for _, k := range info.IKeys {
		v, ok := keyValues[k]
		if !ok {
			continue
		}
		parts = append(parts, quoteIdent(k)+" = ?")
		args = append(args, v)
	}
	sql := "DELETE FROM " + quoteIdent(info.PhysicalName) + " WHERE " + strings.Join(parts, " AND ")
	return Statement{SQL: sql, Args: args}, nil
}
