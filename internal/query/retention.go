package query

import (
	"strings"

	"github.com/rowkeep/rowkeep/internal/schema"
)

// BuildTombstoneQuery emits an UPDATE that sets only _exist_until for the row
// identified by keyValues (every iKeys attribute). internal/retention uses
// this to soft-delete superseded revisions without touching any other
// column. keyValues holds physical values straight out of a prior scan
// (internal/retention reads them via Runner.All, never through a codec's
// Read), so they are bound as-is rather than re-encoded: re-running a
// timeuuid or similar rewriting codec's Write over an already-rewritten
// physical value would corrupt it.
func BuildTombstoneQuery(info *schema.Info, keyValues map[string]any, existUntil int64) (Statement, error) {
	var whereParts []string
	var whereArgs []any
	for _, k := range info.IKeys {
		v, ok := keyValues[k]
		if !ok {
			continue
		}
		whereParts = append(whereParts, quoteIdent(k)+" = ?")
		whereArgs = append(whereArgs, v)
	}
	sql := "UPDATE " + quoteIdent(info.PhysicalName) + " SET " + quoteIdent(schema.AttrExistUntil) +
		" = ? WHERE " + strings.Join(whereParts, " AND ")
	args := append([]any{existUntil}, whereArgs...)
	return Statement{SQL: sql, Args: args}, nil
}
