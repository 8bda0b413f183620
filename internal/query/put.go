package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/schema"
	"github.com/rowkeep/rowkeep/internal/timeuuid"
)

// PutPlan is the result of compiling a put request: the statements to run in
// order inside a single transaction, plus the fully-resolved attribute map
// (tid minted and TTL applied) a caller needs for retention bookkeeping.
type PutPlan struct {
	Statements []Statement
	Attributes map[string]any // resolved logical values, including tid/_exist_until
	Tid        string
	Timestamp  int64 // ms, the minted tid's embedded time; 0 when the request supplied its own tid
}

// BuildPutQuery compiles the statement sequence for a put (spec.md §4.4).
// ignoreStatic suppresses the static-sidecar replace even when static columns
// are present in the write; internal/tablestore's meta-table write passes
// true.
func BuildPutQuery(info *schema.Info, req *envelope.PutRequest, now int64, ignoreStatic bool) (*PutPlan, error) {
	attrs := make(map[string]any, len(req.Attributes)+2)
	for k, v := range req.Attributes {
		attrs[k] = v
	}

	ttlSeconds := req.WithTTL
	if raw, ok := attrs["_ttl"]; ok {
		delete(attrs, "_ttl")
		n, err := toInt64Any(raw)
		if err != nil {
			return nil, apierr.BadRequest("query: invalid _ttl value", err)
		}
		ttlSeconds = n
	}
	if ttlSeconds > 0 {
		attrs[schema.AttrExistUntil] = now + ttlSeconds*1000
	}

	tidVal, ok := attrs[info.TidAttr]
	var timestamp int64
	if !ok || tidVal == nil {
		u, millis, err := timeuuid.MintUUID()
		if err != nil {
			return nil, apierr.Engine("query: failed to mint tid", err)
		}
		attrs[info.TidAttr] = u.String()
		timestamp = millis
	} else if _, ok := tidVal.(string); !ok {
		return nil, apierr.BadRequest("query: tid must be a string", nil).With("attribute", info.TidAttr)
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		if _, ok := info.AllAttributes[name]; !ok {
			return nil, apierr.BadRequest("query: unknown attribute in put", nil).With("attribute", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	dataCols := make([]string, 0, len(names))
	dataArgs := make([]any, 0, len(names))
	var tid string
	for _, name := range names {
		if isStaticAttr(info, name) {
			continue
		}
		conv := info.Converters[name]
		w, err := conv.Write(attrs[name])
		if err != nil {
			return nil, apierr.BadRequest("query: invalid value for attribute", err).With("attribute", name)
		}
		if name == info.TidAttr {
			s, ok := w.(string)
			if !ok {
				return nil, apierr.Engine("query: tid codec produced a non-string stored value", nil).With("attribute", name)
			}
			tid = s
		}
		dataCols = append(dataCols, name)
		dataArgs = append(dataArgs, w)
	}

	var stmts []Statement

	switch ifVal := req.If.(type) {
	case string:
		if ifVal != "not exists" {
			return nil, apierr.BadRequest("query: unsupported if value", nil).With("if", ifVal)
		}
		stmts = append(stmts, buildInsertOrIgnore(info, dataCols, dataArgs))
	case map[string]envelope.Predicate:
		updateStmt, err := buildConditionalUpdate(info, dataCols, dataArgs, ifVal, now)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, updateStmt)
	case nil:
		updateStmt, err := buildUnconditionalUpdate(info, dataCols, dataArgs)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, updateStmt, buildInsertOrIgnore(info, dataCols, dataArgs))
	default:
		return nil, apierr.BadRequest("query: unsupported if type", nil)
	}

	if info.HasStatic && !ignoreStatic {
		if stmt, ok := buildStaticReplace(info, attrs); ok {
			stmts = append(stmts, stmt)
		}
	}

	if info.HasSecondary {
		stmts = append(stmts, BuildSecondaryIndexUpdateQuery(info, attrs)...)
	}

	return &PutPlan{Statements: stmts, Attributes: attrs, Tid: tid, Timestamp: timestamp}, nil
}

func buildInsertOrIgnore(info *schema.Info, cols []string, args []any) Statement {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	sql := "INSERT OR IGNORE INTO " + quoteIdent(info.PhysicalName) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	return Statement{SQL: sql, Args: append([]any{}, args...)}
}

func buildUnconditionalUpdate(info *schema.Info, cols []string, args []any) (Statement, error) {
	setParts, setArgs, whereParts, whereArgs := splitKeyAndSet(info, cols, args)
	if len(setParts) == 0 {
		return Statement{}, apierr.BadRequest("query: put must set at least one non-key attribute", nil)
	}
	sql := "UPDATE " + quoteIdent(info.PhysicalName) + " AS " + dataAlias + " SET " + strings.Join(setParts, ", ") +
		" WHERE " + strings.Join(whereParts, " AND ")
	return Statement{SQL: sql, Args: append(setArgs, whereArgs...)}, nil
}

func buildConditionalUpdate(info *schema.Info, cols []string, args []any, ifPred map[string]envelope.Predicate, now int64) (Statement, error) {
	setParts, setArgs, whereParts, whereArgs := splitKeyAndSet(info, cols, args)
	if len(setParts) == 0 {
		return Statement{}, apierr.BadRequest("query: put must set at least one non-key attribute", nil)
	}
	allowed := map[string]bool{}
	for attr, el := range info.IKeyMap {
		if el.Type != schema.ElemStatic {
			allowed[attr] = true
		}
	}
	condSQL, condArgs, err := buildWhereClause(info, ifPred, dataAlias, allowed)
	if err != nil {
		return Statement{}, err
	}
	gate, gateArgs := softDeleteGate(dataAlias, true, now)

	where := strings.Join(whereParts, " AND ")
	if condSQL != "" {
		where += " AND " + condSQL
	}
	where += " AND " + gate

	sql := "UPDATE " + quoteIdent(info.PhysicalName) + " AS " + dataAlias + " SET " + strings.Join(setParts, ", ") +
		" WHERE " + where
	allArgs := append(append(append(setArgs, whereArgs...), condArgs...), gateArgs...)
	return Statement{SQL: sql, Args: allArgs}, nil
}

// splitKeyAndSet partitions a put's resolved columns into the SET list
// (non-key attributes) and the WHERE list (iKeys), each unqualified for SET
// and alias-qualified for WHERE.
func splitKeyAndSet(info *schema.Info, cols []string, args []any) (setParts []string, setArgs []any, whereParts []string, whereArgs []any) {
	isKey := map[string]bool{}
	for _, k := range info.IKeys {
		isKey[k] = true
	}
	keyVal := map[string]any{}
	for i, c := range cols {
		if isKey[c] {
			keyVal[c] = args[i]
			continue
		}
		setParts = append(setParts, quoteIdent(c)+" = ?")
		setArgs = append(setArgs, args[i])
	}
	for _, k := range info.IKeys {
		v, ok := keyVal[k]
		if !ok {
			continue
		}
		whereParts = append(whereParts, dataAlias+"."+quoteIdent(k)+" = ?")
		whereArgs = append(whereArgs, v)
	}
	return
}

func buildStaticReplace(info *schema.Info, attrs map[string]any) (Statement, bool) {
	hk := hashKeys(info)
	anyStaticPresent := false
	for _, s := range info.StaticAttrs {
		if _, ok := attrs[s]; ok {
			anyStaticPresent = true
			break
		}
	}
	if !anyStaticPresent {
		return Statement{}, false
	}

	var cols []string
	var args []any
	for _, k := range hk {
		v, ok := attrs[k]
		if !ok {
			return Statement{}, false
		}
		w, err := info.Converters[k].Write(v)
		if err != nil {
			return Statement{}, false
		}
		cols = append(cols, k)
		args = append(args, w)
	}
	for _, s := range info.StaticAttrs {
		v, ok := attrs[s]
		if !ok {
			continue
		}
		w, err := info.Converters[s].Write(v)
		if err != nil {
			return Statement{}, false
		}
		cols = append(cols, s)
		args = append(args, w)
	}

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		placeholders[i] = "?"
	}
	sql := "INSERT OR REPLACE INTO " + quoteIdent(StaticTableName(info.PhysicalName)) +
		" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
	return Statement{SQL: sql, Args: args}, true
}

// BuildSecondaryIndexUpdateQuery emits one INSERT OR REPLACE per secondary
// index over the union of that index's keys and projected columns.
func BuildSecondaryIndexUpdateQuery(info *schema.Info, attrs map[string]any) []Statement {
	var stmts []Statement
	for _, idx := range sortedSecondaryNames(info) {
		sub := info.SecondaryIndexes[idx]
		var cols []string
		var args []any
		complete := true
		for _, k := range sub.Keys {
			v, ok := attrs[k]
			if !ok {
				complete = false
				break
			}
			w, err := info.Converters[k].Write(v)
			if err != nil {
				complete = false
				break
			}
			cols = append(cols, k)
			args = append(args, w)
		}
		if !complete {
			continue
		}
		for _, p := range sub.Proj {
			v, ok := attrs[p]
			if !ok {
				continue
			}
			w, err := info.Converters[p].Write(v)
			if err != nil {
				continue
			}
			cols = append(cols, p)
			args = append(args, w)
		}

		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = quoteIdent(c)
			placeholders[i] = "?"
		}
		sql := "INSERT OR REPLACE INTO " + quoteIdent(SecondaryTableName(info.PhysicalName)) +
			" (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
		stmts = append(stmts, Statement{SQL: sql, Args: args})
	}
	return stmts
}

func toInt64Any(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, apierr.BadRequest("query: expected an integer", nil)
	}
}
