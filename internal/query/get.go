package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/schema"
)

const (
	dataAlias      = "d"
	staticAlias    = "s"
	secondaryAlias = "x"
)

// BuildGetQuery compiles a SELECT against either the data table (joined to
// the static sidecar when the projection needs it) or a named secondary
// index's sidecar table (spec.md §4.4). now is the caller's wall-clock
// reference in milliseconds, used by the default soft-delete gate.
func BuildGetQuery(info *schema.Info, req *envelope.GetRequest, includePreparedForDelete bool, now int64) (Statement, error) {
	if req.Index != "" {
		return buildSecondaryGetQuery(info, req, now)
	}
	return buildDataGetQuery(info, req, includePreparedForDelete, now)
}

func buildDataGetQuery(info *schema.Info, req *envelope.GetRequest, includePreparedForDelete bool, now int64) (Statement, error) {
	proj := req.Proj
	if len(proj) == 0 || (len(proj) == 1 && proj[0] == "*") {
		proj = defaultDataProjection(info)
	}

	needsStaticJoin := false
	var selectCols []string
	for _, attr := range proj {
		if isStaticAttr(info, attr) {
			needsStaticJoin = true
			selectCols = append(selectCols, staticAlias+"."+quoteIdent(attr))
		} else {
			if _, ok := info.AllAttributes[attr]; !ok {
				return Statement{}, apierr.BadRequest("query: projection references unknown attribute", nil).With("attribute", attr)
			}
			selectCols = append(selectCols, dataAlias+"."+quoteIdent(attr))
		}
	}

	sql := "SELECT "
	if req.Distinct {
		sql += "DISTINCT "
	}
	sql += strings.Join(selectCols, ", ")
	sql += " FROM " + quoteIdent(info.PhysicalName) + " " + dataAlias

	if info.HasStatic && needsStaticJoin {
		hk := hashKeys(info)
		var onParts []string
		for _, k := range hk {
			onParts = append(onParts, dataAlias+"."+quoteIdent(k)+" = "+staticAlias+"."+quoteIdent(k))
		}
		sql += " LEFT OUTER JOIN " + quoteIdent(StaticTableName(info.PhysicalName)) + " " + staticAlias +
			" ON " + strings.Join(onParts, " AND ")
	}

	allowed := map[string]bool{}
	for attr, el := range info.IKeyMap {
		if el.Type == schema.ElemHash || el.Type == schema.ElemRange {
			allowed[attr] = true
		}
	}
	where, args, err := buildWhereClause(info, req.Attributes, dataAlias, allowed)
	if err != nil {
		return Statement{}, err
	}

	gate, gateArgs := softDeleteGate(dataAlias, includePreparedForDelete, now)
	if gate != "" {
		if where != "" {
			where += " AND " + gate
		} else {
			where = gate
		}
		args = append(args, gateArgs...)
	}
	if where != "" {
		sql += " WHERE " + where
	}

	orderSQL, err := buildOrderClause(info, req.Order, dataAlias)
	if err != nil {
		return Statement{}, err
	}
	sql += orderSQL
	sql += buildLimitOffset(req.Limit, req.Next)

	return Statement{SQL: sql, Args: args}, nil
}

func buildSecondaryGetQuery(info *schema.Info, req *envelope.GetRequest, now int64) (Statement, error) {
	sub, ok := info.SecondaryIndexes[req.Index]
	if !ok {
		return Statement{}, apierr.BadRequest("query: unknown secondary index", nil).With("index", req.Index)
	}
	proj := req.Proj
	if len(proj) == 0 || (len(proj) == 1 && proj[0] == "*") {
		proj = append(append([]string{}, sub.Keys...), sub.Proj...)
	}
	var selectCols []string
	for _, attr := range proj {
		selectCols = append(selectCols, secondaryAlias+"."+quoteIdent(attr))
	}

	table := SecondaryTableName(info.PhysicalName)
	sql := "SELECT "
	if req.Distinct {
		sql += "DISTINCT "
	}
	sql += strings.Join(selectCols, ", ") + " FROM " + quoteIdent(table) + " " + secondaryAlias

	allowed := map[string]bool{}
	for _, k := range sub.Keys {
		allowed[k] = true
	}
	where, args, err := buildWhereClause(info, req.Attributes, secondaryAlias, allowed)
	if err != nil {
		return Statement{}, err
	}
	if where != "" {
		sql += " WHERE " + where
	}

	orderSQL, err := buildOrderClause(info, req.Order, secondaryAlias)
	if err != nil {
		return Statement{}, err
	}
	sql += orderSQL
	sql += buildLimitOffset(req.Limit, req.Next)

	return Statement{SQL: sql, Args: args}, nil
}

// defaultDataProjection is every non-static attribute plus every static
// attribute (spec.md §4.4: "req.proj or all declared attributes"),
// excluding the soft-delete bookkeeping column.
func defaultDataProjection(info *schema.Info) []string {
	var out []string
	for _, attr := range dataTableAttributes(info) {
		if attr == schema.AttrExistUntil {
			continue
		}
		out = append(out, attr)
	}
	out = append(out, info.StaticAttrs...)
	return out
}

func softDeleteGate(alias string, includePreparedForDelete bool, now int64) (string, []any) {
	col := alias + "." + quoteIdent(schema.AttrExistUntil)
	if includePreparedForDelete {
		return "(" + col + " > ? OR " + col + " IS NULL)", []any{now}
	}
	return col + " IS NULL", nil
}

func buildWhereClause(info *schema.Info, attrs map[string]envelope.Predicate, alias string, allowed map[string]bool) (string, []any, error) {
	if len(attrs) == 0 {
		return "", nil, nil
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	var args []any
	for _, attr := range names {
		if !allowed[attr] {
			return "", nil, apierr.BadRequest("query: predicate references a non-key attribute", nil).With("attribute", attr)
		}
		pred := attrs[attr]
		op, val, err := resolvePredicateOperator(pred)
		if err != nil {
			return "", nil, err
		}
		clauseSQL, _, err := operatorSQL(qualify(alias, attr), op)
		if err != nil {
			return "", nil, err
		}
		encoded, err := encodePredicateArgs(info, attr, op, val)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clauseSQL)
		args = append(args, encoded...)
	}
	return strings.Join(parts, " AND "), args, nil
}

// buildOrderClause validates that every ordered attribute is a range key and
// that the requested directions are uniformly the same as, or uniformly
// reversed from, the schema's declared range order (spec.md §4.4: "the
// backing engine cannot interleave directions arbitrarily").
func buildOrderClause(info *schema.Info, order map[string]string, alias string) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	var declaredRange []schema.IndexElement
	for _, attr := range info.IKeys {
		if el, ok := info.IKeyMap[attr]; ok && el.Type == schema.ElemRange {
			declaredRange = append(declaredRange, el)
		}
	}

	sameCount, revCount := 0, 0
	for _, el := range declaredRange {
		want, ok := order[el.Attribute]
		if !ok {
			continue
		}
		if want != envelope.OrderAsc && want != envelope.OrderDesc {
			return "", apierr.BadRequest("query: invalid order direction", nil).With("attribute", el.Attribute).With("order", want)
		}
		if want == el.Order {
			sameCount++
		} else {
			revCount++
		}
	}
	for attr := range order {
		isRange := false
		for _, el := range declaredRange {
			if el.Attribute == attr {
				isRange = true
				break
			}
		}
		if !isRange {
			return "", apierr.BadRequest("query: order references a non-range-key attribute", nil).With("attribute", attr)
		}
	}
	if sameCount > 0 && revCount > 0 {
		return "", apierr.BadRequest("query: order directions must be uniformly same or uniformly reversed", nil)
	}

	reversed := revCount > 0
	var parts []string
	for _, el := range declaredRange {
		if _, ok := order[el.Attribute]; !ok {
			continue
		}
		dir := el.Order
		if reversed {
			if dir == schema.OrderAsc {
				dir = schema.OrderDesc
			} else {
				dir = schema.OrderAsc
			}
		}
		parts = append(parts, alias+"."+quoteIdent(el.Attribute)+" "+strings.ToUpper(dir))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func buildLimitOffset(limit, next int) string {
	var sb strings.Builder
	if limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}
	if next > 0 {
		if limit <= 0 {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(next))
	}
	return sb.String()
}
