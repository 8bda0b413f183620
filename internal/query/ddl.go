package query

import (
	"sort"
	"strings"

	"github.com/rowkeep/rowkeep/internal/schema"
)

func hashKeys(info *schema.Info) []string {
	var keys []string
	for _, attr := range info.IKeys {
		if el, ok := info.IKeyMap[attr]; ok && el.Type == schema.ElemHash {
			keys = append(keys, attr)
		}
	}
	return keys
}

// BuildTableSQL emits the CREATE TABLE statement for [N_data] (spec.md §4.4).
// Primary key = iKeys, in declared order.
func BuildTableSQL(info *schema.Info) (Statement, error) {
	dataAttrs := dataTableAttributes(info)

	var cols []string
	for _, attr := range dataAttrs {
		typ, err := physicalColumnType(*info, attr)
		if err != nil {
			return Statement{}, err
		}
		cols = append(cols, quoteIdent(attr)+" "+typ)
	}
	pk := make([]string, len(info.IKeys))
	for i, k := range info.IKeys {
		pk[i] = quoteIdent(k)
	}
	cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	sql := "CREATE TABLE IF NOT EXISTS " + quoteIdent(info.PhysicalName) +
		" (\n  " + strings.Join(cols, ",\n  ") + "\n)"
	return Statement{SQL: sql}, nil
}

// dataTableAttributes returns every attribute except those declared static,
// in a stable order: hash/range keys first (as declared), then the rest
// alphabetically.
func dataTableAttributes(info *schema.Info) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range info.IKeys {
		out = append(out, k)
		seen[k] = true
	}
	var rest []string
	for attr := range info.AllAttributes {
		if seen[attr] {
			continue
		}
		if isStaticAttr(info, attr) {
			continue
		}
		rest = append(rest, attr)
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func isStaticAttr(info *schema.Info, attr string) bool {
	for _, s := range info.StaticAttrs {
		if s == attr {
			return true
		}
	}
	return false
}

// BuildStaticTableSQL emits [N_static]'s DDL: columns = hash keys + static
// attributes, primary key = hash keys.
func BuildStaticTableSQL(info *schema.Info) (Statement, error) {
	hk := hashKeys(info)
	var cols []string
	for _, attr := range hk {
		typ, err := physicalColumnType(*info, attr)
		if err != nil {
			return Statement{}, err
		}
		cols = append(cols, quoteIdent(attr)+" "+typ)
	}
	for _, attr := range info.StaticAttrs {
		typ, err := physicalColumnType(*info, attr)
		if err != nil {
			return Statement{}, err
		}
		cols = append(cols, quoteIdent(attr)+" "+typ)
	}
	pk := make([]string, len(hk))
	for i, k := range hk {
		pk[i] = quoteIdent(k)
	}
	cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	sql := "CREATE TABLE IF NOT EXISTS " + quoteIdent(StaticTableName(info.PhysicalName)) +
		" (\n  " + strings.Join(cols, ",\n  ") + "\n)"
	return Statement{SQL: sql}, nil
}

// BuildSecondaryIndexTableSQL emits [N_secondaryIndex]'s DDL plus one SQL
// index per logical secondary index, over that index's own declared keys.
func BuildSecondaryIndexTableSQL(info *schema.Info) ([]Statement, error) {
	colSet := map[string]bool{}
	var allCols []string
	addCol := func(attr string) {
		if !colSet[attr] {
			colSet[attr] = true
			allCols = append(allCols, attr)
		}
	}
	parentPK := map[string]bool{}
	for _, k := range info.IKeys {
		if k == info.TidAttr {
			continue
		}
		addCol(k)
		parentPK[k] = true
	}
	for _, idx := range sortedSecondaryNames(info) {
		sub := info.SecondaryIndexes[idx]
		for _, k := range sub.Keys {
			addCol(k)
		}
		for _, p := range sub.Proj {
			addCol(p)
		}
	}

	var cols []string
	for _, attr := range allCols {
		typ, err := physicalColumnType(*info, attr)
		if err != nil {
			return nil, err
		}
		cols = append(cols, quoteIdent(attr)+" "+typ)
	}
	pk := make([]string, 0, len(parentPK))
	for _, k := range info.IKeys {
		if parentPK[k] {
			pk = append(pk, quoteIdent(k))
		}
	}
	cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	tableName := SecondaryTableName(info.PhysicalName)
	createSQL := "CREATE TABLE IF NOT EXISTS " + quoteIdent(tableName) +
		" (\n  " + strings.Join(cols, ",\n  ") + "\n)"
	stmts := []Statement{{SQL: createSQL}}

	for _, idx := range sortedSecondaryNames(info) {
		sub := info.SecondaryIndexes[idx]
		idxCols := make([]string, len(sub.Keys))
		for i, k := range sub.Keys {
			idxCols[i] = quoteIdent(k)
		}
		idxSQL := "CREATE INDEX IF NOT EXISTS " + quoteIdent(SecondaryIndexSQLName(info.PhysicalName, idx)) +
			" ON " + quoteIdent(tableName) + " (" + strings.Join(idxCols, ", ") + ")"
		stmts = append(stmts, Statement{SQL: idxSQL})
	}
	return stmts, nil
}

func sortedSecondaryNames(info *schema.Info) []string {
	names := make([]string, 0, len(info.SecondaryIndexes))
	for name := range info.SecondaryIndexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildCreateStatements returns every DDL statement needed to materialize a
// logical table's physical layout: data table, static sidecar iff the schema
// declares static columns, secondary-index sidecar + SQL indexes iff the
// schema declares secondary indexes.
func BuildCreateStatements(info *schema.Info) ([]Statement, error) {
	var stmts []Statement
	data, err := BuildTableSQL(info)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, data)

	if info.HasStatic {
		static, err := BuildStaticTableSQL(info)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, static)
	}
	if info.HasSecondary {
		secondary, err := BuildSecondaryIndexTableSQL(info)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, secondary...)
	}
	return stmts, nil
}

// BuildDropStatements returns the DDL to tear down a logical table's
// physical layout, mirroring BuildCreateStatements's membership rules.
func BuildDropStatements(info *schema.Info) []Statement {
	var stmts []Statement
	if info.HasSecondary {
		for _, idx := range sortedSecondaryNames(info) {
			stmts = append(stmts, Statement{SQL: "DROP INDEX IF EXISTS " + quoteIdent(SecondaryIndexSQLName(info.PhysicalName, idx))})
		}
		stmts = append(stmts, Statement{SQL: "DROP TABLE IF EXISTS " + quoteIdent(SecondaryTableName(info.PhysicalName))})
	}
	if info.HasStatic {
		stmts = append(stmts, Statement{SQL: "DROP TABLE IF EXISTS " + quoteIdent(StaticTableName(info.PhysicalName))})
	}
	stmts = append(stmts, Statement{SQL: "DROP TABLE IF EXISTS " + quoteIdent(info.PhysicalName)})
	return stmts
}
