// Package query implements C4, spec.md §4.4: compiling structured
// get/put/delete/create-table requests into parameterized SQL against the
// physical tables internal/schema derives. No component here ever executes a
// statement; internal/storage/sqlite does that.
package query

import (
	"fmt"
	"strings"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/schema"
)

// Statement is one compiled SQL string with its positional parameter vector.
type Statement struct {
	SQL  string
	Args []any
}

// StaticTableName and SecondaryTableName derive the sidecar physical
// table names from a logical table's physical name (spec.md §3).
func StaticTableName(physicalName string) string { return physicalName + "_static" }
func SecondaryTableName(physicalName string) string {
	return physicalName + "_secondaryIndex"
}
func SecondaryIndexSQLName(physicalName, idxName string) string {
	return physicalName + "_index_" + idxName
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

func qualify(alias, attr string) string {
	if alias == "" {
		return quoteIdent(attr)
	}
	return alias + "." + quoteIdent(attr)
}

func physicalColumnType(c schema.Info, attr string) (string, error) {
	conv, ok := c.Converters[attr]
	if !ok {
		return "", apierr.BadRequest("query: unknown attribute", nil).With("attribute", attr)
	}
	return string(conv.Physical()), nil
}

// resolvePredicateOperator extracts the single populated operator (or bare
// value) from a Predicate, per spec.md §4.4: "exactly one of eq, lt, gt, le,
// ge, between".
func resolvePredicateOperator(p envelope.Predicate) (op string, val any, err error) {
	if p.IsBare {
		return "eq", p.Raw, nil
	}
	set := 0
	if p.Eq != nil {
		op, val, set = "eq", p.Eq, set+1
	}
	if p.Lt != nil {
		op, val, set = "lt", p.Lt, set+1
	}
	if p.Gt != nil {
		op, val, set = "gt", p.Gt, set+1
	}
	if p.Le != nil {
		op, val, set = "le", p.Le, set+1
	}
	if p.Ge != nil {
		op, val, set = "ge", p.Ge, set+1
	}
	if p.Between[0] != nil || p.Between[1] != nil {
		op, val, set = "between", p.Between, set+1
	}
	if set != 1 {
		return "", nil, apierr.BadRequest("query: predicate must set exactly one operator", nil)
	}
	return op, val, nil
}

func operatorSQL(column, op string) (string, int, error) {
	switch op {
	case "eq":
		return fmt.Sprintf("%s = ?", column), 1, nil
	case "lt":
		return fmt.Sprintf("%s < ?", column), 1, nil
	case "gt":
		return fmt.Sprintf("%s > ?", column), 1, nil
	case "le":
		return fmt.Sprintf("%s <= ?", column), 1, nil
	case "ge":
		return fmt.Sprintf("%s >= ?", column), 1, nil
	case "between":
		return fmt.Sprintf("%s BETWEEN ? AND ?", column), 2, nil
	default:
		return "", 0, apierr.BadRequest("query: unknown predicate operator", nil).With("operator", op)
	}
}

// encodePredicateArgs converts a resolved operator's value(s) through attr's
// codec, returning the arguments in SQL parameter order.
func encodePredicateArgs(info *schema.Info, attr, op string, val any) ([]any, error) {
	conv, ok := info.Converters[attr]
	if !ok {
		return nil, apierr.BadRequest("query: predicate references unknown attribute", nil).With("attribute", attr)
	}
	if op == "between" {
		pair, ok := val.([2]any)
		if !ok {
			return nil, apierr.BadRequest("query: between requires a two-element array", nil).With("attribute", attr)
		}
		lo, err := conv.Write(pair[0])
		if err != nil {
			return nil, apierr.BadRequest("query: invalid between lower bound", err).With("attribute", attr)
		}
		hi, err := conv.Write(pair[1])
		if err != nil {
			return nil, apierr.BadRequest("query: invalid between upper bound", err).With("attribute", attr)
		}
		return []any{lo, hi}, nil
	}
	w, err := conv.Write(val)
	if err != nil {
		return nil, apierr.BadRequest("query: invalid predicate value", err).With("attribute", attr)
	}
	return []any{w}, nil
}
