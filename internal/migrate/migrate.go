// Package migrate implements C10, spec.md §4.10: validating that a proposed
// schema diff is something SQLite can apply in place, and emitting the
// additive DDL for it.
package migrate

import (
	"sort"
	"strings"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/schema"
)

// Plan is the additive DDL a validated migration must execute, in order.
type Plan struct {
	Statements []query.Statement
}

// Validate checks the four axes from spec.md §4.10 and returns a Plan if the
// diff is purely additive, or a bad_request error describing the first
// disallowed change otherwise. No DDL is returned on error (testable
// property: "a migrator... either validates... or throws before issuing any
// DDL").
func Validate(current, proposed *schema.Info) (*Plan, error) {
	if current.Schema.Table != proposed.Schema.Table {
		return nil, apierr.BadRequest("migrate: table name cannot change", nil).
			With("from", current.Schema.Table).With("to", proposed.Schema.Table)
	}
	if proposed.Schema.Version <= current.Schema.Version {
		return nil, apierr.BadRequest("migrate: version must strictly increase", nil).
			With("current", current.Schema.Version).With("proposed", proposed.Schema.Version)
	}

	if err := validateAttributes(current, proposed); err != nil {
		return nil, err
	}
	if err := validateIndex(current, proposed); err != nil {
		return nil, err
	}

	plan := &Plan{}
	newlyStatic := false
	newNames := make([]string, 0, len(proposed.AllAttributes))
	for name := range proposed.AllAttributes {
		newNames = append(newNames, name)
	}
	sort.Strings(newNames)
	for _, name := range newNames {
		if _, existed := current.AllAttributes[name]; existed {
			continue
		}
		if isStaticAttr(proposed, name) {
			newlyStatic = true
			continue
		}
		physType, err := physicalType(proposed, name)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, query.Statement{
			SQL: "ALTER TABLE " + quoteIdent(proposed.PhysicalName) +
				" ADD COLUMN " + quoteIdent(name) + " " + physType,
		})
	}

	if newlyStatic && !current.HasStatic {
		staticSQL, err := query.BuildStaticTableSQL(proposed)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, staticSQL)
	} else if newlyStatic && current.HasStatic {
		for _, name := range proposed.StaticAttrs {
			if isStaticAttr(current, name) {
				continue
			}
			physType, err := physicalType(proposed, name)
			if err != nil {
				return nil, err
			}
			plan.Statements = append(plan.Statements, query.Statement{
				SQL: "ALTER TABLE " + quoteIdent(query.StaticTableName(proposed.PhysicalName)) +
					" ADD COLUMN " + quoteIdent(name) + " " + physType,
			})
		}
	}

	if proposed.HasSecondary {
		secondaryStmts, err := query.BuildSecondaryIndexTableSQL(proposed)
		if err != nil {
			return nil, err
		}
		plan.Statements = append(plan.Statements, secondaryStmts...)
	}

	return plan, nil
}

func validateAttributes(current, proposed *schema.Info) error {
	for name, currentType := range current.AllAttributes {
		proposedType, stillPresent := proposed.AllAttributes[name]
		if !stillPresent {
			// Logical drop only: "omit from '*' projection" (spec.md §4.10).
			// No physical column is removed.
			continue
		}
		if proposedType != currentType {
			return apierr.BadRequest("migrate: attribute type cannot change", nil).
				With("attribute", name).With("from", currentType).With("to", proposedType)
		}
	}
	return nil
}

func validateIndex(current, proposed *schema.Info) error {
	for attr, currentEl := range current.IKeyMap {
		proposedEl, stillPresent := proposed.IKeyMap[attr]
		if !stillPresent {
			if currentEl.Type == schema.ElemStatic {
				continue // static removal allowed
			}
			return apierr.BadRequest("migrate: hash/range key cannot be removed", nil).With("attribute", attr)
		}
		if currentEl.Type != proposedEl.Type {
			if currentEl.Type == schema.ElemStatic || proposedEl.Type == schema.ElemStatic {
				if currentEl.Type == schema.ElemHash || currentEl.Type == schema.ElemRange {
					return apierr.BadRequest("migrate: cannot change an existing hash/range column's index type", nil).
						With("attribute", attr)
				}
			}
			return apierr.BadRequest("migrate: cannot change an existing column's index type", nil).
				With("attribute", attr)
		}
		if currentEl.Type == schema.ElemRange && currentEl.Order != proposedEl.Order {
			return apierr.BadRequest("migrate: cannot change an existing range column's order", nil).With("attribute", attr)
		}
	}
	for attr, proposedEl := range proposed.IKeyMap {
		if _, existed := current.IKeyMap[attr]; existed {
			continue
		}
		if proposedEl.Type != schema.ElemStatic {
			return apierr.BadRequest("migrate: only static index elements may be added", nil).With("attribute", attr)
		}
	}
	return nil
}

func isStaticAttr(info *schema.Info, attr string) bool {
	for _, s := range info.StaticAttrs {
		if s == attr {
			return true
		}
	}
	return false
}

func physicalType(info *schema.Info, attr string) (string, error) {
	conv, ok := info.Converters[attr]
	if !ok {
		return "", apierr.BadRequest("migrate: unknown attribute", nil).With("attribute", attr)
	}
	return string(conv.Physical()), nil
}

func quoteIdent(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` }

// IsIdempotentDDLError reports whether err is the engine's "already exists"
// or "duplicate column" response to DDL this migrator already applied
// (spec.md §4.10: "swallowed (idempotent migration)").
func IsIdempotentDDLError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column")
}
