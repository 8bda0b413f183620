package schema

import (
	"github.com/rowkeep/rowkeep/internal/apierr"
)

// Validate checks the four axes spec.md §4.2 names and fills in the defaults
// it describes (range order, empty secondaryIndexes map, version). It
// mutates s in place so callers always work from the normalized form.
func Validate(s *Schema) error {
	if s.Table == "" {
		return apierr.BadRequest("schema: table name is required", nil)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Attributes == nil {
		s.Attributes = map[string]string{}
	}
	if len(s.Index) == 0 {
		return apierr.BadRequest("schema: index must declare at least one element", nil).
			With("table", s.Table)
	}
	hasHash := false
	for i := range s.Index {
		el := &s.Index[i]
		if el.Attribute == "" {
			return apierr.BadRequest("schema: index element missing attribute", nil).With("table", s.Table)
		}
		if _, ok := s.Attributes[el.Attribute]; !ok && !isBookkeeping(el.Attribute) {
			return apierr.BadRequest("schema: index element references undeclared attribute", nil).
				With("table", s.Table).With("attribute", el.Attribute)
		}
		switch el.Type {
		case ElemHash:
			hasHash = true
			if el.Order != "" {
				return apierr.BadRequest("schema: hash index elements do not take an order", nil).
					With("attribute", el.Attribute)
			}
		case ElemRange:
			if el.Order == "" {
				el.Order = OrderDesc
			}
			if el.Order != OrderAsc && el.Order != OrderDesc {
				return apierr.BadRequest("schema: invalid range order", nil).
					With("attribute", el.Attribute).With("order", el.Order)
			}
		case ElemStatic:
			if el.Order != "" {
				return apierr.BadRequest("schema: static index elements do not take an order", nil).
					With("attribute", el.Attribute)
			}
		default:
			return apierr.BadRequest("schema: invalid index element type", nil).
				With("attribute", el.Attribute).With("type", el.Type)
		}
	}
	if !hasHash {
		return apierr.BadRequest("schema: index must declare at least one hash element", nil).
			With("table", s.Table)
	}

	if s.SecondaryIndexes == nil {
		s.SecondaryIndexes = map[string][]IndexElement{}
	}
	for name, elems := range s.SecondaryIndexes {
		if len(elems) == 0 {
			return apierr.BadRequest("schema: secondary index must declare at least one element", nil).
				With("index", name)
		}
		for i := range elems {
			el := &elems[i]
			if el.Attribute == "" {
				return apierr.BadRequest("schema: secondary index element missing attribute", nil).With("index", name)
			}
			if _, ok := s.Attributes[el.Attribute]; !ok {
				return apierr.BadRequest("schema: secondary index references undeclared attribute", nil).
					With("index", name).With("attribute", el.Attribute)
			}
			switch el.Type {
			case ElemHash, ElemProj:
				// no order
			case ElemRange:
				if el.Order == "" {
					el.Order = OrderDesc
				}
			default:
				return apierr.BadRequest("schema: invalid secondary index element type", nil).
					With("index", name).With("type", el.Type)
			}
		}
	}

	if s.RevisionRetentionPolicy == nil {
		s.RevisionRetentionPolicy = &RetentionPolicy{Type: RetentionAll}
	}
	switch s.RevisionRetentionPolicy.Type {
	case RetentionAll, RetentionLatest, RetentionLatestHash, RetentionInterval:
	default:
		return apierr.BadRequest("schema: invalid revisionRetentionPolicy.type", nil).
			With("type", s.RevisionRetentionPolicy.Type)
	}
	return nil
}

func isBookkeeping(attr string) bool {
	return attr == AttrTid || attr == AttrExistUntil
}
