package tablestore

import (
	"github.com/rowkeep/rowkeep/internal/envelope"
	"github.com/rowkeep/rowkeep/internal/schema"
)

func toSchemaIndex(els []envelope.IndexElement) []schema.IndexElement {
	out := make([]schema.IndexElement, len(els))
	for i, el := range els {
		out[i] = schema.IndexElement{Attribute: el.Attribute, Type: el.Type, Order: el.Order}
	}
	return out
}

func toSchemaSecondaryIndexes(m map[string][]envelope.IndexElement) map[string][]schema.IndexElement {
	if m == nil {
		return nil
	}
	out := make(map[string][]schema.IndexElement, len(m))
	for name, els := range m {
		out[name] = toSchemaIndex(els)
	}
	return out
}

func toSchemaRetention(rp *envelope.RetentionPolicy) *schema.RetentionPolicy {
	if rp == nil {
		return nil
	}
	return &schema.RetentionPolicy{Type: rp.Type, Count: rp.Count, GraceTTL: rp.GraceTTL, Interval: rp.Interval}
}

func toSchemaOptions(o *envelope.Options) *schema.Options {
	if o == nil {
		return nil
	}
	return &schema.Options{Durability: o.Durability}
}

// ToLogicalSchema builds the author-supplied schema.Schema from a
// createTable request envelope.
func ToLogicalSchema(req *envelope.CreateTableRequest) *schema.Schema {
	return &schema.Schema{
		Table:                   req.Table,
		Attributes:              req.Attributes,
		Index:                   toSchemaIndex(req.Index),
		SecondaryIndexes:        toSchemaSecondaryIndexes(req.SecondaryIndexes),
		RevisionRetentionPolicy: toSchemaRetention(req.RevisionRetentionPolicy),
		Version:                 req.Version,
		Options:                 toSchemaOptions(req.Options),
	}
}
