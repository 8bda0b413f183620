package schema

// MetaTableName is the fixed physical table backing the schema registry
// itself (spec.md §4.3 "global_schema_data"). It is bootstrapped with
// Builtin() the same way any logical table is, so schema storage goes
// through the same codec/query machinery as user data.
const MetaTableName = "global_schema_data"

// Builtin returns the logical schema for the schema registry: one row per
// managed table, keyed by table name, holding the table's current
// normalized schema as a json blob.
func Builtin() *Schema {
	return &Schema{
		Table: MetaTableName,
		Attributes: map[string]string{
			"table": "string",
			"value": "json",
		},
		Index: []IndexElement{
			{Attribute: "table", Type: ElemHash},
		},
		RevisionRetentionPolicy: &RetentionPolicy{Type: RetentionLatest, Count: 1},
		Version:                 1,
	}
}
