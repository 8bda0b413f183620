// Package envelope defines the request/response shapes rowkeep's operations
// accept and return (spec.md §6). These are the only types a caller (an HTTP
// router, a CLI command, a test) needs to construct; everything downstream of
// internal/tablestore works in terms of them.
package envelope

import "encoding/json"

// Predicate is one entry of a Get/Delete request's attributes map: either a
// bare equality value or an operator object with exactly one key set.
type Predicate struct {
	Eq      any    `json:"eq,omitempty"`
	Lt      any    `json:"lt,omitempty"`
	Gt      any    `json:"gt,omitempty"`
	Le      any    `json:"le,omitempty"`
	Ge      any    `json:"ge,omitempty"`
	Between [2]any `json:"between,omitempty"`

	// Raw holds a bare (non-operator) value when the caller supplied
	// `{attr: value}` instead of `{attr: {eq: value}}`. Exactly one of Raw
	// or the operator fields above is populated.
	Raw    any
	IsBare bool
}

// Bare constructs a bare-value predicate.
func Bare(v any) Predicate { return Predicate{Raw: v, IsBare: true} }

type predicateOperators struct {
	Eq      any    `json:"eq,omitempty"`
	Lt      any    `json:"lt,omitempty"`
	Gt      any    `json:"gt,omitempty"`
	Le      any    `json:"le,omitempty"`
	Ge      any    `json:"ge,omitempty"`
	Between [2]any `json:"between,omitempty"`
}

// UnmarshalJSON accepts both request shapes an attributes map entry can take:
// a bare value (`"u1"`) or an operator object (`{"lt": 5}`).
func (p *Predicate) UnmarshalJSON(data []byte) error {
	var ops predicateOperators
	if err := json.Unmarshal(data, &ops); err == nil && looksLikeOperatorObject(data) {
		p.Eq, p.Lt, p.Gt, p.Le, p.Ge, p.Between = ops.Eq, ops.Lt, ops.Gt, ops.Le, ops.Ge, ops.Between
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Raw, p.IsBare = raw, true
	return nil
}

func looksLikeOperatorObject(data []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	switch len(probe) {
	case 0:
		return false
	default:
		for k := range probe {
			switch k {
			case "eq", "lt", "gt", "le", "ge", "between":
			default:
				return false
			}
		}
		return true
	}
}

// MarshalJSON round-trips a Predicate as whichever shape it was built from.
func (p Predicate) MarshalJSON() ([]byte, error) {
	if p.IsBare {
		return json.Marshal(p.Raw)
	}
	return json.Marshal(predicateOperators{p.Eq, p.Lt, p.Gt, p.Le, p.Ge, p.Between})
}

// Order is one entry of a request's `order` map.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// CreateTableRequest is the body of a createTable operation.
type CreateTableRequest struct {
	Table                   string
	Attributes              map[string]string
	Index                   []IndexElement
	SecondaryIndexes        map[string][]IndexElement
	RevisionRetentionPolicy *RetentionPolicy
	Version                 int
	Options                 *Options
}

// IndexElement mirrors schema.IndexElement at the envelope boundary so
// callers don't need to import internal/schema directly.
type IndexElement struct {
	Attribute string
	Type      string
	Order     string
}

// RetentionPolicy mirrors schema.RetentionPolicy at the envelope boundary.
type RetentionPolicy struct {
	Type     string
	Count    int
	GraceTTL int64
	Interval int64
}

// Options mirrors schema.Options at the envelope boundary.
type Options struct {
	Durability string
}

// DropTableRequest is the body of a dropTable operation.
type DropTableRequest struct {
	Table string
}

// GetTableSchemaRequest is the body of a getTableSchema operation.
type GetTableSchemaRequest struct {
	Table string
}

// GetRequest is the body of a get operation.
type GetRequest struct {
	Table      string
	Attributes map[string]Predicate
	Proj       []string // "*" is represented as []string{"*"}
	Order      map[string]string
	Limit      int
	Next       int
	Index      string // names a secondaryIndexes entry, if routing there
	Distinct   bool

	// includePreparedForDelete mirrors spec.md §4.4's
	// buildGetQuery(..., includePreparedForDelete) flag: false restricts a
	// read to rows whose _exist_until IS NULL (never tombstoned). It is a
	// parameter of query.BuildGetQuery, not part of the public request
	// shape; internal/tablestore and internal/retention both pass true.
}

// PutRequest is the body of a put operation.
type PutRequest struct {
	Table      string
	Attributes map[string]any
	If         any // nil, "not exists", or map[string]Predicate
	WithTTL    int64
}

// DeleteRequest is the body of a delete operation.
type DeleteRequest struct {
	Table      string
	Attributes map[string]Predicate
}

// Response is the uniform operation result (spec.md §6).
type Response struct {
	Status  int
	Headers map[string]string
	Body    any
}

// GetBody is the body shape for a successful get response.
type GetBody struct {
	Count int              `json:"count"`
	Items []map[string]any `json:"items"`
	Next  *int             `json:"next,omitempty"`
}

// ErrorBody is the body shape for a 4xx/5xx response.
type ErrorBody struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Ctx   map[string]any `json:"ctx,omitempty"`
}
