// Package schema implements C2 (validation/normalization) and C3
// (schema-info derivation) from spec.md §4.2–4.3: turning an author-supplied
// logical schema into the canonical, hashed, codec-annotated view the rest of
// rowkeep compiles queries against.
package schema

// IndexElement is one entry of a schema's `index` or `secondaryIndexes[name]`
// sequence (spec.md §3).
type IndexElement struct {
	Attribute string `json:"attribute"`
	Type      string `json:"type"` // hash, range, static, proj
	Order     string `json:"order,omitempty"`
}

const (
	ElemHash   = "hash"
	ElemRange  = "range"
	ElemStatic = "static"
	ElemProj   = "proj"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// RetentionPolicy is `revisionRetentionPolicy` from spec.md §3/§4.9.
type RetentionPolicy struct {
	Type     string `json:"type"` // all, latest, latest_hash, interval
	Count    int    `json:"count,omitempty"`
	GraceTTL int64  `json:"grace_ttl,omitempty"` // seconds
	Interval int64  `json:"interval,omitempty"`  // seconds
}

const (
	RetentionAll        = "all"
	RetentionLatest     = "latest"
	RetentionLatestHash = "latest_hash"
	RetentionInterval   = "interval"
)

// Options is the advisory `options` block from spec.md §3.
type Options struct {
	Durability string `json:"durability,omitempty"`
}

// Schema is the author-supplied logical schema.
type Schema struct {
	Table                   string                    `json:"table"`
	Attributes              map[string]string         `json:"attributes"`
	Index                   []IndexElement            `json:"index"`
	SecondaryIndexes        map[string][]IndexElement `json:"secondaryIndexes,omitempty"`
	RevisionRetentionPolicy *RetentionPolicy          `json:"revisionRetentionPolicy,omitempty"`
	Version                 int                       `json:"version,omitempty"`
	Options                 *Options                  `json:"options,omitempty"`
}

// Injected bookkeeping attribute names (spec.md §3).
const (
	AttrTid         = "_tid"
	AttrExistUntil  = "_exist_until"
	AttrDomainGhost = "_domain" // stripped on read if present, never declared by callers
)
