package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/sjson"

	"github.com/rowkeep/rowkeep/internal/codec"
)

// SecondaryIndexInfo is the derived sub-schema for one secondaryIndexes entry
// (spec.md §3, §4.3): its own declared keys, plus the parent's hash/range
// keys (minus tid) appended for uniqueness, plus any projected attributes.
type SecondaryIndexInfo struct {
	Name string
	Keys []string // ordered, deduplicated: own hash/range cols, then parent's
	Proj []string
}

// Info is the derived schema-info view (spec.md §3 "Derived schema-info").
type Info struct {
	Schema       *Schema
	PhysicalName string

	IKeys   []string                // hash+range attribute names, declared order
	IKeyMap map[string]IndexElement // attribute -> its index element (hash/range/static)

	TidAttr     string // the range-key attribute serving as the versioning key
	HasStatic   bool
	StaticAttrs []string // declared order

	HasSecondary     bool
	SecondaryIndexes map[string]*SecondaryIndexInfo

	// AllAttributes includes every declared attribute plus injected
	// bookkeeping columns (_tid, _exist_until).
	AllAttributes map[string]string
	Converters    map[string]codec.Codec

	Hash string
}

// DeriveInfo computes the derived view for schema s, which is materialized
// under physicalName (domain_table for logical tables, or the fixed meta
// table name for the bootstrap schema). s must already be Validate'd.
func DeriveInfo(s *Schema, physicalName string) (*Info, error) {
	info := &Info{
		Schema:           s,
		PhysicalName:     physicalName,
		IKeyMap:          map[string]IndexElement{},
		SecondaryIndexes: map[string]*SecondaryIndexInfo{},
		AllAttributes:    map[string]string{},
		Converters:       map[string]codec.Codec{},
	}

	for name, declared := range s.Attributes {
		info.AllAttributes[name] = declared
	}

	var rangeTail *IndexElement
	for i := range s.Index {
		el := s.Index[i]
		info.IKeyMap[el.Attribute] = el
		switch el.Type {
		case ElemHash, ElemRange:
			info.IKeys = append(info.IKeys, el.Attribute)
			if el.Type == ElemRange {
				e := el
				rangeTail = &e
			}
		case ElemStatic:
			info.StaticAttrs = append(info.StaticAttrs, el.Attribute)
		}
	}
	info.HasStatic = len(info.StaticAttrs) > 0

	// Inject _tid unless the schema already ends its range keys with a
	// descending timeuuid (spec.md §3: "bookkeeping attributes injected:
	// _tid timeuuid range-desc (if the schema lacks a descending timeuuid
	// range tail; this becomes the table's versioning key tid)").
	needsTid := true
	if rangeTail != nil && rangeTail.Order == OrderDesc {
		if declared := s.Attributes[rangeTail.Attribute]; declared == "timeuuid" {
			needsTid = false
			info.TidAttr = rangeTail.Attribute
		}
	}
	if needsTid {
		el := IndexElement{Attribute: AttrTid, Type: ElemRange, Order: OrderDesc}
		info.IKeys = append(info.IKeys, AttrTid)
		info.IKeyMap[AttrTid] = el
		info.AllAttributes[AttrTid] = "timeuuid"
		info.TidAttr = AttrTid
	}

	// Always-injected soft-delete deadline.
	info.AllAttributes[AttrExistUntil] = "timestamp"

	for name, declared := range info.AllAttributes {
		c, err := codec.ForDeclared(declared)
		if err != nil {
			return nil, fmt.Errorf("schema: attribute %q: %w", name, err)
		}
		info.Converters[name] = c
	}

	for idxName, elems := range s.SecondaryIndexes {
		sub := &SecondaryIndexInfo{Name: idxName}
		seen := map[string]bool{}
		for _, el := range elems {
			switch el.Type {
			case ElemHash, ElemRange:
				if !seen[el.Attribute] {
					sub.Keys = append(sub.Keys, el.Attribute)
					seen[el.Attribute] = true
				}
			case ElemProj:
				sub.Proj = append(sub.Proj, el.Attribute)
			}
		}
		for _, parentKey := range info.IKeys {
			if parentKey == info.TidAttr {
				continue
			}
			if !seen[parentKey] {
				sub.Keys = append(sub.Keys, parentKey)
				seen[parentKey] = true
			}
		}
		info.SecondaryIndexes[idxName] = sub
	}
	info.HasSecondary = len(info.SecondaryIndexes) > 0

	h, err := Hash(s)
	if err != nil {
		return nil, err
	}
	info.Hash = h

	return info, nil
}

// Hash computes the stable content fingerprint of a normalized schema
// (spec.md §3/§4.3): equivalent schemas that differ only by attribute-key
// ordering must hash identically, so every composite field is re-serialized
// in a fixed, sorted key order before hashing rather than trusting whatever
// order the caller's JSON happened to arrive in.
func Hash(s *Schema) (string, error) {
	canonical, err := canonicalJSON(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(s *Schema) ([]byte, error) {
	doc := []byte("{}")
	var err error

	if doc, err = sjson.SetBytes(doc, "table", s.Table); err != nil {
		return nil, err
	}
	if doc, err = sjson.SetBytes(doc, "version", s.Version); err != nil {
		return nil, err
	}

	attrsDoc := []byte("{}")
	for _, k := range sortedKeys(s.Attributes) {
		if attrsDoc, err = sjson.SetBytes(attrsDoc, k, s.Attributes[k]); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetRawBytes(doc, "attributes", attrsDoc); err != nil {
		return nil, err
	}

	indexBytes, err := json.Marshal(s.Index)
	if err != nil {
		return nil, err
	}
	if doc, err = sjson.SetRawBytes(doc, "index", indexBytes); err != nil {
		return nil, err
	}

	siDoc := []byte("{}")
	siNames := make([]string, 0, len(s.SecondaryIndexes))
	for name := range s.SecondaryIndexes {
		siNames = append(siNames, name)
	}
	sort.Strings(siNames)
	for _, name := range siNames {
		elBytes, err := json.Marshal(s.SecondaryIndexes[name])
		if err != nil {
			return nil, err
		}
		if siDoc, err = sjson.SetRawBytes(siDoc, name, elBytes); err != nil {
			return nil, err
		}
	}
	if doc, err = sjson.SetRawBytes(doc, "secondaryIndexes", siDoc); err != nil {
		return nil, err
	}

	if s.RevisionRetentionPolicy != nil {
		rpBytes, err := json.Marshal(s.RevisionRetentionPolicy)
		if err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, "revisionRetentionPolicy", rpBytes); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
