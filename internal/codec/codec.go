// Package codec implements the per-attribute-type read/write conversions from
// spec.md §4.1. Every declared schema attribute type maps to exactly one
// Codec; internal/query applies a Codec's Write when binding a parameter and
// internal/tablestore applies its Read when converting a scanned row back
// into the logical attribute map a caller sees.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rowkeep/rowkeep/internal/timeuuid"
)

// Physical is the SQLite column affinity a codec stores its value under.
type Physical string

const (
	PhysText    Physical = "TEXT"
	PhysBlob    Physical = "BLOB"
	PhysInteger Physical = "INTEGER"
	PhysReal    Physical = "REAL"
)

// Codec converts between a logical attribute value (what callers of Get/Put
// see) and a physical value (what database/sql binds or scans).
type Codec interface {
	Physical() Physical
	// Write converts a logical value into a value safe to pass to
	// (*sql.Stmt).Exec / driver.Valuer binding.
	Write(logical any) (any, error)
	// Read converts a value scanned out of a column back into its logical
	// form. v is nil when the column was SQL NULL.
	Read(v any) (any, error)
}

// baseType is the declared scalar type name, without the set<...> wrapper.
type baseType string

const (
	TString    baseType = "string"
	TBlob      baseType = "blob"
	TBoolean   baseType = "boolean"
	TInt       baseType = "int"
	TVarint    baseType = "varint"
	TDecimal   baseType = "decimal"
	TFloat     baseType = "float"
	TDouble    baseType = "double"
	TTimestamp baseType = "timestamp"
	TTimeuuid  baseType = "timeuuid"
	TUUID      baseType = "uuid"
	TJSON      baseType = "json"
)

// ParseDeclared splits a declared attribute type into its base type and,
// if it was written as "set<T>", the element type and a isSet=true flag.
func ParseDeclared(declared string) (base string, elem string, isSet bool, err error) {
	declared = strings.TrimSpace(declared)
	if strings.HasPrefix(declared, "set<") && strings.HasSuffix(declared, ">") {
		inner := strings.TrimSuffix(strings.TrimPrefix(declared, "set<"), ">")
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return "", "", false, fmt.Errorf("codec: empty set element type in %q", declared)
		}
		return inner, inner, true, nil
	}
	return declared, "", false, nil
}

// ForDeclared resolves a declared schema attribute type (e.g. "string",
// "set<int>") into its Codec.
func ForDeclared(declared string) (Codec, error) {
	base, _, isSet, err := ParseDeclared(declared)
	if err != nil {
		return nil, err
	}
	if isSet {
		elemCodec, err := forScalar(baseType(base))
		if err != nil {
			return nil, fmt.Errorf("codec: set element type %q: %w", base, err)
		}
		return &setCodec{elem: elemCodec, elemIsNumeric: isNumeric(baseType(base))}, nil
	}
	return forScalar(baseType(base))
}

func isNumeric(t baseType) bool {
	switch t {
	case TInt, TVarint, TFloat, TDouble, TTimestamp:
		return true
	default:
		return false
	}
}

func forScalar(t baseType) (Codec, error) {
	switch t {
	case TString:
		return stringCodec{}, nil
	case TBlob:
		return blobCodec{}, nil
	case TBoolean:
		return booleanCodec{}, nil
	case TInt, TVarint:
		return intCodec{}, nil
	case TFloat, TDouble:
		return floatCodec{}, nil
	case TDecimal:
		return decimalCodec{}, nil
	case TTimestamp:
		return timestampCodec{}, nil
	case TTimeuuid:
		return timeuuidCodec{}, nil
	case TUUID:
		return uuidCodec{}, nil
	case TJSON:
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown attribute type %q", t)
	}
}

// --- scalar codecs -----------------------------------------------------

type stringCodec struct{}

func (stringCodec) Physical() Physical { return PhysText }
func (stringCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", v), nil
}
func (stringCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}

type blobCodec struct{}

func (blobCodec) Physical() Physical { return PhysBlob }
func (blobCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("codec: blob: unsupported value type %T", v)
	}
}
func (blobCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []byte:
		buf := make([]byte, len(x))
		copy(buf, x)
		return buf, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("codec: blob: unsupported scanned type %T", v)
	}
}

type booleanCodec struct{}

func (booleanCodec) Physical() Physical { return PhysInteger }
func (booleanCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("codec: boolean: unsupported value type %T", v)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}
func (booleanCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("codec: boolean: %w", err)
	}
	return n != 0, nil
}

type intCodec struct{}

func (intCodec) Physical() Physical { return PhysInteger }
func (intCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("codec: int: %w", err)
	}
	return n, nil
}
func (intCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toInt64(v)
}

type floatCodec struct{}

func (floatCodec) Physical() Physical { return PhysReal }
func (floatCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return nil, fmt.Errorf("codec: float: %w", err)
	}
	return f, nil
}
func (floatCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toFloat64(v)
}

// decimalCodec stores the canonical textual form of a decimal, never a
// binary float, so precision survives a round trip (spec.md §4.1).
type decimalCodec struct{}

func (decimalCodec) Physical() Physical { return PhysText }
func (decimalCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		if _, err := strconv.ParseFloat(x, 64); err != nil {
			return nil, fmt.Errorf("codec: decimal: invalid literal %q", x)
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}
func (decimalCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return fmt.Sprintf("%v", x), nil
	}
}

// timestampCodec stores milliseconds since epoch.
type timestampCodec struct{}

func (timestampCodec) Physical() Physical { return PhysInteger }
func (timestampCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return nil, fmt.Errorf("codec: timestamp: unsupported value type %T", v)
	}
}
func (timestampCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return toInt64(v)
}

type uuidCodec struct{}

func (uuidCodec) Physical() Physical { return PhysText }
func (uuidCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("codec: uuid: unsupported value type %T", v)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("codec: uuid: invalid literal %q: %w", s, err)
	}
	return parsed.String(), nil
}
func (uuidCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := asString(v)
	if err != nil {
		return nil, fmt.Errorf("codec: uuid: %w", err)
	}
	return s, nil
}

// timeuuidCodec applies the sortable-rewrite transform from internal/timeuuid.
type timeuuidCodec struct{}

func (timeuuidCodec) Physical() Physical { return PhysText }
func (timeuuidCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("codec: timeuuid: unsupported value type %T", v)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("codec: timeuuid: invalid literal %q: %w", s, err)
	}
	stored, err := timeuuid.Write(parsed)
	if err != nil {
		return nil, fmt.Errorf("codec: timeuuid: %w", err)
	}
	return stored, nil
}
func (timeuuidCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	stored, err := asString(v)
	if err != nil {
		return nil, fmt.Errorf("codec: timeuuid: %w", err)
	}
	parsed, err := timeuuid.Read(stored)
	if err != nil {
		return nil, fmt.Errorf("codec: timeuuid: %w", err)
	}
	return parsed.String(), nil
}

// jsonCodec stores a JSON document as a blob.
type jsonCodec struct{}

func (jsonCodec) Physical() Physical { return PhysBlob }
func (jsonCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	return buf, nil
}
func (jsonCodec) Read(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := asBytes(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	return out, nil
}

// --- set<T> --------------------------------------------------------------

// setCodec stores a collection as a JSON array of the element codec's
// physical write form; Read deduplicates and sorts the elements. Empty and
// null sets are equivalent and both stored as SQL NULL (spec.md §4.1).
type setCodec struct {
	elem          Codec
	elemIsNumeric bool
}

func (setCodec) Physical() Physical { return PhysBlob }

func (c *setCodec) Write(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	items, err := toSlice(v)
	if err != nil {
		return nil, fmt.Errorf("codec: set: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	encoded := make([]any, 0, len(items))
	for _, item := range items {
		w, err := c.elem.Write(item)
		if err != nil {
			return nil, fmt.Errorf("codec: set element: %w", err)
		}
		encoded = append(encoded, w)
	}
	buf, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("codec: set: %w", err)
	}
	return buf, nil
}

func (c *setCodec) Read(v any) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	raw, err := asBytes(v)
	if err != nil {
		return nil, fmt.Errorf("codec: set: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []any{}, nil
	}
	var encoded []any
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("codec: set: %w", err)
	}
	decoded := make([]any, 0, len(encoded))
	seen := make(map[string]bool, len(encoded))
	for _, item := range encoded {
		r, err := c.elem.Read(item)
		if err != nil {
			return nil, fmt.Errorf("codec: set element: %w", err)
		}
		key, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("codec: set: %w", err)
		}
		if seen[string(key)] {
			continue
		}
		seen[string(key)] = true
		decoded = append(decoded, r)
	}
	if c.elemIsNumeric {
		sort.Slice(decoded, func(i, j int) bool {
			return toFloatOrZero(decoded[i]) < toFloatOrZero(decoded[j])
		})
	} else {
		keys := make([]string, len(decoded))
		for i, d := range decoded {
			kb, _ := json.Marshal(d)
			keys[i] = string(kb)
		}
		sort.Slice(decoded, func(i, j int) bool { return keys[i] < keys[j] })
	}
	return decoded, nil
}

// --- shared conversion helpers -------------------------------------------

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func toFloatOrZero(v any) float64 {
	f, err := toFloat64(v)
	if err != nil {
		return 0
	}
	return f
}

func asString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("unsupported string type %T", v)
	}
}

func asBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("unsupported blob type %T", v)
	}
}

func toSlice(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported set value type %T", v)
	}
}
