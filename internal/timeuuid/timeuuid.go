// Package timeuuid mints v1 (time-based) UUIDs and implements the
// chronological-sort textual rewrite rowkeep's "timeuuid" attribute type
// relies on (spec.md §4.1): the stored string form must sort lexicographically
// in the same order as the embedded timestamp, which a plain v1 UUID's
// canonical "tl-tm-thv-clockseq-node" layout does not guarantee.
package timeuuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New mints a fresh v1 timeuuid.
func New() (uuid.UUID, error) {
	return uuid.NewUUID()
}

// Write renders u in rowkeep's sortable storage form: the 12 time-high bits
// (with the version nibble stripped), the 16 time-mid bits, and the 32
// time-low bits are concatenated high-to-low into a single fixed-width hex
// run, so that two rewritten strings compare lexicographically in the same
// order as the UUIDs' embedded timestamps. The clock sequence and node stay
// in their own dash-separated fields, unchanged, as a tiebreaker.
func Write(u uuid.UUID) (string, error) {
	if u.Version() != 1 {
		return "", fmt.Errorf("timeuuid: not a v1 UUID (version %d)", u.Version())
	}
	canonical := u.String() // tl-tm-thv-clockseq-node
	parts := strings.Split(canonical, "-")
	if len(parts) != 5 {
		return "", fmt.Errorf("timeuuid: malformed UUID %q", canonical)
	}
	tl, tm, thv, clockseq, node := parts[0], parts[1], parts[2], parts[3], parts[4]
	if len(thv) != 4 || thv[0] != '1' {
		return "", fmt.Errorf("timeuuid: unexpected version nibble in %q", canonical)
	}
	timePrefix := thv[1:] + tm + tl // 3 + 4 + 8 = 15 hex digits, high-to-low
	return timePrefix + "-" + clockseq + "-" + node, nil
}

// Read reverses Write, reconstructing the canonical v1 UUID string.
func Read(stored string) (uuid.UUID, error) {
	parts := strings.Split(stored, "-")
	if len(parts) != 3 || len(parts[0]) != 15 || len(parts[1]) != 4 || len(parts[2]) != 12 {
		return uuid.UUID{}, fmt.Errorf("timeuuid: malformed stored form %q", stored)
	}
	timePrefix, clockseq, node := parts[0], parts[1], parts[2]
	thv := "1" + timePrefix[0:3]
	tm := timePrefix[3:7]
	tl := timePrefix[7:15]
	canonical := tl + "-" + tm + "-" + thv + "-" + clockseq + "-" + node
	return uuid.Parse(canonical)
}

// Less reports whether the stored forms a and b sort in embedded-time order.
// It is a thin documentation wrapper around the invariant Write establishes:
// plain string comparison already does this.
func Less(a, b string) bool { return a < b }

// MintUUID creates a fresh timeuuid and returns it in canonical form
// alongside its embedded time in milliseconds since the Unix epoch
// (spec.md §4.4: "record req.timestamp from the identifier's embedded
// time"). Callers that need the rewritten storage form should route the
// canonical UUID through a codec's Write rather than calling Write
// themselves, so a tid minted here and a tid supplied by a caller are
// rewritten exactly once, in the same place.
func MintUUID() (u uuid.UUID, millis int64, err error) {
	u, err = New()
	if err != nil {
		return uuid.UUID{}, 0, err
	}
	sec, nsec := u.Time().UnixTime()
	millis = sec*1000 + nsec/1_000_000
	return u, millis, nil
}

// Mint creates a fresh timeuuid and returns both its storage form and its
// embedded time in milliseconds since the Unix epoch. Exposed for callers
// (and tests) that want the rewritten form directly without touching a
// codec.
func Mint() (stored string, millis int64, err error) {
	u, millis, err := MintUUID()
	if err != nil {
		return "", 0, err
	}
	stored, err = Write(u)
	if err != nil {
		return "", 0, err
	}
	return stored, millis, nil
}
