// Package sqlclock provides the injectable wall-clock source the query
// compiler and retention engine use for soft-delete gating and TTL math.
// Tests substitute a fixed clock; production uses System.
package sqlclock

import "time"

// Clock returns the current time in milliseconds since the Unix epoch, the
// unit spec.md §3 uses for _exist_until.
type Clock interface {
	NowMillis() int64
}

// System is the real wall clock.
type System struct{}

func (System) NowMillis() int64 { return time.Now().UnixMilli() }

// Fixed is a deterministic clock for tests.
type Fixed int64

func (f Fixed) NowMillis() int64 { return int64(f) }
