// Package stmtcache implements C6, spec.md §4.6: a capacity-bounded LRU of
// prepared statements keyed by "<table>:<canonical request JSON>", finalizing
// the evicted handle so no statement handle outlives its cache entry.
package stmtcache

import (
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is spec.md §4.6's fixed LRU size.
const DefaultCapacity = 500

// Cache wraps a hashicorp/golang-lru/v2 Cache whose eviction callback
// finalizes the evicted *sql.Stmt.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, *sql.Stmt]
}

// New builds a Cache with the given capacity, finalizing evicted statements.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{}
	inner, err := lru.NewWithEvict(capacity, func(_ string, stmt *sql.Stmt) {
		_ = stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	c.inner = inner
	return c, nil
}

// Key builds the cache key for a table and a request value that will be
// canonicalized to sorted-key JSON so equivalent requests collide regardless
// of field order.
func Key(table string, req any) (string, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	canonical, err := canonicalizeJSON(buf)
	if err != nil {
		return "", err
	}
	return table + ":" + canonical, nil
}

func canonicalizeJSON(raw []byte) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(sortedValue(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sortedValue recursively re-encodes maps with sorted keys so
// encoding/json's natural (already-sorted) map emission is guaranteed rather
// than incidental, and nested objects get the same treatment.
func sortedValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = sortedValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = sortedValue(vv)
		}
		return out
	default:
		return x
	}
}

// Get returns the cached statement for key, if present.
func (c *Cache) Get(key string) (*sql.Stmt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Put inserts or replaces the statement for key. If an entry is evicted to
// make room, it is finalized by the cache's eviction callback.
func (c *Cache) Put(key string, stmt *sql.Stmt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, stmt)
}

// InvalidateTable evicts and finalizes every entry whose key begins with
// "<table>:", used when a schema migration changes a table's compiled shape.
func (c *Cache) InvalidateTable(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := table + ":"
	for _, key := range c.inner.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.inner.Remove(key)
		}
	}
}

// Len reports the current entry count, mostly useful for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
