package stmtcache

import (
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func prepareStmt(t *testing.T, db *sql.DB) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare("SELECT 1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return stmt
}

func TestKeyCanonicalizesFieldOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1}
	b := map[string]any{"a": 1, "b": 2}
	ka, err := Key("orders", a)
	if err != nil {
		t.Fatalf("Key(a): %v", err)
	}
	kb, err := Key("orders", b)
	if err != nil {
		t.Fatalf("Key(b): %v", err)
	}
	if ka != kb {
		t.Errorf("keys differ under field reordering: %q != %q", ka, kb)
	}
}

func TestKeyDiffersByTable(t *testing.T) {
	req := map[string]any{"x": 1}
	ka, _ := Key("orders", req)
	kb, _ := Key("sessions", req)
	if ka == kb {
		t.Error("keys for different tables collided")
	}
}

func TestPutGet(t *testing.T) {
	db := openTestDB(t)
	c, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stmt := prepareStmt(t, db)
	c.Put("orders:{}", stmt)
	got, ok := c.Get("orders:{}")
	if !ok || got != stmt {
		t.Errorf("Get after Put = (%v, %v), want the stored statement", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestInvalidateTableEvictsOnlyThatTablesPrefix(t *testing.T) {
	db := openTestDB(t)
	c, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("orders:{}", prepareStmt(t, db))
	c.Put("orders:{\"a\":1}", prepareStmt(t, db))
	c.Put("sessions:{}", prepareStmt(t, db))

	c.InvalidateTable("orders")

	if _, ok := c.Get("orders:{}"); ok {
		t.Error("orders:{} should have been evicted")
	}
	if _, ok := c.Get("orders:{\"a\":1}"); ok {
		t.Error("orders:{\"a\":1} should have been evicted")
	}
	if _, ok := c.Get("sessions:{}"); !ok {
		t.Error("sessions:{} should not have been evicted")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after invalidating orders", c.Len())
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	db := openTestDB(t)
	c, err := New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Put("t:1", prepareStmt(t, db))
	c.Put("t:2", prepareStmt(t, db))
	c.Put("t:3", prepareStmt(t, db))

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (capacity bound)", c.Len())
	}
	if _, ok := c.Get("t:1"); ok {
		t.Error("t:1 should have been evicted as the least-recently-used entry")
	}
}

func TestNewDefaultsNonPositiveCapacity(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New(0): %v", err)
	}
	if c == nil {
		t.Fatal("expected a usable cache for capacity 0")
	}
}
