package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rowkeep/rowkeep/internal/query"
)

func openTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := Open(Config{DBName: filepath.Join(t.TempDir(), "test.db")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRunThenAllRoundTrip(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	create := query.Statement{SQL: `CREATE TABLE t (id TEXT, val INTEGER)`}
	if err := c.Run(ctx, []query.Statement{create}); err != nil {
		t.Fatalf("Run(create): %v", err)
	}

	insert := query.Statement{SQL: `INSERT INTO t (id, val) VALUES (?, ?)`, Args: []any{"a", int64(1)}}
	if err := c.Run(ctx, []query.Statement{insert}); err != nil {
		t.Fatalf("Run(insert): %v", err)
	}

	rows, err := c.All(ctx, query.Statement{SQL: `SELECT id, val FROM t`})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "a" {
		t.Errorf("rows = %+v, want one row with id=a", rows)
	}
}

func TestRunRollsBackOnMidTransactionFailure(t *testing.T) {
	c := openTestClient(t)
	ctx := context.Background()

	create := query.Statement{SQL: `CREATE TABLE t (id TEXT PRIMARY KEY)`}
	if err := c.Run(ctx, []query.Statement{create}); err != nil {
		t.Fatalf("Run(create): %v", err)
	}

	good := query.Statement{SQL: `INSERT INTO t (id) VALUES (?)`, Args: []any{"a"}}
	dup := query.Statement{SQL: `INSERT INTO t (id) VALUES (?)`, Args: []any{"a"}}
	if err := c.Run(ctx, []query.Statement{good, dup}); err == nil {
		t.Fatal("expected a unique-constraint failure on the duplicate insert")
	}

	rows, err := c.All(ctx, query.Statement{SQL: `SELECT id FROM t`})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected the whole transaction rolled back, found %d rows", len(rows))
	}
}

func TestAllOnMissingTableReturnsEmptyNotError(t *testing.T) {
	c := openTestClient(t)
	rows, err := c.All(context.Background(), query.Statement{SQL: `SELECT * FROM ghost`})
	if err != nil {
		t.Fatalf("All on a missing table should not error, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %+v, want none", rows)
	}
}

func TestIsBusyRecognizesLockedAndBusyMessages(t *testing.T) {
	if !isBusy(errors.New("database is locked")) {
		t.Error("expected 'database is locked' to be classified as busy")
	}
	if !isBusy(errors.New("SQLITE_BUSY")) {
		t.Error("expected 'SQLITE_BUSY' to be classified as busy")
	}
	if isBusy(errors.New("no such table: orders")) {
		t.Error("did not expect a missing-table error to be classified as busy")
	}
}

func TestIsNoSuchTable(t *testing.T) {
	if !isNoSuchTable(errors.New("no such table: orders")) {
		t.Error("expected 'no such table' to be recognized")
	}
	if isNoSuchTable(errors.New("syntax error")) {
		t.Error("did not expect a syntax error to be recognized as no-such-table")
	}
}

func TestRunEmptyStatementsIsNoOp(t *testing.T) {
	c := openTestClient(t)
	if err := c.Run(context.Background(), nil); err != nil {
		t.Errorf("Run(nil) = %v, want nil", err)
	}
}
