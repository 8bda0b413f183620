// Package sqlite implements C5, spec.md §4.5: a writer-pool-of-one /
// reader-connection split over an embedded SQLite file, with busy-retry and
// jittered backoff on BEGIN IMMEDIATE and on prepared-statement execution.
package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/query"
)

// Config mirrors the subset of internal/config's options the client needs.
type Config struct {
	DBName          string
	PoolIdleTimeout time.Duration
	RetryDelay      time.Duration
	RetryLimit      int
	ShowSQL         bool
}

// Client is the sole gateway to the backing SQLite file. internal/tablestore
// is its only caller.
type Client struct {
	writer *sql.DB // pool capacity 1, serializes writers
	reader *sql.DB // shared, concurrent reads

	retryDelay time.Duration
	retryLimit int
	showSQL    bool
	log        *slog.Logger
}

// Open connects the writer and reader pools against the same file. Both use
// the pure-Go, CGO-free "sqlite3" driver registered by go-sqlite3/driver.
func Open(cfg Config, log *slog.Logger) (*Client, error) {
	dsn := cfg.DBName
	writer, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apierr.Engine("sqlite: open writer pool", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetConnMaxIdleTime(cfg.PoolIdleTimeout)

	reader, err := sql.Open("sqlite3", dsn)
	if err != nil {
		writer.Close()
		return nil, apierr.Engine("sqlite: open reader pool", err)
	}

	if log == nil {
		log = slog.Default()
	}
	retryLimit := cfg.RetryLimit
	if retryLimit <= 0 {
		retryLimit = 5
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	return &Client{
		writer:     writer,
		reader:     reader,
		retryDelay: retryDelay,
		retryLimit: retryLimit,
		showSQL:    cfg.ShowSQL,
		log:        log,
	}, nil
}

func (c *Client) Close() error {
	werr := c.writer.Close()
	rerr := c.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Run executes stmts in declared order inside a single BEGIN IMMEDIATE /
// COMMIT transaction on the writer connection (spec.md §4.5). Any mid-
// transaction failure rolls back and the error propagates; COMMIT is the
// sole externally visible point of atomicity.
func (c *Client) Run(ctx context.Context, stmts []query.Statement) error {
	if len(stmts) == 0 {
		return nil
	}
	return c.withBusyRetry(ctx, "BEGIN IMMEDIATE", func() error {
		conn, err := c.writer.Conn(ctx)
		if err != nil {
			return apierr.Engine("sqlite: acquire writer connection", err)
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			if isBusy(err) {
				return err
			}
			return apierr.Engine("sqlite: begin immediate", err)
		}

		committed := false
		defer func() {
			if !committed {
				_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
			}
		}()

		for _, stmt := range stmts {
			c.logSQL(stmt.SQL, len(stmt.Args))
			if _, err := conn.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
				return apierr.Engine("sqlite: exec", err).With("sql", stmt.SQL)
			}
		}

		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return apierr.Engine("sqlite: commit", err)
		}
		committed = true
		return nil
	})
}

// All executes stmt against the reader connection and returns the scanned
// rows as column-name-keyed maps of raw driver values (spec.md §4.5).
// Busy errors retry with jittered backoff up to retry_limit.
func (c *Client) All(ctx context.Context, stmt query.Statement) ([]map[string]any, error) {
	var rows []map[string]any
	err := c.withBusyRetry(ctx, stmt.SQL, func() error {
		c.logSQL(stmt.SQL, len(stmt.Args))
		r, err := c.reader.QueryContext(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			if isBusy(err) {
				return err
			}
			if isNoSuchTable(err) {
				rows = nil
				return nil
			}
			return apierr.Engine("sqlite: query", err).With("sql", stmt.SQL)
		}
		defer r.Close()

		cols, err := r.Columns()
		if err != nil {
			return apierr.Engine("sqlite: columns", err)
		}
		rows = nil
		for r.Next() {
			scanTargets := make([]any, len(cols))
			scanPtrs := make([]any, len(cols))
			for i := range scanTargets {
				scanPtrs[i] = &scanTargets[i]
			}
			if err := r.Scan(scanPtrs...); err != nil {
				return apierr.Engine("sqlite: scan", err)
			}
			row := make(map[string]any, len(cols))
			for i, name := range cols {
				row[name] = scanTargets[i]
			}
			rows = append(rows, row)
		}
		return r.Err()
	})
	return rows, err
}

// Exec runs a single statement outside of a caller-managed transaction
// (DDL, meta-table writes during bootstrap). It uses the writer connection
// with the same busy-retry policy as Run.
func (c *Client) Exec(ctx context.Context, stmt query.Statement) error {
	return c.Run(ctx, []query.Statement{stmt})
}

func (c *Client) withBusyRetry(ctx context.Context, label string, attempt func() error) error {
	var lastErr error
	for i := 0; i <= c.retryLimit; i++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		lastErr = err
		if i == c.retryLimit {
			break
		}
		sleep := time.Duration(rand.Int63n(int64(c.retryDelay))) + time.Millisecond
		c.log.Debug("sqlite: busy, retrying", "label", label, "attempt", i+1, "sleep", sleep)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return apierr.Busy("sqlite: retry limit exceeded", lastErr)
}

func (c *Client) logSQL(sql string, argCount int) {
	if !c.showSQL {
		return
	}
	c.log.Debug("sqlite: executing", "sql", sql, "args", argCount)
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") || strings.Contains(msg, "locked")
}

func isNoSuchTable(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "no such table")
}
