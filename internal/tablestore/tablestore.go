// Package tablestore implements C7 (table lifecycle) and C8 (read/write API)
// from spec.md §4.7–4.8: the facade every caller of rowkeep actually talks
// to. It resolves schemas, compiles queries via internal/query, executes
// them via internal/storage/sqlite, applies codecs, and triggers retention.
package tablestore

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rowkeep/rowkeep/internal/apierr"
	"github.com/rowkeep/rowkeep/internal/config"
	"github.com/rowkeep/rowkeep/internal/query"
	"github.com/rowkeep/rowkeep/internal/retention"
	"github.com/rowkeep/rowkeep/internal/schema"
	"github.com/rowkeep/rowkeep/internal/sqlclock"
	"github.com/rowkeep/rowkeep/internal/stmtcache"
	"github.com/rowkeep/rowkeep/internal/storage/sqlite"
)

// DB is the facade spec.md §2's data-flow diagram calls C7/C8. One DB per
// backing file.
type DB struct {
	client    *sqlite.Client
	stmts     *stmtcache.Cache
	retention *retention.Engine
	cfg       *config.Config
	log       *slog.Logger
	clock     sqlclock.Clock

	cacheMu sync.RWMutex
	cache   map[string]*schema.Info // physical table name -> derived info

	loadGroup singleflight.Group
}

// Open connects to the backing file, bootstraps the meta table if absent,
// and returns a ready DB.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := sqlite.Open(sqlite.Config{
		DBName:          cfg.DBName,
		PoolIdleTimeout: cfg.PoolIdleTimeout,
		RetryDelay:      cfg.RetryDelay,
		RetryLimit:      cfg.RetryLimit,
		ShowSQL:         cfg.ShowSQL,
	}, log)
	if err != nil {
		return nil, err
	}
	stmts, err := stmtcache.New(stmtcache.DefaultCapacity)
	if err != nil {
		client.Close()
		return nil, err
	}

	db := &DB{
		client:    client,
		stmts:     stmts,
		retention: retention.New(client, log),
		cfg:       cfg,
		log:       log,
		clock:     sqlclock.System{},
		cache:     map[string]*schema.Info{},
	}
	if err := db.bootstrap(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error { return db.client.Close() }

// bootstrap materializes global_schema_data if it doesn't already exist
// (spec.md §6: "On first start, the engine creates global_schema_data if
// absent").
func (db *DB) bootstrap(ctx context.Context) error {
	info, err := schema.DeriveInfo(schema.Builtin(), schema.MetaTableName)
	if err != nil {
		return apierr.Engine("tablestore: derive meta schema", err)
	}
	stmts, err := query.BuildCreateStatements(info)
	if err != nil {
		return apierr.Engine("tablestore: compile meta DDL", err)
	}
	if err := db.client.Run(ctx, stmts); err != nil {
		return err
	}
	db.cachePut(schema.MetaTableName, info)
	return nil
}

// physicalName derives N = prefix + "_" + table (spec.md §3), where prefix
// is domain unless storage_groups maps it elsewhere.
func (db *DB) physicalName(domain, table string) string {
	prefix := domain
	if db.cfg != nil {
		prefix = db.cfg.PhysicalPrefix(domain)
	}
	return prefix + "_" + table
}

func (db *DB) cacheGet(name string) (*schema.Info, bool) {
	db.cacheMu.RLock()
	defer db.cacheMu.RUnlock()
	info, ok := db.cache[name]
	return info, ok
}

func (db *DB) cachePut(name string, info *schema.Info) {
	db.cacheMu.Lock()
	defer db.cacheMu.Unlock()
	db.cache[name] = info
}

func (db *DB) cacheDelete(name string) {
	db.cacheMu.Lock()
	defer db.cacheMu.Unlock()
	delete(db.cache, name)
}
