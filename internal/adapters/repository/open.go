package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/okian/courtside/pkg/metrics"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Settings selects and configures a Store backend.
type Settings struct {
	Driver      string
	DSN         string
	MaxConns    int32
	AutoMigrate bool
}

// Open builds the Store described by cfg.
func Open(ctx context.Context, cfg Settings, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemStore(ctx, opts...), nil
	case DriverSQLite:
		db, err := OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return finishSQL(ctx, db, DialectSQLite, cfg)
	case DriverPostgres:
		db, pool, err := OpenPostgres(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return finishSQL(ctx, db, DialectPostgres, cfg, WithCloser(func() error { pool.Close(); return nil }))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func finishSQL(ctx context.Context, db *sql.DB, d Dialect, cfg Settings, opts ...SQLOption) (Store, error) {
	store := NewSQLStore(db, d, opts...)
	if cfg.AutoMigrate {
		if _, err := Migrate(ctx, db, d); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// OpenSQLite opens a sqlite database. SQLite allows one writer, so the pool
// is held to a single connection; this also keeps ":memory:" databases
// shared across calls.
func OpenSQLite(dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = "file:courtside.db?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a pgx pool, registers its Prometheus collector and
// returns a database/sql handle over it.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*sql.DB, *pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	collector := pgxpoolprometheus.NewCollector(pool, map[string]string{"db_name": pcfg.ConnConfig.Database})
	if err := metrics.RegisterCollector(collector); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("register pool collector: %w", err)
	}
	return stdlib.OpenDBFromPool(pool), pool, nil
}
