// Package faststore is the Postgres-backed fast read path and sync
// target described in the engine's dual-store design: every write is
// CRM-first, then best-effort projected here; reads prefer this store
// and fall back to the CRM with opportunistic backfill.
package faststore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// DB wraps the two connection handles the repositories split between:
// pgx for row-locking transactions, sqlx for convenient scans.
type DB struct {
	Pool  *pgxpool.Pool
	Sqlx  *sqlx.DB
	Close func() error
}

// Config is the subset of connection parameters the fast store needs.
// The rest of the coordinator's configuration lives in internal/config.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 5
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 30 * time.Minute
	}
	return c
}

// New opens both connection handles against cfg.DSN and verifies
// connectivity before returning.
func New(ctx context.Context, cfg Config) (*DB, error) {
	cfg = cfg.withDefaults()

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("faststore: parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("faststore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("faststore: ping: %w", err)
	}

	sqlxDB, err := sqlx.Connect("pgx", cfg.DSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("faststore: sqlx connect: %w", err)
	}
	sqlxDB.SetMaxOpenConns(int(cfg.MaxConns))
	sqlxDB.SetMaxIdleConns(int(cfg.MinConns))
	sqlxDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	sqlxDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return &DB{
		Pool: pool,
		Sqlx: sqlxDB,
		Close: func() error {
			pool.Close()
			return sqlxDB.Close()
		},
	}, nil
}

// HealthCheck pings both handles, used by the service's /healthz.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("faststore: pgx health check: %w", err)
	}
	if err := db.Sqlx.PingContext(ctx); err != nil {
		return fmt.Errorf("faststore: sqlx health check: %w", err)
	}
	return nil
}

// Stats exposes pool counters for the metrics collector.
func (db *DB) Stats() map[string]int64 {
	s := db.Pool.Stat()
	return map[string]int64{
		"acquired_conns": int64(s.AcquiredConns()),
		"idle_conns":     int64(s.IdleConns()),
		"total_conns":    int64(s.TotalConns()),
		"max_conns":      int64(s.MaxConns()),
	}
}
