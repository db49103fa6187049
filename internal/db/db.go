package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing used when the configuration leaves a value unset. Sync jobs
// hold a connection per page commit, so the floor stays small.
const (
	defaultMaxConns        int32 = 10
	defaultMinConns        int32 = 2
	defaultMaxConnLifetime       = time.Hour
	defaultMaxConnIdleTime       = 10 * time.Minute
	defaultApplicationName       = "youtube-sync"
)

// Config describes the pool. URL is a libpq connection string or URL; zero
// values fall back to the package defaults.
type Config struct {
	URL             string
	ApplicationName string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ParseConfig builds the pgxpool configuration without connecting.
// MinConns never exceeds MaxConns.
func ParseConfig(cfg Config) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConns, defaultMaxConns)
	poolConfig.MinConns = min(orDefault(cfg.MinConns, defaultMinConns), poolConfig.MaxConns)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)

	if _, set := poolConfig.ConnConfig.RuntimeParams["application_name"]; !set {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = orDefault(cfg.ApplicationName, defaultApplicationName)
	}

	return poolConfig, nil
}

// NewPool connects and pings the database.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := ParseConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
