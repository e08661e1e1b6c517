package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a single pgxpool for the dispatch core's durable store. Unlike
// the teacher's DBPool, there is no replica split — the core is a single
// authoritative process (spec §9, horizontal scaling explicitly deferred).
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a pgx connection pool against dsn, applying the same
// connection-lifecycle tuning as the teacher's NewPostgresPool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}

	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "dispatch-core"
	poolConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &Pool{Pool: pool}, nil
}
