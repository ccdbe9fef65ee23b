// Package postgres opens a store.Store on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/unkn0wn-root/shelfcache/store/sqlstore"
)

// DefaultDSN is used when Open receives an empty dsn.
const DefaultDSN = "postgres://localhost/shelfcache?sslmode=disable"

// Open connects to dsn, verifies the connection and applies the schema.
// Closing the returned store closes the pool.
func Open(ctx context.Context, dsn string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	opts = append(opts, sqlstore.WithCloser(func() error {
		pool.Close()
		return nil
	}))
	s := sqlstore.New(db, sqlstore.Postgres, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
