package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds the shared dependencies of the repository
// implementations backed by one database.
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds environment-prefixed table names.
type TableNames struct {
	Documents  string
	Requests   string
	Migrations string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Documents:  fmt.Sprintf("%sdocuments", prefix),
		Requests:   fmt.Sprintf("%srequests", prefix),
		Migrations: fmt.Sprintf("%smigrations", prefix),
	}
}

// CreateConnectionPool creates a pgx pool and verifies connectivity,
// retrying the first ping with exponential backoff so the service
// survives a database that is still starting up.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10), ctx)
	ping := func() error { return pool.Ping(ctx) }
	notify := func(err error, next time.Duration) {
		slog.Warn("database not ready, retrying", "error", err, "next_attempt_in", next)
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
