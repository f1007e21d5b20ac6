package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

// PostgresRequestLog implements the RequestLog interface.
type PostgresRequestLog struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewRequestLog creates a new request log.
func NewRequestLog(config *RepositoryConfig) repositories.RequestLog {
	return &PostgresRequestLog{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// LogRequest appends one audit row.
func (r *PostgresRequestLog) LogRequest(ctx context.Context, req *models.Request) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (id, username, in_v2, in_v3, in_aop_pid, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at
	`, r.tables.Requests)

	err := r.pool.QueryRow(ctx, query,
		req.ID,
		req.User,
		req.InV2,
		req.InV3,
		req.InAopPid,
		req.Status,
		now,
	).Scan(&req.Created, &req.Updated)

	if err != nil {
		return fmt.Errorf("log request: %w", err)
	}
	return nil
}

// UpdateRequest records the outcome on an existing audit row.
func (r *PostgresRequestLog) UpdateRequest(ctx context.Context, req *models.Request) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET out_v2 = $1, out_v3 = $2, out_aop_pid = $3, status = $4, diffs = $5, updated_at = $6
		WHERE id = $7
	`, r.tables.Requests)

	result, err := r.pool.Exec(ctx, query,
		req.OutV2,
		req.OutV3,
		req.OutAopPid,
		req.Status,
		req.Diffs,
		time.Now().UTC(),
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("request %s: %w", req.ID, domain.ErrNotFound)
	}
	return nil
}
