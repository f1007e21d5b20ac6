package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

const migrationColumns = `v2, aop_pid, is_aop, file_path, issn, year, order_key, v91, v93,
		v3, xml, source, status, status_msg, created_at, updated_at`

// PostgresMigrationStore implements the MigrationStore interface.
type PostgresMigrationStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewMigrationStore creates a new migration store.
func NewMigrationStore(config *RepositoryConfig) repositories.MigrationStore {
	return &PostgresMigrationStore{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// Get returns the row for a v2.
func (r *PostgresMigrationStore) Get(ctx context.Context, v2 string) (*models.Migration, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE v2 = $1
	`, migrationColumns, r.tables.Migrations)

	m, err := scanMigration(r.pool.QueryRow(ctx, query, v2))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("migration %s: %w", v2, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get migration: %w", err)
	}
	return m, nil
}

// Save inserts or overwrites the row keyed on v2.
func (r *PostgresMigrationStore) Save(ctx context.Context, m *models.Migration) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (v2) DO UPDATE SET
			aop_pid = EXCLUDED.aop_pid,
			is_aop = EXCLUDED.is_aop,
			file_path = EXCLUDED.file_path,
			issn = EXCLUDED.issn,
			year = EXCLUDED.year,
			order_key = EXCLUDED.order_key,
			v91 = EXCLUDED.v91,
			v93 = EXCLUDED.v93,
			v3 = EXCLUDED.v3,
			xml = EXCLUDED.xml,
			source = EXCLUDED.source,
			status = EXCLUDED.status,
			status_msg = EXCLUDED.status_msg,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, r.tables.Migrations, migrationColumns)

	err := r.pool.QueryRow(ctx, query,
		m.V2,
		m.AopPid,
		m.IsAop,
		m.FilePath,
		m.ISSN,
		m.Year,
		m.Order,
		m.V91,
		m.V93,
		m.V3,
		m.XML,
		m.Source,
		m.Status,
		m.StatusMsg,
		now,
	).Scan(&m.Created, &m.Updated)

	if err != nil {
		return fmt.Errorf("save migration %s: %w", m.V2, err)
	}
	return nil
}

// ListByStatus pages rows for one journal and AOP flag, filtered on
// status, in descriptor order.
func (r *PostgresMigrationStore) ListByStatus(ctx context.Context, issn string, isAop bool, status string, page int) ([]*models.Migration, error) {
	if page < 1 {
		page = 1
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE issn = $1 AND is_aop = $2 AND status = $3
		ORDER BY order_key, v2
		LIMIT %d OFFSET %d
	`, migrationColumns, r.tables.Migrations, repositories.DefaultPageSize, (page-1)*repositories.DefaultPageSize)

	rows, err := r.pool.Query(ctx, query, issn, isAop, status)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	var result []*models.Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return result, nil
}

func scanMigration(row pgx.Row) (*models.Migration, error) {
	var m models.Migration
	err := row.Scan(
		&m.V2,
		&m.AopPid,
		&m.IsAop,
		&m.FilePath,
		&m.ISSN,
		&m.Year,
		&m.Order,
		&m.V91,
		&m.V93,
		&m.V3,
		&m.XML,
		&m.Source,
		&m.Status,
		&m.StatusMsg,
		&m.Created,
		&m.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
