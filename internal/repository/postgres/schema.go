package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureDocumentSchema creates the document and request tables of the id
// provider database, with the indexes the dedup probes rely on.
func EnsureDocumentSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, prefix string) error {
	createDocuments := `
		CREATE TABLE IF NOT EXISTS ` + tables.Documents + ` (
			v3 TEXT PRIMARY KEY,
			v2 TEXT NOT NULL DEFAULT '',
			aop_pid TEXT NOT NULL DEFAULT '',
			issns JSONB NOT NULL DEFAULT '[]',
			pub_year TEXT NOT NULL DEFAULT '',
			doi_with_lang JSONB NOT NULL DEFAULT '[]',
			authors JSONB NOT NULL DEFAULT '[]',
			collab TEXT NOT NULL DEFAULT '',
			article_titles JSONB NOT NULL DEFAULT '[]',
			surnames TEXT NOT NULL DEFAULT '',
			volume TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL DEFAULT '',
			suppl TEXT NOT NULL DEFAULT '',
			elocation_id TEXT NOT NULL DEFAULT '',
			fpage TEXT NOT NULL DEFAULT '',
			fpage_seq TEXT NOT NULL DEFAULT '',
			lpage TEXT NOT NULL DEFAULT '',
			partial_body TEXT NOT NULL DEFAULT '',
			xml TEXT NOT NULL DEFAULT '',
			extra JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createDocuments); err != nil {
		return err
	}

	createRequests := `
		CREATE TABLE IF NOT EXISTS ` + tables.Requests + ` (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			in_v2 TEXT NOT NULL DEFAULT '',
			in_v3 TEXT NOT NULL DEFAULT '',
			in_aop_pid TEXT NOT NULL DEFAULT '',
			out_v2 TEXT NOT NULL DEFAULT '',
			out_v3 TEXT NOT NULL DEFAULT '',
			out_aop_pid TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			diffs TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createRequests); err != nil {
		return err
	}

	for _, indexSQL := range documentIndexes(prefix, tables) {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}
	return nil
}

// documentIndexes lists the index DDL of the id provider database: the
// identifier lookups, every scalar column the dedup probes compare, and
// GIN indexes serving the JSONB containment checks.
func documentIndexes(prefix string, tables *TableNames) []string {
	return []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_` + prefix + `documents_v2 ON ` + tables.Documents + `(v2) WHERE v2 <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_aop_pid ON ` + tables.Documents + `(aop_pid) WHERE aop_pid <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_updated ON ` + tables.Documents + `(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_pub_year ON ` + tables.Documents + `(pub_year)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_surnames ON ` + tables.Documents + `(surnames)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_collab ON ` + tables.Documents + `(collab)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_volume ON ` + tables.Documents + `(volume)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_number ON ` + tables.Documents + `(number)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_suppl ON ` + tables.Documents + `(suppl)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_elocation ON ` + tables.Documents + `(elocation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_fpage ON ` + tables.Documents + `(fpage)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_fpage_seq ON ` + tables.Documents + `(fpage_seq)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_lpage ON ` + tables.Documents + `(lpage)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_partial_body ON ` + tables.Documents + `(partial_body)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_issns ON ` + tables.Documents + ` USING GIN (issns jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_dois ON ` + tables.Documents + ` USING GIN (doi_with_lang jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_titles ON ` + tables.Documents + ` USING GIN (article_titles jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `documents_authors ON ` + tables.Documents + ` USING GIN (authors jsonb_path_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `requests_status ON ` + tables.Requests + `(status)`,
	}
}

// EnsureMigrationSchema creates the migration table in the migration
// database.
func EnsureMigrationSchema(ctx context.Context, pool *pgxpool.Pool, tables *TableNames, prefix string) error {
	createMigrations := `
		CREATE TABLE IF NOT EXISTS ` + tables.Migrations + ` (
			v2 TEXT PRIMARY KEY,
			aop_pid TEXT NOT NULL DEFAULT '',
			is_aop BOOLEAN NOT NULL DEFAULT FALSE,
			file_path TEXT NOT NULL DEFAULT '',
			issn TEXT NOT NULL DEFAULT '',
			year TEXT NOT NULL DEFAULT '',
			order_key TEXT NOT NULL DEFAULT '',
			v91 TEXT NOT NULL DEFAULT '',
			v93 TEXT NOT NULL DEFAULT '',
			v3 TEXT NOT NULL DEFAULT '',
			xml TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'CREATED',
			status_msg TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, createMigrations); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + prefix + `migrations_journal ON ` + tables.Migrations + `(issn, is_aop, status, order_key)`,
	}
	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}
	return nil
}

// DropDocumentTables drops the id provider tables.
func DropDocumentTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	for _, table := range []string{tables.Requests, tables.Documents} {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

// DropMigrationTables drops the migration table.
func DropMigrationTables(ctx context.Context, pool *pgxpool.Pool, tables *TableNames) error {
	_, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+tables.Migrations+" CASCADE")
	return err
}
