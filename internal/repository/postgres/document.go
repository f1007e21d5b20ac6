package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scielocore/internal/domain"
	"scielocore/internal/domain/models"
	"scielocore/internal/domain/repositories"
)

// scalarColumns whitelists the criteria fields that map straight onto a
// column of the documents table.
var scalarColumns = map[string]string{
	"v2":           "v2",
	"pub_year":     "pub_year",
	"collab":       "collab",
	"surnames":     "surnames",
	"volume":       "volume",
	"number":       "number",
	"suppl":        "suppl",
	"elocation_id": "elocation_id",
	"fpage":        "fpage",
	"fpage_seq":    "fpage_seq",
	"lpage":        "lpage",
	"partial_body": "partial_body",
}

// groupColumns whitelists the criteria fields stored as JSONB lists.
var groupColumns = map[string]string{
	"issns":          "issns",
	"doi_with_lang":  "doi_with_lang",
	"article_titles": "article_titles",
}

const documentColumns = `v3, v2, aop_pid, issns, pub_year, doi_with_lang, authors, collab,
		article_titles, surnames, volume, number, suppl, elocation_id,
		fpage, fpage_seq, lpage, partial_body, xml, extra, created_at, updated_at`

// PostgresDocumentStore implements the DocumentStore interface.
type PostgresDocumentStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewDocumentStore creates a new document store.
func NewDocumentStore(config *RepositoryConfig) repositories.DocumentStore {
	return &PostgresDocumentStore{
		pool:   config.Pool,
		tables: config.Tables,
	}
}

// buildWhere translates criteria into a WHERE clause. Scalars become
// plain equality; each OR group becomes a disjunction of JSONB
// containment checks, which the GIN indexes on the list columns serve.
func buildWhere(c *repositories.Criteria, args *[]any) (string, error) {
	var clauses []string
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}

	for _, s := range c.Scalars {
		col, ok := scalarColumns[s.Field]
		if !ok {
			return "", fmt.Errorf("unknown criteria field %q", s.Field)
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", col, next(s.Value)))
	}
	for _, g := range c.Groups {
		col, ok := groupColumns[g.Field]
		if !ok {
			return "", fmt.Errorf("unknown criteria list field %q", g.Field)
		}
		var alts []string
		for _, v := range g.Values {
			probe, err := json.Marshal([]map[string]string{{g.Attr: v}})
			if err != nil {
				return "", fmt.Errorf("encode criteria probe: %w", err)
			}
			alts = append(alts, fmt.Sprintf("%s @> %s", col, next(string(probe))))
		}
		if len(alts) == 1 {
			clauses = append(clauses, alts[0])
		} else {
			clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
		}
	}
	if len(clauses) == 0 {
		return "TRUE", nil
	}
	return strings.Join(clauses, " AND "), nil
}

// FindMatching returns at most one page of records matching the
// criteria, most recently updated first.
func (r *PostgresDocumentStore) FindMatching(ctx context.Context, c *repositories.Criteria) ([]*models.DocumentRecord, error) {
	var args []any
	where, err := buildWhere(c, &args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT %d
	`, documentColumns, r.tables.Documents, where, repositories.DefaultPageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	var records []*models.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	return records, nil
}

// FetchMostRecent returns the freshest record for a v3.
func (r *PostgresDocumentStore) FetchMostRecent(ctx context.Context, v3 string) (*models.DocumentRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE v3 = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, documentColumns, r.tables.Documents)

	rec, err := scanDocument(r.pool.QueryRow(ctx, query, v3))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("document %s: %w", v3, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return rec, nil
}

// GetByV2 returns the freshest record carrying the given v2, checking
// the current v2 first and the previous pid as fallback.
func (r *PostgresDocumentStore) GetByV2(ctx context.Context, v2 string) (*models.DocumentRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE v2 = $1 OR aop_pid = $1
		ORDER BY (v2 = $1) DESC, updated_at DESC
		LIMIT 1
	`, documentColumns, r.tables.Documents)

	rec, err := scanDocument(r.pool.QueryRow(ctx, query, v2))
	if err != nil {
		if isPgNoRowsError(err) {
			return nil, fmt.Errorf("document v2 %s: %w", v2, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get document by v2: %w", err)
	}
	return rec, nil
}

func (r *PostgresDocumentStore) ExistsV2(ctx context.Context, v2 string) (bool, error) {
	return r.exists(ctx, "v2", v2)
}

func (r *PostgresDocumentStore) ExistsV3(ctx context.Context, v3 string) (bool, error) {
	return r.exists(ctx, "v3", v3)
}

func (r *PostgresDocumentStore) exists(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, r.tables.Documents, column)
	var exists bool
	if err := r.pool.QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s: %w", column, err)
	}
	return exists, nil
}

// Upsert writes the record keyed on v3. A unique violation on v2 or v3
// from a concurrent writer surfaces as domain.ErrNotUnique with the
// offending field.
func (r *PostgresDocumentStore) Upsert(ctx context.Context, rec *models.DocumentRecord) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $21)
		ON CONFLICT (v3) DO UPDATE SET
			v2 = EXCLUDED.v2,
			aop_pid = EXCLUDED.aop_pid,
			issns = EXCLUDED.issns,
			pub_year = EXCLUDED.pub_year,
			doi_with_lang = EXCLUDED.doi_with_lang,
			authors = EXCLUDED.authors,
			collab = EXCLUDED.collab,
			article_titles = EXCLUDED.article_titles,
			surnames = EXCLUDED.surnames,
			volume = EXCLUDED.volume,
			number = EXCLUDED.number,
			suppl = EXCLUDED.suppl,
			elocation_id = EXCLUDED.elocation_id,
			fpage = EXCLUDED.fpage,
			fpage_seq = EXCLUDED.fpage_seq,
			lpage = EXCLUDED.lpage,
			partial_body = EXCLUDED.partial_body,
			xml = EXCLUDED.xml,
			extra = EXCLUDED.extra,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`, r.tables.Documents, documentColumns)

	err := r.pool.QueryRow(ctx, query,
		rec.V3,
		rec.V2,
		rec.AopPid,
		rec.ISSNs,
		rec.PubYear,
		rec.DOIWithLang,
		rec.Authors,
		rec.Collab,
		rec.Titles,
		rec.Surnames,
		rec.Volume,
		rec.Number,
		rec.Suppl,
		rec.ElocationID,
		rec.FPage,
		rec.FPageSeq,
		rec.LPage,
		rec.PartialBody,
		rec.XML,
		rec.Extra,
		now,
	).Scan(&rec.Created, &rec.Updated)

	if err != nil {
		if isPgDuplicateError(err) {
			return duplicateField(err)
		}
		return fmt.Errorf("upsert document %s: %w", rec.V3, err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*models.DocumentRecord, error) {
	var rec models.DocumentRecord
	err := row.Scan(
		&rec.V3,
		&rec.V2,
		&rec.AopPid,
		&rec.ISSNs,
		&rec.PubYear,
		&rec.DOIWithLang,
		&rec.Authors,
		&rec.Collab,
		&rec.Titles,
		&rec.Surnames,
		&rec.Volume,
		&rec.Number,
		&rec.Suppl,
		&rec.ElocationID,
		&rec.FPage,
		&rec.FPageSeq,
		&rec.LPage,
		&rec.PartialBody,
		&rec.XML,
		&rec.Extra,
		&rec.Created,
		&rec.Updated,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
