package repositories

import (
	"context"

	"scielocore/internal/domain/models"
)

// DefaultPageSize is the findMatching page size.
const DefaultPageSize = 50

// DocumentStore is the persistent registry of document records, indexed
// for the dedup queries the resolver issues.
type DocumentStore interface {
	// FindMatching returns at most DefaultPageSize records matching the
	// criteria, most recently updated first.
	FindMatching(ctx context.Context, c *Criteria) ([]*models.DocumentRecord, error)

	// FetchMostRecent returns the freshest record for a v3, or
	// domain.ErrNotFound.
	FetchMostRecent(ctx context.Context, v3 string) (*models.DocumentRecord, error)

	// GetByV2 returns the freshest record carrying the given v2, or
	// domain.ErrNotFound.
	GetByV2(ctx context.Context, v2 string) (*models.DocumentRecord, error)

	ExistsV2(ctx context.Context, v2 string) (bool, error)
	ExistsV3(ctx context.Context, v3 string) (bool, error)

	// Upsert writes the record atomically, keyed on v3. Created is set on
	// first write, Updated on every write. A concurrent conflict on the
	// unique v2/v3 indexes yields domain.ErrNotUnique.
	Upsert(ctx context.Context, rec *models.DocumentRecord) error
}

// RequestLog is the append-only audit trail of RequestId calls.
type RequestLog interface {
	LogRequest(ctx context.Context, req *models.Request) error
	UpdateRequest(ctx context.Context, req *models.Request) error
}
