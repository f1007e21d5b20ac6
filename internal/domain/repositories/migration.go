package repositories

import (
	"context"

	"scielocore/internal/domain/models"
)

// MigrationStore tracks migration rows, keyed by v2. It lives in a
// database separate from the document store; the only cross-reference is
// the v2 value.
type MigrationStore interface {
	// Get returns the row for a v2, or domain.ErrNotFound.
	Get(ctx context.Context, v2 string) (*models.Migration, error)

	// Save inserts or overwrites the row keyed on v2. Created is set on
	// first write, Updated on every write.
	Save(ctx context.Context, m *models.Migration) error

	// ListByStatus pages rows for one journal and AOP flag, filtered on
	// status, in insertion order. Page numbering starts at 1.
	ListByStatus(ctx context.Context, issn string, isAop bool, status string, page int) ([]*models.Migration, error)
}
