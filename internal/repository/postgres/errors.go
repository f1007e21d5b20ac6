package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"scielocore/internal/domain"
)

// isPgDuplicateError checks if error is a unique constraint violation.
func isPgDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	return false
}

// isPgNoRowsError checks if error is a "no rows" error.
func isPgNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// duplicateField names the identifier column behind a unique violation,
// derived from the constraint name, so callers can reallocate just that
// identifier.
func duplicateField(err error) *domain.NotUniqueError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &domain.NotUniqueError{Field: "v3"}
	}
	if strings.Contains(pgErr.ConstraintName, "v2") {
		return &domain.NotUniqueError{Field: "v2"}
	}
	return &domain.NotUniqueError{Field: "v3"}
}
