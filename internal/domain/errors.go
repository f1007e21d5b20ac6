package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes at
// the request boundary.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is().
var (
	// ErrInvalidXML indicates the submitted package could not be parsed.
	ErrInvalidXML = errors.New("invalid xml")

	// ErrNotEnoughDiscriminators indicates the document carries no DOI,
	// authors, collab, titles nor partial body to deduplicate on.
	ErrNotEnoughDiscriminators = errors.New("not enough discriminators")

	// ErrNotAllowedAOPInput indicates an attempt to re-register an
	// already-published document as ahead-of-print.
	ErrNotAllowedAOPInput = errors.New("aop input not allowed for published document")

	// ErrCannotAllocateV2 indicates the v2 identifier could not be built
	// because the ISSN or publication year is missing.
	ErrCannotAllocateV2 = errors.New("cannot allocate v2")

	// ErrNotUnique indicates an identifier uniqueness conflict on write.
	ErrNotUnique = errors.New("identifier not unique")

	// ErrStoreUnavailable indicates the document store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrFetchFailed wraps store read failures inside the resolver.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrPullXMLFailed indicates no source yielded XML for a migration row.
	ErrPullXMLFailed = errors.New("pull xml failed")

	// ErrSavingError indicates the record could not be persisted after
	// exhausting the bounded identifier-reallocation retries.
	ErrSavingError = errors.New("saving error")

	// ErrNotFound is used by stores for missing rows. The dedup resolver
	// never returns it: a resolver miss is a normal outcome, not an error.
	ErrNotFound = errors.New("not found")
)

// NotUniqueError reports which identifier column collided on write, so
// the pipeline can reallocate only the offending one.
type NotUniqueError struct {
	Field string
}

func (e *NotUniqueError) Error() string {
	return "identifier not unique: " + e.Field
}

func (e *NotUniqueError) Is(target error) bool { return target == ErrNotUnique }

type (
	// BadRequestError maps input problems (invalid XML, missing
	// discriminators, unallocatable v2) to 400.
	BadRequestError struct {
		Err error
	}

	// ForbiddenError maps the AOP guard to 403.
	ForbiddenError struct {
		Err error
	}

	// InternalError maps store and save failures to 500.
	InternalError struct {
		Err error
	}
)

func (e *BadRequestError) Error() string { return e.Err.Error() }
func (e *ForbiddenError) Error() string  { return e.Err.Error() }
func (e *InternalError) Error() string   { return e.Err.Error() }

func (e *BadRequestError) Unwrap() error { return e.Err }
func (e *ForbiddenError) Unwrap() error  { return e.Err }
func (e *InternalError) Unwrap() error   { return e.Err }

func (e *BadRequestError) StatusCode() int { return http.StatusBadRequest }
func (e *ForbiddenError) StatusCode() int  { return http.StatusForbidden }
func (e *InternalError) StatusCode() int   { return http.StatusInternalServerError }

// StatusCodeFor classifies any pipeline error for the request boundary:
// bad-request for input problems, forbidden for the AOP guard, internal
// server error otherwise.
func StatusCodeFor(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	switch {
	case errors.Is(err, ErrInvalidXML),
		errors.Is(err, ErrNotEnoughDiscriminators),
		errors.Is(err, ErrCannotAllocateV2):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotAllowedAOPInput):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
