package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound: no row matched the scoped key.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyClaimed: the discovery claim's uniqueness key already exists.
	// Callers must treat this as "already handled today", not as a failure.
	ErrAlreadyClaimed = errors.New("file already claimed for this day")

	// ErrVersionConflict: the caller's concurrency token is stale. Re-read
	// and retry with fresh state; the write was not applied.
	ErrVersionConflict = errors.New("version conflict")
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
