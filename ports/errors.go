package ports

import "errors"

// Storage sentinel errors shared by every store implementation.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is returned by PlanChangeStore.Create when the
	// source event id was already recorded. Callers treat it as a no-op,
	// never as a failure: billing processors redeliver events.
	ErrDuplicateEvent = errors.New("duplicate source event")
)
