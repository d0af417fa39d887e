package domain

import "errors"

// Storage contract errors. The coordinator translates these into its
// business error taxonomy.
var (
	// ErrNotFound is returned when a service or entry does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentModification is returned when an optimistic version
	// check fails; the caller may reload and retry.
	ErrConcurrentModification = errors.New("record was modified concurrently")

	// ErrCapacityExceeded is returned by CreateEntry when the insert-time
	// capacity check fails. It backs the coordinator's eligibility check
	// across processes.
	ErrCapacityExceeded = errors.New("service queue is full")

	// ErrDuplicateActive is returned by CreateEntry when the user already
	// holds an active entry for the service.
	ErrDuplicateActive = errors.New("user already has an active entry")
)
