package queue

import "errors"

// Business outcomes of coordinator operations. These are expected,
// recoverable results and are matched with errors.Is at the edges.
var (
	ErrServiceNotFound     = errors.New("service not found")
	ErrServiceClosed       = errors.New("service is currently closed")
	ErrAtCapacity          = errors.New("queue is at maximum capacity")
	ErrDuplicateMembership = errors.New("user is already in this queue")
	ErrEntryNotFound       = errors.New("queue entry not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotAuthorized       = errors.New("not authorized for this queue entry")
	ErrConflict            = errors.New("entry was modified concurrently, retry the operation")
)
