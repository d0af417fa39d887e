package queue

import (
	"sort"

	"turnero/internal/models"
)

// Stateless eligibility and ordering rules over entry snapshots of one
// service. None of these functions mutate their inputs or perform I/O.

// CanJoin reports whether userID may join the service's queue given the
// current active entries (waiting or called).
func CanJoin(service *models.Service, entries []*models.QueueEntry, userID int64) error {
	if !service.IsOpen {
		return ErrServiceClosed
	}

	active := 0
	for _, e := range entries {
		if !e.IsActive() {
			continue
		}
		if e.UserID == userID {
			return ErrDuplicateMembership
		}
		active++
	}

	if active >= service.MaxCapacity {
		return ErrAtCapacity
	}
	return nil
}

// Position returns the 1-indexed rank of queueNumber among the active
// entries, ordered by ascending queue number. Position 1 means next to
// be called. Returns 0 when the number is not in the active set.
func Position(entries []*models.QueueEntry, queueNumber int64) int {
	found := false
	rank := 1
	for _, e := range entries {
		if !e.IsActive() {
			continue
		}
		if e.QueueNumber == queueNumber {
			found = true
			continue
		}
		if e.QueueNumber < queueNumber {
			rank++
		}
	}
	if !found {
		return 0
	}
	return rank
}

// NextToCall returns the waiting entry with the smallest queue number,
// or nil when nobody is waiting.
func NextToCall(entries []*models.QueueEntry) *models.QueueEntry {
	var next *models.QueueEntry
	for _, e := range entries {
		if e.Status != models.StatusWaiting {
			continue
		}
		if next == nil || e.QueueNumber < next.QueueNumber {
			next = e
		}
	}
	return next
}

// SortByQueueNumber returns a copy of entries ordered by ascending
// queue number.
func SortByQueueNumber(entries []*models.QueueEntry) []*models.QueueEntry {
	sorted := append([]*models.QueueEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QueueNumber < sorted[j].QueueNumber
	})
	return sorted
}
