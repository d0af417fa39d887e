package queue

import (
	"time"

	"turnero/internal/models"
)

// allowedTransitions lists the legal status edges. Serving straight from
// waiting is legal: some establishments skip the formal call step.
var allowedTransitions = map[string][]string{
	models.StatusWaiting: {models.StatusCalled, models.StatusServed, models.StatusCancelled, models.StatusNoShow},
	models.StatusCalled:  {models.StatusServed, models.StatusCancelled, models.StatusNoShow},
}

func transitionAllowed(from, to string) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Transition moves entry to the requested status, stamping CalledAt and
// ServedAt exactly once. Re-calling an already-called entry is a no-op
// success so operator retries stay safe. Terminal entries reject every
// transition with ErrInvalidTransition.
func Transition(entry *models.QueueEntry, to string, at time.Time, notes string) error {
	if entry.Status == models.StatusCalled && to == models.StatusCalled {
		return nil
	}
	if !transitionAllowed(entry.Status, to) {
		return ErrInvalidTransition
	}

	entry.Status = to
	entry.UpdatedAt = at

	switch to {
	case models.StatusCalled:
		if entry.CalledAt == nil {
			ts := at
			entry.CalledAt = &ts
		}
	case models.StatusServed:
		if entry.ServedAt == nil {
			ts := at
			entry.ServedAt = &ts
		}
	}

	if notes != "" {
		entry.Notes = notes
	}
	return nil
}
