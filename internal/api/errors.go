package api

import (
	"errors"
	"net/http"

	"turnero/internal/domain"
	"turnero/internal/queue"
)

// statusForError maps queue errors to an HTTP status and a stable
// machine-readable code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, queue.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found"
	case errors.Is(err, queue.ErrEntryNotFound):
		return http.StatusNotFound, "entry_not_found"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, queue.ErrServiceClosed):
		return http.StatusConflict, "service_closed"
	case errors.Is(err, queue.ErrAtCapacity):
		return http.StatusConflict, "at_capacity"
	case errors.Is(err, queue.ErrDuplicateMembership):
		return http.StatusConflict, "duplicate_membership"
	case errors.Is(err, queue.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, queue.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, queue.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeQueueError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
