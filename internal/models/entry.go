package models

import "time"

// QueueEntry is one customer's claim on a position in one service's queue.
type QueueEntry struct {
	ID                   string     `json:"id"`
	ServiceID            int64      `json:"service_id"`
	UserID               int64      `json:"user_id"`
	QueueNumber          int64      `json:"queue_number"`
	Status               string     `json:"status"` // waiting, called, served, cancelled, no_show
	Position             int        `json:"position"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	JoinedAt             time.Time  `json:"joined_at"`
	CalledAt             *time.Time `json:"called_at,omitempty"`
	ServedAt             *time.Time `json:"served_at,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	QRCode               string     `json:"qr_code"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// IsActive reports whether the entry still occupies a capacity slot.
func (e *QueueEntry) IsActive() bool {
	return e.Status == StatusWaiting || e.Status == StatusCalled
}

// IsTerminal reports whether the entry reached a final status.
func (e *QueueEntry) IsTerminal() bool {
	switch e.Status {
	case StatusServed, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}
