package models

import "time"

// Notification is a message recorded for a customer about their queue entry.
type Notification struct {
	ID      int64     `json:"id"`
	UserID  int64     `json:"user_id"`
	EntryID string    `json:"entry_id,omitempty"`
	Kind    string    `json:"kind"` // joined, called, served, cancelled, reminder
	Title   string    `json:"title"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}
