package domain

import (
	"context"
	"time"

	"turnero/internal/models"
)

// Store is the single source of truth for services and queue entries.
// Implementations must make IncrementQueueCounter atomic under
// concurrent joins and must reject stale writes in UpdateEntry with
// ErrConcurrentModification.
type Store interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	ListServices(ctx context.Context, openOnly bool) ([]*models.Service, error)
	IncrementQueueCounter(ctx context.Context, serviceID int64) (int64, error)
	ListEntries(ctx context.Context, serviceID int64, statuses ...string) ([]*models.QueueEntry, error)
	ListEntriesByUser(ctx context.Context, userID int64, statuses ...string) ([]*models.QueueEntry, error)
	GetEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	GetEntryByQR(ctx context.Context, qrCode string) (*models.QueueEntry, error)
	CreateEntry(ctx context.Context, entry *models.QueueEntry) error
	UpdateEntry(ctx context.Context, entry *models.QueueEntry) error
	ServiceStats(ctx context.Context, serviceID int64) (*models.QueueStats, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)
}

// Notifier delivers a message to a customer. Best effort: the
// coordinator logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, userID int64, entryID, kind, title, message string) error
}

// Prediction is the occupancy snapshot returned by the external
// prediction service.
type Prediction struct {
	People           int     `json:"personas"`
	EstimatedMinutes float64 `json:"tiempo_estimado"`
	Occupancy        float64 `json:"ocupacion"`
}

// WaitPredictor fetches the external wait-time signal. Callers bound it
// with a context timeout; any error means "no signal".
type WaitPredictor interface {
	Predict(ctx context.Context) (*Prediction, error)
}

// PositionCache keeps the live position view per entry so reads do not
// hit the store. A miss returns (nil, nil).
type PositionCache interface {
	SetPosition(ctx context.Context, entryID string, pos *models.QueuePosition, ttl time.Duration) error
	GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error)
	Invalidate(ctx context.Context, entryID string) error
}

// EventPublisher fans queue events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
