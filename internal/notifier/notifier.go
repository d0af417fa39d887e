package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"turnero/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NotificationStore persists the notification record.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Notifier records queue notifications and pushes them to the customer's
// Redis channel, where delivery frontends subscribe.
type Notifier struct {
	store  NotificationStore
	client *redis.Client
	logger *zerolog.Logger
}

func New(store NotificationStore, client *redis.Client, logger *zerolog.Logger) *Notifier {
	return &Notifier{
		store:  store,
		client: client,
		logger: logger,
	}
}

// ChannelFor returns the Redis pub/sub channel for a customer.
func ChannelFor(userID int64) string {
	return fmt.Sprintf("queue_updates:%d", userID)
}

// Notify stores the notification and publishes it. The publish is best
// effort: a missing or broken Redis only loses the push, not the record.
func (n *Notifier) Notify(ctx context.Context, userID int64, entryID, kind, title, message string) error {
	notification := &models.Notification{
		UserID:  userID,
		EntryID: entryID,
		Kind:    kind,
		Title:   title,
		Message: message,
		SentAt:  time.Now(),
	}

	if err := n.store.CreateNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	if n.client == nil {
		return nil
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.client.Publish(ctx, ChannelFor(userID), payload).Err(); err != nil {
		n.logger.Warn().Err(err).
			Int64("user_id", userID).
			Str("kind", kind).
			Msg("Failed to publish notification")
	}
	return nil
}
