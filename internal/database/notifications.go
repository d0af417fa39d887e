package database

import (
	"context"
	"fmt"
	"time"

	"turnero/internal/models"
)

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}

	query := `INSERT INTO notifications (user_id, entry_id, kind, title, message, sent_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		n.UserID,
		nullableString(n.EntryID),
		n.Kind,
		n.Title,
		n.Message,
		n.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, COALESCE(entry_id, ''), kind, title, message, sent_at
	          FROM notifications WHERE user_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		err := rows.Scan(&n.ID, &n.UserID, &n.EntryID, &n.Kind, &n.Title, &n.Message, &n.SentAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
