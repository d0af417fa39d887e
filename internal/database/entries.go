package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
)

const entryColumns = `id, service_id, user_id, queue_number, status, position,
	estimated_wait_minutes, joined_at, called_at, served_at, notes, qr_code,
	version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	e := &models.QueueEntry{}
	var calledAt, servedAt sql.NullTime
	var notes sql.NullString

	err := row.Scan(
		&e.ID, &e.ServiceID, &e.UserID, &e.QueueNumber, &e.Status, &e.Position,
		&e.EstimatedWaitMinutes, &e.JoinedAt, &calledAt, &servedAt, &notes,
		&e.QRCode, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if calledAt.Valid {
		t := calledAt.Time
		e.CalledAt = &t
	}
	if servedAt.Valid {
		t := servedAt.Time
		e.ServedAt = &t
	}
	if notes.Valid {
		e.Notes = notes.String
	}
	return e, nil
}

// CreateEntry inserts a new waiting entry. The capacity and duplicate
// checks run again inside the transaction: the coordinator's per-service
// mutex only covers one process, the transaction covers them all.
func (db *DB) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var maxCapacity int
	err = tx.QueryRowContext(ctx,
		`SELECT max_capacity FROM services WHERE id = ?`, entry.ServiceID).Scan(&maxCapacity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read service capacity: %w", err)
	}

	var activeCount, userActive int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN user_id = ? THEN 1 ELSE 0 END), 0)
		 FROM queue_entries WHERE service_id = ? AND status IN (?, ?)`,
		entry.UserID, entry.ServiceID, models.StatusWaiting, models.StatusCalled,
	).Scan(&activeCount, &userActive)
	if err != nil {
		return fmt.Errorf("failed to count active entries: %w", err)
	}
	if userActive > 0 {
		return domain.ErrDuplicateActive
	}
	if activeCount >= maxCapacity {
		return domain.ErrCapacityExceeded
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO queue_entries (
			id, service_id, user_id, queue_number, status, position,
			estimated_wait_minutes, joined_at, called_at, served_at, notes,
			qr_code, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ServiceID,
		entry.UserID,
		entry.QueueNumber,
		entry.Status,
		entry.Position,
		entry.EstimatedWaitMinutes,
		entry.JoinedAt,
		nullableString(entry.Notes),
		entry.QRCode,
		1,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	entry.Version = 1
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return tx.Commit()
}

// UpdateEntry persists the entry's mutable fields with an optimistic
// version check. entry.Version must hold the version that was read; it
// is bumped on success.
func (db *DB) UpdateEntry(ctx context.Context, entry *models.QueueEntry) error {
	query := `UPDATE queue_entries SET
				status = ?, position = ?, estimated_wait_minutes = ?,
				called_at = ?, served_at = ?, notes = ?,
				version = version + 1, updated_at = ?
			  WHERE id = ? AND version = ?`

	result, err := db.ExecContext(ctx, query,
		entry.Status,
		entry.Position,
		entry.EstimatedWaitMinutes,
		nullableTime(entry.CalledAt),
		nullableTime(entry.ServedAt),
		nullableString(entry.Notes),
		time.Now(),
		entry.ID,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	entry.Version++
	return nil
}

func (db *DB) GetEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE id = ?`
	entry, err := scanEntry(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

func (db *DB) GetEntryByQR(ctx context.Context, qrCode string) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE qr_code = ?`
	entry, err := scanEntry(db.QueryRowContext(ctx, query, qrCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry by qr: %w", err)
	}
	return entry, nil
}

// ListEntries returns the service's entries ordered by queue number,
// optionally filtered by status.
func (db *DB) ListEntries(ctx context.Context, serviceID int64, statuses ...string) ([]*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE service_id = ?`
	args := []any{serviceID}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY queue_number ASC`

	return db.listEntries(ctx, query, args...)
}

// ListEntriesByUser returns the user's entries, newest join first.
func (db *DB) ListEntriesByUser(ctx context.Context, userID int64, statuses ...string) ([]*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE user_id = ?`
	args := []any{userID}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY joined_at DESC`

	return db.listEntries(ctx, query, args...)
}

// EntryHistory returns every entry of a service joined inside the range,
// regardless of status. Used by the operator export.
func (db *DB) EntryHistory(ctx context.Context, serviceID int64, from, to time.Time) ([]*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries
	          WHERE service_id = ? AND joined_at >= ? AND joined_at < ?
	          ORDER BY queue_number ASC`
	return db.listEntries(ctx, query, serviceID, from, to)
}

func (db *DB) listEntries(ctx context.Context, query string, args ...any) ([]*models.QueueEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ServiceStats aggregates per-status counts and the average completed
// wait. Only served entries with both timestamps contribute to the
// average.
func (db *DB) ServiceStats(ctx context.Context, serviceID int64) (*models.QueueStats, error) {
	query := `SELECT
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
				COALESCE(ROUND(AVG(CASE WHEN status = ? AND served_at IS NOT NULL
					THEN (julianday(served_at) - julianday(joined_at)) * 24 * 60 END)), 0)
			  FROM queue_entries WHERE service_id = ?`

	stats := &models.QueueStats{}
	err := db.QueryRowContext(ctx, query,
		models.StatusWaiting, models.StatusCalled, models.StatusServed, models.StatusServed,
		serviceID,
	).Scan(&stats.TotalWaiting, &stats.TotalCalled, &stats.TotalServed, &stats.AverageWaitMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to get service stats: %w", err)
	}
	return stats, nil
}

func appendStatusFilter(query string, args []any, statuses []string) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := make([]string, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, s)
	}
	query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	return query, args
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
