package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"
)

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	if service.MaxCapacity <= 0 {
		service.MaxCapacity = models.DefaultMaxCapacity
	}
	if service.AvgServiceMinutes <= 0 {
		service.AvgServiceMinutes = models.DefaultAvgServiceMinutes
	}

	query := `INSERT INTO services (
				establishment_id, name, max_capacity, is_open,
				queue_number_counter, avg_service_minutes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		service.EstablishmentID,
		service.Name,
		service.MaxCapacity,
		service.IsOpen,
		service.QueueNumberCounter,
		service.AvgServiceMinutes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	service.ID = id
	service.CreatedAt = now
	service.UpdatedAt = now
	return nil
}

// UpsertService inserts the service or refreshes its configuration
// fields, keeping the queue counter. Used for config-seeded services.
func (db *DB) UpsertService(ctx context.Context, service *models.Service) error {
	if service.ID == 0 {
		return db.CreateService(ctx, service)
	}

	query := `INSERT INTO services (
				id, establishment_id, name, max_capacity, is_open,
				queue_number_counter, avg_service_minutes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				establishment_id = excluded.establishment_id,
				name = excluded.name,
				max_capacity = excluded.max_capacity,
				is_open = excluded.is_open,
				avg_service_minutes = excluded.avg_service_minutes,
				updated_at = excluded.updated_at`
	now := time.Now()
	if service.MaxCapacity <= 0 {
		service.MaxCapacity = models.DefaultMaxCapacity
	}
	if service.AvgServiceMinutes <= 0 {
		service.AvgServiceMinutes = models.DefaultAvgServiceMinutes
	}

	_, err := db.ExecContext(ctx, query,
		service.ID,
		service.EstablishmentID,
		service.Name,
		service.MaxCapacity,
		service.IsOpen,
		service.AvgServiceMinutes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert service: %w", err)
	}
	return nil
}

func (db *DB) GetService(ctx context.Context, id int64) (*models.Service, error) {
	query := `SELECT id, establishment_id, name, max_capacity, is_open,
	                 queue_number_counter, avg_service_minutes, created_at, updated_at
              FROM services WHERE id = ?`

	var service models.Service
	err := db.QueryRowContext(ctx, query, id).Scan(
		&service.ID,
		&service.EstablishmentID,
		&service.Name,
		&service.MaxCapacity,
		&service.IsOpen,
		&service.QueueNumberCounter,
		&service.AvgServiceMinutes,
		&service.CreatedAt,
		&service.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &service, nil
}

func (db *DB) ListServices(ctx context.Context, openOnly bool) ([]*models.Service, error) {
	query := `SELECT id, establishment_id, name, max_capacity, is_open,
	                 queue_number_counter, avg_service_minutes, created_at, updated_at
              FROM services`
	if openOnly {
		query += ` WHERE is_open = 1`
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s := &models.Service{}
		err := rows.Scan(
			&s.ID,
			&s.EstablishmentID,
			&s.Name,
			&s.MaxCapacity,
			&s.IsOpen,
			&s.QueueNumberCounter,
			&s.AvgServiceMinutes,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// SetServiceOpen flips the join gate of a service.
func (db *DB) SetServiceOpen(ctx context.Context, id int64, open bool) error {
	query := `UPDATE services SET is_open = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, open, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set service open: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementQueueCounter atomically allocates the next queue number for
// the service. The increment and read run in one transaction so two
// concurrent joins can never observe the same value.
func (db *DB) IncrementQueueCounter(ctx context.Context, serviceID int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE services SET queue_number_counter = queue_number_counter + 1, updated_at = ? WHERE id = ?`,
		time.Now(), serviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to increment queue counter: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return 0, domain.ErrNotFound
	}

	var counter int64
	err = tx.QueryRowContext(ctx,
		`SELECT queue_number_counter FROM services WHERE id = ?`, serviceID).Scan(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter increment: %w", err)
	}
	return counter, nil
}
