package worker

import (
	"context"
	"time"

	"turnero/internal/models"

	"github.com/rs/zerolog"
)

// QueueService is the slice of the coordinator the reminder worker
// needs.
type QueueService interface {
	ListOpenServices(ctx context.Context) ([]*models.Service, error)
	RemindUpcoming(ctx context.Context, serviceID int64) error
}

// ReminderWorker periodically nudges the customers at the head of every
// open queue.
type ReminderWorker struct {
	queue    QueueService
	interval time.Duration
	retry    RetryPolicy
	logger   *zerolog.Logger
}

func NewReminderWorker(queue QueueService, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = models.DefaultReminderIntervalSeconds * time.Second
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 30 * time.Second
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &ReminderWorker{
		queue:    queue,
		interval: interval,
		retry:    retry,
		logger:   logger,
	}
}

// Start runs the sweep loop; stops when ctx is done.
func (w *ReminderWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("reminder worker started")
	defer w.logger.Info().Msg("reminder worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep reminds the head of the line across every open service.
func (w *ReminderWorker) sweep(ctx context.Context) {
	services, err := w.queue.ListOpenServices(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("reminder sweep: list services failed")
		return
	}

	for _, service := range services {
		w.remindWithRetry(ctx, service.ID)
	}
}

func (w *ReminderWorker) remindWithRetry(ctx context.Context, serviceID int64) {
	var err error
	for attempt := 1; attempt <= w.retry.MaxRetries; attempt++ {
		if err = w.queue.RemindUpcoming(ctx, serviceID); err == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry.NextDelay(attempt)):
		}
	}

	w.logger.Error().Err(err).
		Int64("service_id", serviceID).
		Int("attempts", w.retry.MaxRetries).
		Msg("reminder sweep gave up on service")
}
