package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/metrics"
	"turnero/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config tunes coordinator behavior. Zero values fall back to the
// model defaults.
type Config struct {
	AvgServiceMinutes int
	PredictorTimeout  time.Duration
	PositionTTL       time.Duration
	ReminderPositions int
}

func (c *Config) applyDefaults() {
	if c.AvgServiceMinutes <= 0 {
		c.AvgServiceMinutes = models.DefaultAvgServiceMinutes
	}
	if c.PredictorTimeout <= 0 {
		c.PredictorTimeout = models.PredictorTimeoutSeconds * time.Second
	}
	if c.PositionTTL <= 0 {
		c.PositionTTL = models.DefaultPositionTTL * time.Second
	}
	if c.ReminderPositions <= 0 {
		c.ReminderPositions = models.ReminderPositions
	}
}

// Coordinator orchestrates every queue operation: joins, calls, serves,
// removals, position reads and stats. Operations on one service are
// serialized through a per-service mutex; the store adds transactional
// checks for cross-process safety.
type Coordinator struct {
	store     domain.Store
	notifier  domain.Notifier
	predictor domain.WaitPredictor
	cache     domain.PositionCache
	eventBus  domain.EventPublisher
	cfg       Config
	logger    *zerolog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewCoordinator(
	store domain.Store,
	notifier domain.Notifier,
	predictor domain.WaitPredictor,
	cache domain.PositionCache,
	eventBus domain.EventPublisher,
	cfg Config,
	logger *zerolog.Logger,
) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:     store,
		notifier:  notifier,
		predictor: predictor,
		cache:     cache,
		eventBus:  eventBus,
		cfg:       cfg,
		logger:    logger,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// lockService returns the unlock func for the service's critical section.
func (c *Coordinator) lockService(serviceID int64) func() {
	c.mu.Lock()
	lock, ok := c.locks[serviceID]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[serviceID] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Join adds userID to the service's queue, returning the created entry.
func (c *Coordinator) Join(ctx context.Context, serviceID, userID int64, notes string) (*models.QueueEntry, error) {
	unlock := c.lockService(serviceID)
	defer unlock()

	service, err := c.getService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	active, err := c.store.ListEntries(ctx, serviceID, models.StatusWaiting, models.StatusCalled)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}

	if err := CanJoin(service, active, userID); err != nil {
		return nil, err
	}

	number, err := c.store.IncrementQueueCounter(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("allocate queue number: %w", err)
	}

	signal := c.fetchSignal(ctx)
	now := time.Now().UTC()
	entry := &models.QueueEntry{
		ID:                   uuid.NewString(),
		ServiceID:            serviceID,
		UserID:               userID,
		QueueNumber:          number,
		Status:               models.StatusWaiting,
		Position:             len(active) + 1,
		EstimatedWaitMinutes: Estimate(len(active), signal, c.avgMinutes(service)),
		JoinedAt:             now,
		Notes:                notes,
		QRCode:               newQRCode(now),
		Version:              1,
	}

	if err := c.store.CreateEntry(ctx, entry); err != nil {
		// The store re-checks eligibility inside its transaction, which
		// covers races with writers outside this process.
		switch {
		case errors.Is(err, domain.ErrCapacityExceeded):
			return nil, ErrAtCapacity
		case errors.Is(err, domain.ErrDuplicateActive):
			return nil, ErrDuplicateMembership
		}
		return nil, fmt.Errorf("create entry: %w", err)
	}

	c.cachePosition(ctx, entry, len(active)+1)
	c.notify(ctx, entry, models.NotifyJoined, "Joined queue",
		fmt.Sprintf("You have joined the queue for %s. Your queue number is #%d.", service.Name, entry.QueueNumber))
	c.publish(events.EventEntryJoined, entry)
	metrics.IncJoined(serviceID)
	metrics.SetQueueDepth(serviceID, len(active)+1)

	return entry, nil
}

// CallNext transitions the lowest-numbered waiting entry to called and
// returns it. Returns (nil, nil) when nobody is waiting.
func (c *Coordinator) CallNext(ctx context.Context, serviceID int64) (*models.QueueEntry, error) {
	unlock := c.lockService(serviceID)
	defer unlock()

	waiting, err := c.store.ListEntries(ctx, serviceID, models.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}

	next := NextToCall(waiting)
	if next == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	if err := Transition(next, models.StatusCalled, now, ""); err != nil {
		return nil, err
	}
	if err := c.updateEntry(ctx, next); err != nil {
		return nil, err
	}

	c.notify(ctx, next, models.NotifyCalled, "Your turn!",
		"You are being called for service. Please proceed to the service area.")
	c.publish(events.EventEntryCalled, next)
	metrics.IncCalled(serviceID)

	return next, nil
}

// MarkServed completes an entry and shifts the remaining waiting
// entries forward.
func (c *Coordinator) MarkServed(ctx context.Context, entryID string, notes string) (*models.QueueEntry, error) {
	entry, err := c.terminate(ctx, entryID, models.StatusServed, notes)
	if err != nil {
		return nil, err
	}

	c.notify(ctx, entry, models.NotifyServed, "Service complete",
		"Your service has been completed. Thank you for visiting!")
	c.publish(events.EventEntryServed, entry)
	metrics.IncServed(entry.ServiceID)
	if entry.ServedAt != nil {
		metrics.ObserveWait(entry.ServedAt.Sub(entry.JoinedAt).Minutes())
	}

	return entry, nil
}

// RemoveFromQueue removes an entry for the given terminal reason
// (cancelled or no_show) and shifts the remaining entries forward.
func (c *Coordinator) RemoveFromQueue(ctx context.Context, entryID, reason, notes string) (*models.QueueEntry, error) {
	if reason != models.StatusCancelled && reason != models.StatusNoShow {
		return nil, fmt.Errorf("%w: removal reason %q", ErrInvalidTransition, reason)
	}

	entry, err := c.terminate(ctx, entryID, reason, notes)
	if err != nil {
		return nil, err
	}

	message := "Your queue entry has been cancelled."
	eventType := events.EventEntryCancelled
	if reason == models.StatusNoShow {
		message = "You were marked as no-show and removed from the queue."
		eventType = events.EventEntryNoShow
	}
	c.notify(ctx, entry, models.NotifyCancelled, "Queue update", message)
	c.publish(eventType, entry)
	metrics.IncRemoved(entry.ServiceID, reason)

	return entry, nil
}

// CancelOwn cancels an entry on behalf of the customer who owns it.
func (c *Coordinator) CancelOwn(ctx context.Context, entryID string, userID int64) (*models.QueueEntry, error) {
	entry, err := c.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, ErrNotAuthorized
	}
	if !entry.IsActive() {
		return nil, ErrInvalidTransition
	}

	return c.RemoveFromQueue(ctx, entryID, models.StatusCancelled, "Cancelled by customer")
}

// GetPosition returns the live position view for an entry, preferring
// the position cache when warm.
func (c *Coordinator) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	if c.cache != nil {
		if pos, err := c.cache.GetPosition(ctx, entryID); err == nil && pos != nil {
			return pos, nil
		}
	}

	entry, err := c.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	active, err := c.store.ListEntries(ctx, entry.ServiceID, models.StatusWaiting, models.StatusCalled)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}

	service, err := c.getService(ctx, entry.ServiceID)
	if err != nil {
		return nil, err
	}

	rank := Position(active, entry.QueueNumber)
	pos := &models.QueuePosition{
		Position:             rank,
		EstimatedWaitMinutes: Estimate(rank-1, nil, c.avgMinutes(service)),
		TotalInQueue:         len(active),
		IsNext:               rank == 1,
	}
	if rank == 0 {
		pos.EstimatedWaitMinutes = 0
	}

	if c.cache != nil && rank > 0 {
		if err := c.cache.SetPosition(ctx, entryID, pos, c.cfg.PositionTTL); err != nil {
			c.logger.Warn().Err(err).Str("entry_id", entryID).Msg("position cache set failed")
		}
	}
	return pos, nil
}

// GetStats aggregates the queue state of one service.
func (c *Coordinator) GetStats(ctx context.Context, serviceID int64) (*models.QueueStats, error) {
	service, err := c.getService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	stats, err := c.store.ServiceStats(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("service stats: %w", err)
	}
	stats.NextQueueNumber = service.QueueNumberCounter + 1
	return stats, nil
}

// ListUserEntries returns a customer's entries, newest join first.
func (c *Coordinator) ListUserEntries(ctx context.Context, userID int64, statuses ...string) ([]*models.QueueEntry, error) {
	entries, err := c.store.ListEntriesByUser(ctx, userID, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list user entries: %w", err)
	}
	return entries, nil
}

// ListUserNotifications returns a customer's recent notifications.
func (c *Coordinator) ListUserNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	notifications, err := c.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// ListOpenServices returns the services currently accepting joins.
func (c *Coordinator) ListOpenServices(ctx context.Context) ([]*models.Service, error) {
	services, err := c.store.ListServices(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list open services: %w", err)
	}
	return services, nil
}

// LookupByQR resolves an entry from its QR token, used at serve time.
func (c *Coordinator) LookupByQR(ctx context.Context, qrCode string) (*models.QueueEntry, error) {
	entry, err := c.store.GetEntryByQR(ctx, qrCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("lookup by qr: %w", err)
	}
	return entry, nil
}

// RemindUpcoming notifies the customers at the head of the line about
// their position. Best effort, used by the periodic reminder sweep.
func (c *Coordinator) RemindUpcoming(ctx context.Context, serviceID int64) error {
	waiting, err := c.store.ListEntries(ctx, serviceID, models.StatusWaiting)
	if err != nil {
		return fmt.Errorf("list waiting entries: %w", err)
	}

	service, err := c.getService(ctx, serviceID)
	if err != nil {
		return err
	}

	sorted := SortByQueueNumber(waiting)
	for i, entry := range sorted {
		position := i + 1
		if position > c.cfg.ReminderPositions {
			break
		}
		estimate := position * c.avgMinutes(service)
		c.notify(ctx, entry, models.NotifyReminder, "Queue reminder",
			fmt.Sprintf("You are #%d in line. Estimated wait time: %d minutes.", position, estimate))
		c.publish(events.EventEntryReminded, entry)
	}
	return nil
}

// terminate moves an entry to a terminal status and recomputes the
// positions of the entries left behind.
func (c *Coordinator) terminate(ctx context.Context, entryID, toStatus, notes string) (*models.QueueEntry, error) {
	entry, err := c.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	unlock := c.lockService(entry.ServiceID)
	defer unlock()

	// Reload under the lock so the version check sees the latest write.
	entry, err = c.getEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := Transition(entry, toStatus, now, notes); err != nil {
		return nil, err
	}
	if err := c.updateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, entryID); err != nil {
			c.logger.Warn().Err(err).Str("entry_id", entryID).Msg("position cache invalidate failed")
		}
	}

	if err := c.recomputePositions(ctx, entry.ServiceID); err != nil {
		c.logger.Error().Err(err).Int64("service_id", entry.ServiceID).Msg("recompute positions failed")
	}

	return entry, nil
}

// recomputePositions refreshes position and wait estimate for every
// waiting entry of the service. Runs after each terminal transition;
// calls do not shrink the active set, so they skip it.
func (c *Coordinator) recomputePositions(ctx context.Context, serviceID int64) error {
	service, err := c.getService(ctx, serviceID)
	if err != nil {
		return err
	}

	active, err := c.store.ListEntries(ctx, serviceID, models.StatusWaiting, models.StatusCalled)
	if err != nil {
		return fmt.Errorf("list active entries: %w", err)
	}
	metrics.SetQueueDepth(serviceID, len(active))

	for _, entry := range active {
		if entry.Status != models.StatusWaiting {
			continue
		}

		rank := Position(active, entry.QueueNumber)
		estimate := Estimate(rank-1, nil, c.avgMinutes(service))
		if entry.Position == rank && entry.EstimatedWaitMinutes == estimate {
			continue
		}

		entry.Position = rank
		entry.EstimatedWaitMinutes = estimate
		entry.UpdatedAt = time.Now().UTC()
		if err := c.updateEntry(ctx, entry); err != nil {
			c.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("persist recomputed position failed")
			continue
		}
		c.cachePosition(ctx, entry, len(active))
	}
	return nil
}

func (c *Coordinator) cachePosition(ctx context.Context, entry *models.QueueEntry, totalActive int) {
	if c.cache == nil {
		return
	}
	pos := &models.QueuePosition{
		Position:             entry.Position,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		TotalInQueue:         totalActive,
		IsNext:               entry.Position == 1,
	}
	if err := c.cache.SetPosition(ctx, entry.ID, pos, c.cfg.PositionTTL); err != nil {
		c.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("position cache set failed")
	}
}

// fetchSignal asks the external predictor for a wait signal, bounded by
// the configured timeout. Any failure means no signal.
func (c *Coordinator) fetchSignal(ctx context.Context) *float64 {
	if c.predictor == nil {
		return nil
	}

	predictCtx, cancel := context.WithTimeout(ctx, c.cfg.PredictorTimeout)
	defer cancel()

	prediction, err := c.predictor.Predict(predictCtx)
	if err != nil || prediction == nil {
		if err != nil {
			c.logger.Debug().Err(err).Msg("wait predictor unavailable, using queue-length estimate")
		}
		return nil
	}
	return &prediction.EstimatedMinutes
}

func (c *Coordinator) getService(ctx context.Context, serviceID int64) (*models.Service, error) {
	service, err := c.store.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service %d: %w", serviceID, err)
	}
	return service, nil
}

func (c *Coordinator) getEntry(ctx context.Context, entryID string) (*models.QueueEntry, error) {
	entry, err := c.store.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	return entry, nil
}

func (c *Coordinator) updateEntry(ctx context.Context, entry *models.QueueEntry) error {
	if err := c.store.UpdateEntry(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			return ErrConflict
		}
		return fmt.Errorf("update entry %s: %w", entry.ID, err)
	}
	return nil
}

func (c *Coordinator) notify(ctx context.Context, entry *models.QueueEntry, kind, title, message string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, entry.UserID, entry.ID, kind, title, message); err != nil {
		c.logger.Warn().Err(err).Str("entry_id", entry.ID).Str("kind", kind).Msg("notify failed")
	}
}

func (c *Coordinator) publish(eventType string, entry *models.QueueEntry) {
	if c.eventBus == nil {
		return
	}

	payload := events.EntryEventPayload{
		EntryID:              entry.ID,
		ServiceID:            entry.ServiceID,
		UserID:               entry.UserID,
		QueueNumber:          entry.QueueNumber,
		Status:               entry.Status,
		Position:             entry.Position,
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		Notes:                entry.Notes,
	}
	if err := c.eventBus.PublishJSON(eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Str("entry_id", entry.ID).Msg("publish event error")
	}
}

func (c *Coordinator) avgMinutes(service *models.Service) int {
	if service.AvgServiceMinutes > 0 {
		return service.AvgServiceMinutes
	}
	return c.cfg.AvgServiceMinutes
}

// newQRCode builds the serve-time lookup token for an entry.
func newQRCode(now time.Time) string {
	return fmt.Sprintf("QR%d%04d", now.UnixMilli(), rand.IntN(10000))
}
