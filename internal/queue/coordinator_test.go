package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Service), args.Error(1)
}

func (m *mockStore) ListServices(ctx context.Context, openOnly bool) ([]*models.Service, error) {
	args := m.Called(ctx, openOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Service), args.Error(1)
}

func (m *mockStore) IncrementQueueCounter(ctx context.Context, serviceID int64) (int64, error) {
	args := m.Called(ctx, serviceID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListEntries(ctx context.Context, serviceID int64, statuses ...string) ([]*models.QueueEntry, error) {
	args := m.Called(ctx, serviceID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueueEntry), args.Error(1)
}

func (m *mockStore) ListEntriesByUser(ctx context.Context, userID int64, statuses ...string) ([]*models.QueueEntry, error) {
	args := m.Called(ctx, userID, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.QueueEntry), args.Error(1)
}

func (m *mockStore) GetEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}

func (m *mockStore) GetEntryByQR(ctx context.Context, qrCode string) (*models.QueueEntry, error) {
	args := m.Called(ctx, qrCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}

func (m *mockStore) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) UpdateEntry(ctx context.Context, entry *models.QueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) ServiceStats(ctx context.Context, serviceID int64) (*models.QueueStats, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueStats), args.Error(1)
}

func (m *mockStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *mockStore) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID int64, entryID, kind, title, message string) error {
	args := m.Called(ctx, userID, entryID, kind, title, message)
	return args.Error(0)
}

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) Predict(ctx context.Context) (*domain.Prediction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Prediction), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) SetPosition(ctx context.Context, entryID string, pos *models.QueuePosition, ttl time.Duration) error {
	args := m.Called(ctx, entryID, pos, ttl)
	return args.Error(0)
}

func (m *mockCache) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueuePosition), args.Error(1)
}

func (m *mockCache) Invalidate(ctx context.Context, entryID string) error {
	args := m.Called(ctx, entryID)
	return args.Error(0)
}

type mockBus struct {
	mock.Mock
}

func (m *mockBus) PublishJSON(eventType string, payload interface{}) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}

func testService() *models.Service {
	return &models.Service{
		ID:                 1,
		EstablishmentID:    1,
		Name:               "Consultas",
		MaxCapacity:        10,
		IsOpen:             true,
		QueueNumberCounter: 4,
		AvgServiceMinutes:  15,
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func activeStatuses() []string {
	return []string{models.StatusWaiting, models.StatusCalled}
}

func TestJoin_Success(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	notifier := new(mockNotifier)
	predictor := new(mockPredictor)
	cache := new(mockCache)
	bus := new(mockBus)

	service := testService()
	existing := &models.QueueEntry{ID: "e0", ServiceID: 1, UserID: 50, QueueNumber: 4, Status: models.StatusWaiting}

	store.On("GetService", ctx, int64(1)).Return(service, nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{existing}, nil)
	store.On("IncrementQueueCounter", ctx, int64(1)).Return(int64(5), nil)
	store.On("CreateEntry", ctx, mock.Anything).Return(nil)
	predictor.On("Predict", mock.Anything).Return(&domain.Prediction{People: 8, EstimatedMinutes: 40}, nil)
	cache.On("SetPosition", ctx, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, int64(100), mock.Anything, models.NotifyJoined, mock.Anything, mock.Anything).Return(nil)
	bus.On("PublishJSON", "entry_joined", mock.Anything).Return(nil)

	c := NewCoordinator(store, notifier, predictor, cache, bus, Config{}, testLogger())

	entry, err := c.Join(ctx, 1, 100, "walk-in")
	require.NoError(t, err)

	assert.Equal(t, int64(5), entry.QueueNumber)
	assert.Equal(t, models.StatusWaiting, entry.Status)
	assert.Equal(t, 2, entry.Position)
	// 40*0.7 + (1*15)*0.3 = 32.5, rounded up
	assert.Equal(t, 33, entry.EstimatedWaitMinutes)
	assert.True(t, strings.HasPrefix(entry.QRCode, "QR"))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, int64(1), entry.Version)

	store.AssertExpectations(t)
	notifier.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestJoin_ServiceClosed(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	service := testService()
	service.IsOpen = false

	store.On("GetService", ctx, int64(1)).Return(service, nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	_, err := c.Join(ctx, 1, 100, "")
	assert.ErrorIs(t, err, ErrServiceClosed)
	store.AssertNotCalled(t, "IncrementQueueCounter", mock.Anything, mock.Anything)
}

func TestJoin_ServiceNotFound(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("GetService", ctx, int64(9)).Return(nil, domain.ErrNotFound)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	_, err := c.Join(ctx, 9, 100, "")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestJoin_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	existing := &models.QueueEntry{ID: "e0", UserID: 100, QueueNumber: 4, Status: models.StatusCalled}
	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{existing}, nil)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	_, err := c.Join(ctx, 1, 100, "")
	assert.ErrorIs(t, err, ErrDuplicateMembership)
}

func TestJoin_AtCapacity(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	service := testService()
	service.MaxCapacity = 1
	existing := &models.QueueEntry{ID: "e0", UserID: 50, QueueNumber: 4, Status: models.StatusWaiting}

	store.On("GetService", ctx, int64(1)).Return(service, nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{existing}, nil)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	_, err := c.Join(ctx, 1, 100, "")
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestJoin_StoreRaceMapsToBusinessError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		storeErr error
		want     error
	}{
		{"capacity race", domain.ErrCapacityExceeded, ErrAtCapacity},
		{"duplicate race", domain.ErrDuplicateActive, ErrDuplicateMembership},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			store.On("GetService", ctx, int64(1)).Return(testService(), nil)
			store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)
			store.On("IncrementQueueCounter", ctx, int64(1)).Return(int64(5), nil)
			store.On("CreateEntry", ctx, mock.Anything).Return(tt.storeErr)

			c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

			_, err := c.Join(ctx, 1, 100, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJoin_PredictorFailureFallsBack(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	predictor := new(mockPredictor)

	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)
	store.On("IncrementQueueCounter", ctx, int64(1)).Return(int64(5), nil)
	store.On("CreateEntry", ctx, mock.Anything).Return(nil)
	predictor.On("Predict", mock.Anything).Return(nil, errors.New("connection refused"))

	c := NewCoordinator(store, nil, predictor, nil, nil, Config{}, testLogger())

	entry, err := c.Join(ctx, 1, 100, "")
	require.NoError(t, err)
	// Empty queue without a signal floors to the minimum
	assert.Equal(t, 5, entry.EstimatedWaitMinutes)
}

// slowPredictor blocks until its context is cancelled.
type slowPredictor struct{}

func (slowPredictor) Predict(ctx context.Context) (*domain.Prediction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJoin_PredictorTimeoutDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)
	store.On("IncrementQueueCounter", ctx, int64(1)).Return(int64(5), nil)
	store.On("CreateEntry", ctx, mock.Anything).Return(nil)

	c := NewCoordinator(store, nil, slowPredictor{}, nil, nil, Config{
		PredictorTimeout: 20 * time.Millisecond,
	}, testLogger())

	start := time.Now()
	entry, err := c.Join(ctx, 1, 100, "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 5, entry.EstimatedWaitMinutes)
}

func TestCallNext(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	notifier := new(mockNotifier)
	bus := new(mockBus)

	waiting := []*models.QueueEntry{
		{ID: "e9", ServiceID: 1, UserID: 109, QueueNumber: 9, Status: models.StatusWaiting, Version: 1},
		{ID: "e7", ServiceID: 1, UserID: 107, QueueNumber: 7, Status: models.StatusWaiting, Version: 1},
	}

	store.On("ListEntries", ctx, int64(1), []string{models.StatusWaiting}).Return(waiting, nil)
	store.On("UpdateEntry", ctx, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, int64(107), "e7", models.NotifyCalled, mock.Anything, mock.Anything).Return(nil)
	bus.On("PublishJSON", "entry_called", mock.Anything).Return(nil)

	c := NewCoordinator(store, notifier, nil, nil, bus, Config{}, testLogger())

	entry, err := c.CallNext(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "e7", entry.ID, "lowest queue number wins")
	assert.Equal(t, models.StatusCalled, entry.Status)
	assert.NotNil(t, entry.CalledAt)

	notifier.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestCallNext_EmptyQueue(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("ListEntries", ctx, int64(1), []string{models.StatusWaiting}).Return([]*models.QueueEntry{}, nil)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	entry, err := c.CallNext(ctx, 1)
	assert.NoError(t, err)
	assert.Nil(t, entry)
	store.AssertNotCalled(t, "UpdateEntry", mock.Anything, mock.Anything)
}

func TestMarkServed_RecomputesPositions(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	notifier := new(mockNotifier)
	cache := new(mockCache)
	bus := new(mockBus)

	served := &models.QueueEntry{
		ID: "e7", ServiceID: 1, UserID: 107, QueueNumber: 7,
		Status: models.StatusCalled, Position: 1, Version: 2,
		JoinedAt: time.Now().Add(-20 * time.Minute),
	}
	calledAt := time.Now().Add(-5 * time.Minute)
	served.CalledAt = &calledAt

	behind := &models.QueueEntry{
		ID: "e9", ServiceID: 1, UserID: 109, QueueNumber: 9,
		Status: models.StatusWaiting, Position: 2, EstimatedWaitMinutes: 15, Version: 1,
	}

	store.On("GetEntry", ctx, "e7").Return(served, nil)
	store.On("UpdateEntry", ctx, mock.Anything).Return(nil)
	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{behind}, nil)
	cache.On("Invalidate", ctx, "e7").Return(nil)
	cache.On("SetPosition", ctx, "e9", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, int64(107), "e7", models.NotifyServed, mock.Anything, mock.Anything).Return(nil)
	bus.On("PublishJSON", "entry_served", mock.Anything).Return(nil)

	c := NewCoordinator(store, notifier, nil, cache, bus, Config{}, testLogger())

	entry, err := c.MarkServed(ctx, "e7", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusServed, entry.Status)
	assert.NotNil(t, entry.ServedAt)

	// The entry behind moved up and its estimate shrank to the floor
	assert.Equal(t, 1, behind.Position)
	assert.Equal(t, 5, behind.EstimatedWaitMinutes)

	cache.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRemoveFromQueue_InvalidReason(t *testing.T) {
	c := NewCoordinator(new(mockStore), nil, nil, nil, nil, Config{}, testLogger())

	_, err := c.RemoveFromQueue(context.Background(), "e1", models.StatusServed, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRemoveFromQueue_NoShow(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	notifier := new(mockNotifier)
	bus := new(mockBus)

	entry := &models.QueueEntry{
		ID: "e7", ServiceID: 1, UserID: 107, QueueNumber: 7,
		Status: models.StatusCalled, Version: 1,
	}

	store.On("GetEntry", ctx, "e7").Return(entry, nil)
	store.On("UpdateEntry", ctx, mock.Anything).Return(nil)
	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)
	notifier.On("Notify", ctx, int64(107), "e7", models.NotifyCancelled, mock.Anything, mock.Anything).Return(nil)
	bus.On("PublishJSON", "entry_no_show", mock.Anything).Return(nil)

	c := NewCoordinator(store, notifier, nil, nil, bus, Config{}, testLogger())

	removed, err := c.RemoveFromQueue(ctx, "e7", models.StatusNoShow, "did not appear")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoShow, removed.Status)
	assert.Equal(t, "did not appear", removed.Notes)
	bus.AssertExpectations(t)
}

func TestCancelOwn(t *testing.T) {
	ctx := context.Background()

	t.Run("WrongUser", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetEntry", ctx, "e1").Return(&models.QueueEntry{
			ID: "e1", ServiceID: 1, UserID: 1, Status: models.StatusWaiting,
		}, nil)

		c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

		_, err := c.CancelOwn(ctx, "e1", 2)
		assert.ErrorIs(t, err, ErrNotAuthorized)
		store.AssertNotCalled(t, "UpdateEntry", mock.Anything, mock.Anything)
	})

	t.Run("AlreadyTerminal", func(t *testing.T) {
		store := new(mockStore)
		store.On("GetEntry", ctx, "e1").Return(&models.QueueEntry{
			ID: "e1", ServiceID: 1, UserID: 1, Status: models.StatusServed,
		}, nil)

		c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

		_, err := c.CancelOwn(ctx, "e1", 1)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("OwnerCancels", func(t *testing.T) {
		store := new(mockStore)
		entry := &models.QueueEntry{
			ID: "e1", ServiceID: 1, UserID: 1, QueueNumber: 3,
			Status: models.StatusWaiting, Version: 1,
		}
		store.On("GetEntry", ctx, "e1").Return(entry, nil)
		store.On("UpdateEntry", ctx, mock.Anything).Return(nil)
		store.On("GetService", ctx, int64(1)).Return(testService(), nil)
		store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)

		c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

		cancelled, err := c.CancelOwn(ctx, "e1", 1)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.Equal(t, "Cancelled by customer", cancelled.Notes)
	})
}

func TestGetPosition(t *testing.T) {
	ctx := context.Background()

	t.Run("CacheHit", func(t *testing.T) {
		cache := new(mockCache)
		store := new(mockStore)
		cached := &models.QueuePosition{Position: 3, EstimatedWaitMinutes: 30, TotalInQueue: 5}
		cache.On("GetPosition", ctx, "e1").Return(cached, nil)

		c := NewCoordinator(store, nil, nil, cache, nil, Config{}, testLogger())

		pos, err := c.GetPosition(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, cached, pos)
		store.AssertNotCalled(t, "GetEntry", mock.Anything, mock.Anything)
	})

	t.Run("CacheMissComputesRank", func(t *testing.T) {
		cache := new(mockCache)
		store := new(mockStore)

		entry := &models.QueueEntry{ID: "e7", ServiceID: 1, QueueNumber: 7, Status: models.StatusWaiting}
		active := []*models.QueueEntry{
			{ID: "e5", QueueNumber: 5, Status: models.StatusCalled},
			entry,
			{ID: "e9", QueueNumber: 9, Status: models.StatusWaiting},
		}

		cache.On("GetPosition", ctx, "e7").Return(nil, nil)
		cache.On("SetPosition", ctx, "e7", mock.Anything, mock.Anything).Return(nil)
		store.On("GetEntry", ctx, "e7").Return(entry, nil)
		store.On("ListEntries", ctx, int64(1), activeStatuses()).Return(active, nil)
		store.On("GetService", ctx, int64(1)).Return(testService(), nil)

		c := NewCoordinator(store, nil, nil, cache, nil, Config{}, testLogger())

		pos, err := c.GetPosition(ctx, "e7")
		require.NoError(t, err)
		assert.Equal(t, 2, pos.Position)
		assert.Equal(t, 15, pos.EstimatedWaitMinutes)
		assert.Equal(t, 3, pos.TotalInQueue)
		assert.False(t, pos.IsNext)
		cache.AssertExpectations(t)
	})

	t.Run("TerminalEntryHasNoPosition", func(t *testing.T) {
		cache := new(mockCache)
		store := new(mockStore)

		entry := &models.QueueEntry{ID: "e7", ServiceID: 1, QueueNumber: 7, Status: models.StatusServed}

		cache.On("GetPosition", ctx, "e7").Return(nil, nil)
		store.On("GetEntry", ctx, "e7").Return(entry, nil)
		store.On("ListEntries", ctx, int64(1), activeStatuses()).Return([]*models.QueueEntry{}, nil)
		store.On("GetService", ctx, int64(1)).Return(testService(), nil)

		c := NewCoordinator(store, nil, nil, cache, nil, Config{}, testLogger())

		pos, err := c.GetPosition(ctx, "e7")
		require.NoError(t, err)
		assert.Equal(t, 0, pos.Position)
		assert.Equal(t, 0, pos.EstimatedWaitMinutes)
		cache.AssertNotCalled(t, "SetPosition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownEntry", func(t *testing.T) {
		cache := new(mockCache)
		store := new(mockStore)
		cache.On("GetPosition", ctx, "nope").Return(nil, nil)
		store.On("GetEntry", ctx, "nope").Return(nil, domain.ErrNotFound)

		c := NewCoordinator(store, nil, nil, cache, nil, Config{}, testLogger())

		_, err := c.GetPosition(ctx, "nope")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	service := testService()
	service.QueueNumberCounter = 7

	store.On("GetService", ctx, int64(1)).Return(service, nil)
	store.On("ServiceStats", ctx, int64(1)).Return(&models.QueueStats{
		TotalWaiting: 3, TotalCalled: 1, TotalServed: 10, AverageWaitMinutes: 18,
	}, nil)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	stats, err := c.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalWaiting)
	assert.Equal(t, int64(8), stats.NextQueueNumber)
}

func TestLookupByQR(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)

	entry := &models.QueueEntry{ID: "e1", QRCode: "QR123"}
	store.On("GetEntryByQR", ctx, "QR123").Return(entry, nil)
	store.On("GetEntryByQR", ctx, "QRnope").Return(nil, domain.ErrNotFound)

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	got, err := c.LookupByQR(ctx, "QR123")
	require.NoError(t, err)
	assert.Equal(t, "e1", got.ID)

	_, err = c.LookupByQR(ctx, "QRnope")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRemindUpcoming(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	notifier := new(mockNotifier)
	bus := new(mockBus)

	waiting := []*models.QueueEntry{
		{ID: "e3", ServiceID: 1, UserID: 103, QueueNumber: 3, Status: models.StatusWaiting},
		{ID: "e1", ServiceID: 1, UserID: 101, QueueNumber: 1, Status: models.StatusWaiting},
		{ID: "e2", ServiceID: 1, UserID: 102, QueueNumber: 2, Status: models.StatusWaiting},
	}

	store.On("ListEntries", ctx, int64(1), []string{models.StatusWaiting}).Return(waiting, nil)
	store.On("GetService", ctx, int64(1)).Return(testService(), nil)
	notifier.On("Notify", ctx, int64(101), "e1", models.NotifyReminder, mock.Anything,
		"You are #1 in line. Estimated wait time: 15 minutes.").Return(nil)
	notifier.On("Notify", ctx, int64(102), "e2", models.NotifyReminder, mock.Anything,
		"You are #2 in line. Estimated wait time: 30 minutes.").Return(nil)
	bus.On("PublishJSON", "entry_reminded", mock.Anything).Return(nil)

	c := NewCoordinator(store, notifier, nil, nil, bus, Config{}, testLogger())

	require.NoError(t, c.RemindUpcoming(ctx, 1))

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "Notify", 2)
}

// memStore is a minimal in-memory Store for exercising the coordinator
// under concurrency.
type memStore struct {
	mu      sync.Mutex
	service *models.Service
	entries []*models.QueueEntry
}

func (s *memStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil || s.service.ID != id {
		return nil, domain.ErrNotFound
	}
	cp := *s.service
	return &cp, nil
}

func (s *memStore) ListServices(ctx context.Context, openOnly bool) ([]*models.Service, error) {
	return []*models.Service{s.service}, nil
}

func (s *memStore) IncrementQueueCounter(ctx context.Context, serviceID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.service.QueueNumberCounter++
	return s.service.QueueNumberCounter, nil
}

func (s *memStore) ListEntries(ctx context.Context, serviceID int64, statuses ...string) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.ServiceID != serviceID {
			continue
		}
		if len(statuses) == 0 {
			out = append(out, e)
			continue
		}
		for _, st := range statuses {
			if e.Status == st {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) ListEntriesByUser(ctx context.Context, userID int64, statuses ...string) ([]*models.QueueEntry, error) {
	return nil, nil
}

func (s *memStore) GetEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *memStore) GetEntryByQR(ctx context.Context, qrCode string) (*models.QueueEntry, error) {
	return nil, domain.ErrNotFound
}

func (s *memStore) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, e := range s.entries {
		if e.ServiceID != entry.ServiceID || !e.IsActive() {
			continue
		}
		if e.UserID == entry.UserID {
			return domain.ErrDuplicateActive
		}
		active++
	}
	if active >= s.service.MaxCapacity {
		return domain.ErrCapacityExceeded
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) UpdateEntry(ctx context.Context, entry *models.QueueEntry) error {
	return nil
}

func (s *memStore) ServiceStats(ctx context.Context, serviceID int64) (*models.QueueStats, error) {
	return &models.QueueStats{}, nil
}

func (s *memStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return nil
}

func (s *memStore) ListNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	return nil, nil
}

func TestJoin_ConcurrentRespectsCapacity(t *testing.T) {
	store := &memStore{
		service: &models.Service{ID: 1, Name: "Consultas", MaxCapacity: 5, IsOpen: true, AvgServiceMinutes: 15},
	}

	c := NewCoordinator(store, nil, nil, nil, nil, Config{}, testLogger())

	const numGoroutines = 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(userID int64) {
			defer wg.Done()
			_, err := c.Join(context.Background(), 1, userID, "")
			results <- err
		}(int64(i + 1))
	}

	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		} else {
			require.ErrorIs(t, err, ErrAtCapacity)
		}
	}
	assert.Equal(t, 5, success)

	// Every admitted entry got a distinct queue number
	seen := make(map[int64]bool)
	for _, e := range store.entries {
		if seen[e.QueueNumber] {
			t.Fatalf("duplicate queue number %d", e.QueueNumber)
		}
		seen[e.QueueNumber] = true
	}
}

func TestNewQRCode_Format(t *testing.T) {
	now := time.Now()
	code := newQRCode(now)

	assert.True(t, strings.HasPrefix(code, "QR"))
	assert.Equal(t, len(fmt.Sprintf("QR%d", now.UnixMilli()))+4, len(code))
}
