package repository

import (
	"context"
	"sync"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
)

// FailoverPositionCache serves from the primary cache and silently
// degrades to the fallback when the primary errors. It retries the
// primary once a minute.
type FailoverPositionCache struct {
	primary  domain.PositionCache
	fallback domain.PositionCache
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
}

func NewFailoverPositionCache(primary, fallback domain.PositionCache, logger *zerolog.Logger) *FailoverPositionCache {
	return &FailoverPositionCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (f *FailoverPositionCache) usePrimary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isDown {
		return true
	}
	if time.Since(f.lastCheck) > time.Minute {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *FailoverPositionCache) markDown(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isDown {
		f.logger.Error().Err(err).Msg("Primary position cache failed, falling back to memory")
	}
	f.isDown = true
	f.lastCheck = time.Now()
}

func (f *FailoverPositionCache) markUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.isDown {
		f.logger.Info().Msg("Primary position cache recovered")
	}
	f.isDown = false
}

func (f *FailoverPositionCache) SetPosition(ctx context.Context, entryID string, pos *models.QueuePosition, ttl time.Duration) error {
	if f.usePrimary() {
		err := f.primary.SetPosition(ctx, entryID, pos, ttl)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.SetPosition(ctx, entryID, pos, ttl)
}

func (f *FailoverPositionCache) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	if f.usePrimary() {
		pos, err := f.primary.GetPosition(ctx, entryID)
		if err == nil {
			f.markUp()
			return pos, nil
		}
		f.markDown(err)
	}
	return f.fallback.GetPosition(ctx, entryID)
}

func (f *FailoverPositionCache) Invalidate(ctx context.Context, entryID string) error {
	if f.usePrimary() {
		err := f.primary.Invalidate(ctx, entryID)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	return f.fallback.Invalidate(ctx, entryID)
}
