package repository

import (
	"context"
	"sync"
	"time"

	"turnero/internal/models"
)

// MemoryPositionCache is the in-process fallback used when Redis is
// unavailable or not configured.
type MemoryPositionCache struct {
	positions sync.Map
}

type cachedPosition struct {
	pos       *models.QueuePosition
	expiresAt time.Time
}

func NewMemoryPositionCache() *MemoryPositionCache {
	return &MemoryPositionCache{}
}

func (m *MemoryPositionCache) SetPosition(ctx context.Context, entryID string, pos *models.QueuePosition, ttl time.Duration) error {
	m.positions.Store(entryID, &cachedPosition{
		pos:       pos,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (m *MemoryPositionCache) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	val, ok := m.positions.Load(entryID)
	if !ok {
		return nil, nil
	}
	cached := val.(*cachedPosition)
	if time.Now().After(cached.expiresAt) {
		m.positions.Delete(entryID)
		return nil, nil
	}
	return cached.pos, nil
}

func (m *MemoryPositionCache) Invalidate(ctx context.Context, entryID string) error {
	m.positions.Delete(entryID)
	return nil
}
