package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"turnero/internal/config"
	"turnero/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisPositionCache keeps per-entry queue positions in Redis so
// position reads do not hit sqlite.
type RedisPositionCache struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client from the configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisPositionCache(client *redis.Client) *RedisPositionCache {
	return &RedisPositionCache{client: client}
}

func positionKey(entryID string) string {
	return "entry_position:" + entryID
}

func (r *RedisPositionCache) SetPosition(ctx context.Context, entryID string, pos *models.QueuePosition, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	if err := r.client.Set(ctx, positionKey(entryID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set position in redis: %w", err)
	}
	return nil
}

func (r *RedisPositionCache) GetPosition(ctx context.Context, entryID string) (*models.QueuePosition, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, positionKey(entryID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position from redis: %w", err)
	}

	var pos models.QueuePosition
	if err := json.Unmarshal([]byte(val), &pos); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return &pos, nil
}

func (r *RedisPositionCache) Invalidate(ctx context.Context, entryID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, positionKey(entryID)).Err(); err != nil {
		return fmt.Errorf("failed to delete position from redis: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
