package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/wconnect"
)

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) wconnect.Store {
	return &RedisStore{
		client: client,
		prefix: "wconnect:session:",
	}
}

// Save stores a session record in Redis with an expiration
func (s *RedisStore) Save(ctx context.Context, clientID, record string, ttl time.Duration) error {
	key := s.prefix + clientID

	if err := s.client.Set(ctx, key, record, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session record: %w", err)
	}

	return nil
}

// Load retrieves a session record from Redis
func (s *RedisStore) Load(ctx context.Context, clientID string) (string, error) {
	key := s.prefix + clientID

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", wconnect.ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session record: %w", err)
	}

	return val, nil
}
