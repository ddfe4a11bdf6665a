package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKey is the key the current reading is stored under
const DefaultKey = "hrrelay:bpm"

// Store implements ports.Store using a single Redis string key
type Store struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Key returns the Redis key backing the store
func (s *Store) Key() string {
	return s.key
}

// Read returns the stored reading (ports.Store interface)
func (s *Store) Read(ctx context.Context) (string, error) {
	value, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ports.ErrNotFound, s.key)
		}
		return "", fmt.Errorf("failed to get reading: %w", err)
	}

	return value, nil
}

// Write replaces the stored reading (ports.Store interface).
// The key never expires.
func (s *Store) Write(ctx context.Context, value string) error {
	if err := s.client.Set(ctx, s.key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}

	s.logger.Debug("reading saved",
		zap.String("key", s.key),
		zap.String("value", value))

	return nil
}
