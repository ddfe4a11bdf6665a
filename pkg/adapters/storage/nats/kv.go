package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	// DefaultBucket is the KV bucket holding the reading
	DefaultBucket = "hrrelay"

	// DefaultKey is the key the current reading is stored under
	DefaultKey = "bpm"
)

// Store implements ports.Store on a single JetStream key-value entry
type Store struct {
	kv     jetstream.KeyValue
	key    string
	logger *zap.Logger
}

// OpenBucket creates the bucket if needed and returns it.
// Only the latest revision is kept.
func OpenBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "heart-rate relay reading",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open KV bucket %s: %w", bucket, err)
	}

	return kv, nil
}

// NewStore creates a new KV-backed store
func NewStore(kv jetstream.KeyValue, key string, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		kv:     kv,
		key:    key,
		logger: logger,
	}
}

// Key returns the KV key backing the store
func (s *Store) Key() string {
	return s.key
}

// Read returns the stored reading (ports.Store interface)
func (s *Store) Read(ctx context.Context) (string, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: %s/%s", ports.ErrNotFound, s.kv.Bucket(), s.key)
		}
		return "", fmt.Errorf("failed to get reading: %w", err)
	}

	return string(entry.Value()), nil
}

// Write replaces the stored reading (ports.Store interface)
func (s *Store) Write(ctx context.Context, value string) error {
	revision, err := s.kv.Put(ctx, s.key, []byte(value))
	if err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}

	s.logger.Debug("reading saved",
		zap.String("bucket", s.kv.Bucket()),
		zap.String("key", s.key),
		zap.Uint64("revision", revision),
		zap.String("value", value))

	return nil
}

// Watch reports changes to the reading key (ports.StoreWatcher interface).
// Deletes and purges are reported as an empty value.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	kw, err := s.kv.Watch(ctx, s.key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s/%s: %w", s.kv.Bucket(), s.key, err)
	}

	changes := make(chan string, 1)
	go func() {
		defer close(changes)
		defer func() {
			if err := kw.Stop(); err != nil {
				s.logger.Debug("failed to stop KV watcher", zap.Error(err))
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-kw.Updates():
				if !ok {
					return
				}
				// nil marks the end of initial values
				if entry == nil {
					continue
				}

				var value string
				if entry.Operation() == jetstream.KeyValuePut {
					value = string(entry.Value())
				}
				s.logger.Debug("reading changed in KV",
					zap.String("key", entry.Key()),
					zap.Uint64("revision", entry.Revision()))

				// keep only the newest pending value
				select {
				case changes <- value:
				default:
					select {
					case <-changes:
					default:
					}
					changes <- value
				}
			}
		}
	}()

	return changes, nil
}
