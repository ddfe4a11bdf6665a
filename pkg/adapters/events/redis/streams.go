package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// streamMaxLen caps each stream; only the latest readings matter
const streamMaxLen = 100

// StreamsEventBus implements EventBus using Redis Streams.
// Every subscriber reads the stream independently (plain XREAD, no consumer
// group) so each one sees every event, which is what stream clients need.
type StreamsEventBus struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewStreamsEventBus creates a new Redis Streams event bus.
// Stream keys are prefix + topic.
func NewStreamsEventBus(client *redis.Client, prefix string, logger *zap.Logger) *StreamsEventBus {
	if prefix == "" {
		prefix = "hrrelay:events:"
	}
	return &StreamsEventBus{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Publish appends an event to the topic's stream
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	streamKey := e.streamKey(topic)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe reads new entries of the topic's stream until ctx is cancelled.
// The tail is resolved before returning, so every event published after
// Subscribe returns is delivered.
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := e.streamKey(topic)

	startID, err := e.tailID(ctx, streamKey)
	if err != nil {
		return err
	}

	e.logger.Debug("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("topic", topic),
		zap.String("start_id", startID))

	go e.readStream(ctx, streamKey, startID, handler)

	return nil
}

// tailID returns the ID of the newest entry, or 0-0 for an empty stream
func (e *StreamsEventBus) tailID(ctx context.Context, streamKey string) (string, error) {
	messages, err := e.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read tail of %s: %w", streamKey, err)
	}
	if len(messages) == 0 {
		return "0-0", nil
	}
	return messages[0].ID, nil
}

// readStream reads events with IDs greater than lastID
func (e *StreamsEventBus) readStream(ctx context.Context, streamKey, lastID string, handler ports.EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := e.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("failed to read from stream",
				zap.String("stream", streamKey),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				e.processMessage(ctx, streamKey, message, handler)
			}
		}
	}
}

// processMessage decodes and dispatches a single stream entry
func (e *StreamsEventBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) {
	event, err := decodeMessage(message)
	if err != nil {
		e.logger.Error("invalid stream message",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return
	}

	if err := handler(ctx, event); err != nil {
		e.logger.Debug("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
	}
}

// Close is a no-op; the Redis client is closed by its owner
func (e *StreamsEventBus) Close() error {
	return nil
}

func (e *StreamsEventBus) streamKey(topic string) string {
	return e.prefix + topic
}

func decodeMessage(message redis.XMessage) (ports.Event, error) {
	var event ports.Event

	data, ok := message.Values["data"].(string)
	if !ok {
		return event, fmt.Errorf("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return event, nil
}
