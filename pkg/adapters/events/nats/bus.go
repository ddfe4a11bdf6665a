package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is prepended to topics to form subjects
const DefaultSubjectPrefix = "hrrelay.events."

// EventBus implements ports.EventBus with core NATS publish/subscribe.
// Delivery is at-most-once, which is enough for live reading updates.
type EventBus struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// NewEventBus creates a new NATS event bus. Subjects are prefix + topic.
func NewEventBus(conn *nats.Conn, prefix string, logger *zap.Logger) *EventBus {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &EventBus{
		conn:   conn,
		prefix: prefix,
		logger: logger,
		subs:   make(map[*nats.Subscription]struct{}),
	}
}

// Publish sends an event to the topic's subject
func (e *EventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := e.subject(topic)
	if err := e.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("subject", subject))

	return nil
}

// Subscribe delivers the topic's events to handler until ctx is cancelled
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	subject := e.subject(topic)

	sub, err := e.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event ports.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			e.logger.Error("invalid event message",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			return
		}

		if err := handler(ctx, event); err != nil {
			e.logger.Debug("handler error",
				zap.String("subject", msg.Subject),
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	// Make sure the server knows about the interest before returning
	if err := e.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	e.mu.Lock()
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	e.logger.Debug("subscribed to subject",
		zap.String("subject", subject),
		zap.String("topic", topic))

	go func() {
		<-ctx.Done()
		e.unsubscribe(sub)
	}()

	return nil
}

// Subscribers returns the number of live subscriptions
func (e *EventBus) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Close drops every subscription; the connection is closed by its owner
func (e *EventBus) Close() error {
	e.mu.Lock()
	subs := e.subs
	e.subs = make(map[*nats.Subscription]struct{})
	e.mu.Unlock()

	for sub := range subs {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			e.logger.Warn("failed to unsubscribe",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}
	}
	return nil
}

func (e *EventBus) unsubscribe(sub *nats.Subscription) {
	e.mu.Lock()
	_, ok := e.subs[sub]
	delete(e.subs, sub)
	e.mu.Unlock()

	if ok {
		_ = sub.Unsubscribe()
	}
}

func (e *EventBus) subject(topic string) string {
	return e.prefix + topic
}
