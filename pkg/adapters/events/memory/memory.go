package memory

import (
	"context"
	"sync"

	"github.com/aescanero/hrrelay/pkg/ports"
	"go.uber.org/zap"
)

// queueSize is the per-subscriber buffer. Publishers wait once it is full.
const queueSize = 256

type subscription struct {
	id    uint64
	queue chan ports.Event
	done  chan struct{}
	once  sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// InMemoryEventBus implements EventBus using in-process handlers.
// Each subscription is served by its own goroutine, so a subscriber sees
// events in publish order.
type InMemoryEventBus struct {
	subscribers map[string][]*subscription
	nextID      uint64
	logger      *zap.Logger
	mu          sync.RWMutex
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string][]*subscription),
		logger:      logger,
	}
}

// Publish queues an event for every subscriber of a topic
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, len(e.subscribers[topic]))
	copy(subs, e.subscribers[topic])
	e.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- event:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Subscribe registers handler on topic until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		queue: make(chan ports.Event, queueSize),
		done:  make(chan struct{}),
	}

	e.mu.Lock()
	e.nextID++
	sub.id = e.nextID
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(ctx, topic, sub, handler)

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		e.unsubscribe(topic, sub)
	}()

	return nil
}

// deliver runs handler for each queued event, one at a time
func (e *InMemoryEventBus) deliver(ctx context.Context, topic string, sub *subscription, handler ports.EventHandler) {
	for {
		select {
		case <-sub.done:
			return
		case event := <-sub.queue:
			if err := handler(ctx, event); err != nil {
				e.logger.Debug("event handler error",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// Subscribers returns the number of live subscriptions on topic
func (e *InMemoryEventBus) Subscribers(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.subscribers[topic])
}

// Close drops all subscribers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	subscribers := e.subscribers
	e.subscribers = make(map[string][]*subscription)
	e.mu.Unlock()

	for _, subs := range subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	return nil
}

// unsubscribe removes a single subscription from a topic
func (e *InMemoryEventBus) unsubscribe(topic string, target *subscription) {
	target.stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i, sub := range subs {
		if sub == target {
			e.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
}
