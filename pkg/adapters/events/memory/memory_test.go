package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan ports.Event, 1)
	second := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, ports.TopicReadings, func(_ context.Context, ev ports.Event) error {
		first <- ev
		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx, ports.TopicReadings, func(_ context.Context, ev ports.Event) error {
		second <- ev
		return nil
	}))

	event := ports.Event{ID: "e1", Type: ports.EventReadingUpdated, BPM: 88}
	require.NoError(t, bus.Publish(ctx, ports.TopicReadings, event))

	for _, ch := range []chan ports.Event{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishIgnoresOtherTopics(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan ports.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, "other", func(_ context.Context, ev ports.Event) error {
		got <- ev
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, ports.TopicReadings, ports.Event{ID: "e1"}))

	select {
	case <-got:
		t.Fatal("unexpected delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	keep, keepCancel := context.WithCancel(context.Background())
	defer keepCancel()
	drop, dropCancel := context.WithCancel(context.Background())

	noop := func(context.Context, ports.Event) error { return nil }
	require.NoError(t, bus.Subscribe(keep, ports.TopicReadings, noop))
	require.NoError(t, bus.Subscribe(drop, ports.TopicReadings, noop))
	require.Equal(t, 2, bus.Subscribers(ports.TopicReadings))

	dropCancel()
	assert.Eventually(t, func() bool {
		return bus.Subscribers(ports.TopicReadings) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCloseDropsSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx, ports.TopicReadings, func(context.Context, ports.Event) error { return nil }))
	require.NoError(t, bus.Close())
	assert.Zero(t, bus.Subscribers(ports.TopicReadings))
}

func TestDeliveryKeepsPublishOrder(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 1000
	got := make(chan int, total)
	require.NoError(t, bus.Subscribe(ctx, ports.TopicReadings, func(_ context.Context, ev ports.Event) error {
		got <- ev.BPM
		return nil
	}))

	for i := 1; i <= total; i++ {
		require.NoError(t, bus.Publish(ctx, ports.TopicReadings, ports.Event{BPM: i}))
	}

	for want := 1; want <= total; want++ {
		select {
		case bpm := <-got:
			require.Equal(t, want, bpm)
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", want)
		}
	}
}

func TestSlowSubscriberDoesNotLoseEvents(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = queueSize * 2
	var mu sync.Mutex
	var seen []int
	require.NoError(t, bus.Subscribe(ctx, ports.TopicReadings, func(_ context.Context, ev ports.Event) error {
		time.Sleep(10 * time.Microsecond)
		mu.Lock()
		seen = append(seen, ev.BPM)
		mu.Unlock()
		return nil
	}))

	for i := 0; i < total; i++ {
		require.NoError(t, bus.Publish(ctx, ports.TopicReadings, ports.Event{BPM: i}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, bpm := range seen {
		assert.Equal(t, i, bpm)
	}
}

func TestPublishDoesNotBlockOnCancelledSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	subCtx, subCancel := context.WithCancel(context.Background())

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, bus.Subscribe(subCtx, ports.TopicReadings, func(context.Context, ports.Event) error {
		<-block
		return nil
	}))
	subCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < queueSize*2; i++ {
			_ = bus.Publish(context.Background(), ports.TopicReadings, ports.Event{BPM: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a cancelled subscriber")
	}
}
