package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEvent struct {
	id      int
	message string
}

func TestEventBus_BasicPubSub(t *testing.T) {
	bus := New[testEvent]()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	delivered := bus.Publish(testEvent{id: 1, message: "test"})
	assert.Equal(t, 1, delivered)

	select {
	case received := <-events:
		assert.Equal(t, 1, received.id)
		assert.Equal(t, "test", received.message)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribersAllReceive(t *testing.T) {
	bus := New[testEvent]()
	defer bus.Shutdown()

	ctx := context.Background()
	const numSubscribers = 5

	var channels []<-chan testEvent
	var cleanups []func()
	for i := 0; i < numSubscribers; i++ {
		events, cleanup := bus.Subscribe(ctx)
		channels = append(channels, events)
		cleanups = append(cleanups, cleanup)
	}
	defer func() {
		for _, cleanup := range cleanups {
			cleanup()
		}
	}()

	delivered := bus.Publish(testEvent{id: 42})
	assert.Equal(t, numSubscribers, delivered)

	for i, events := range channels {
		select {
		case received := <-events:
			assert.Equal(t, 42, received.id, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestEventBus_ContextCancellationUnsubscribes(t *testing.T) {
	bus := New[testEvent]()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	_, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	cancel()
	require.Eventually(t, func() bool {
		return bus.Stats().TotalSubscribers == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEventBus_BackpressureDropsWhenBufferFull(t *testing.T) {
	bus := NewWithConfig[testEvent](EventBusConfig{BufferSize: 2, CleanupPeriod: time.Hour, InactiveTimeout: time.Hour})
	defer bus.Shutdown()

	ctx := context.Background()
	events, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	assert.Equal(t, 1, bus.Publish(testEvent{id: 0}))
	assert.Equal(t, 1, bus.Publish(testEvent{id: 1}))
	assert.Equal(t, 0, bus.Publish(testEvent{id: 999}), "buffer is full, should be dropped")

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.TotalDropped)

	assert.Equal(t, 0, (<-events).id)
	assert.Equal(t, 1, (<-events).id)
}

func TestEventBus_PublishAsyncDoesNotBlock(t *testing.T) {
	bus := New[testEvent]()
	defer bus.Shutdown()

	ctx := context.Background()
	events, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	start := time.Now()
	bus.PublishAsync(testEvent{id: 1, message: "async"})
	assert.Less(t, time.Since(start), 10*time.Millisecond)

	select {
	case received := <-events:
		assert.Equal(t, 1, received.id)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestEventBus_ShutdownStopsDeliveryAndClosesNewSubscriptions(t *testing.T) {
	bus := New[testEvent]()

	ctx := context.Background()
	events, cleanup := bus.Subscribe(ctx)
	defer cleanup()

	bus.Shutdown()

	assert.True(t, bus.Stats().IsShutdown)
	assert.Equal(t, 0, bus.Publish(testEvent{id: 2}))

	newEvents, newCleanup := bus.Subscribe(ctx)
	defer newCleanup()
	_, ok := <-newEvents
	assert.False(t, ok, "subscribing to a shut-down bus should return a closed channel")

	select {
	case ev := <-events:
		t.Fatalf("should not receive events after shutdown, got: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_StatsTracksSubscriberLifecycle(t *testing.T) {
	bus := New[testEvent]()
	defer bus.Shutdown()

	assert.Equal(t, 0, bus.Stats().TotalSubscribers)

	ctx := context.Background()
	_, cleanup1 := bus.Subscribe(ctx)
	_, cleanup2 := bus.Subscribe(ctx)
	defer cleanup2()

	assert.Equal(t, 2, bus.Stats().TotalSubscribers)

	cleanup1()
	require.Eventually(t, func() bool { return bus.Stats().TotalSubscribers == 1 }, time.Second, 5*time.Millisecond)
}
