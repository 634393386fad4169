// Package eventbus provides a small lock-free pub/sub primitive used to fan
// a single producer's events out to several independent consumers without
// the producer knowing how many there are or blocking on a slow one.
package eventbus

import (
	"context"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// EventBus delivers published events to every active subscriber. A full
// subscriber buffer drops the event for that subscriber rather than
// blocking the publisher.
type EventBus[T any] struct {
	subscribers   *xsync.Map[string, *subscriber[T]]
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	workerPool    *WorkerPool[T]
	subscriberSeq atomic.Uint64
	bufferSize    int
	cleanupPeriod time.Duration
	isShutdown    atomic.Bool
}

type subscriber[T any] struct {
	ch         chan T
	id         string
	lastActive atomic.Int64
	dropped    atomic.Uint64
	isActive   atomic.Bool
}

// EventBusConfig customises buffer sizes and inactive-subscriber cleanup.
type EventBusConfig struct {
	BufferSize      int
	CleanupPeriod   time.Duration
	InactiveTimeout time.Duration
}

var DefaultConfig = EventBusConfig{
	BufferSize:      100,
	CleanupPeriod:   5 * time.Minute,
	InactiveTimeout: 10 * time.Minute,
}

// New creates an EventBus with DefaultConfig.
func New[T any]() *EventBus[T] {
	return NewWithConfig[T](DefaultConfig)
}

// NewWithConfig creates an EventBus with custom configuration.
func NewWithConfig[T any](config EventBusConfig) *EventBus[T] {
	eb := &EventBus[T]{
		subscribers:   xsync.NewMap[string, *subscriber[T]](),
		bufferSize:    config.BufferSize,
		cleanupPeriod: config.CleanupPeriod,
		stopCleanup:   make(chan struct{}),
	}

	eb.workerPool = NewWorkerPool(eb, 4, 1000)

	if config.CleanupPeriod > 0 {
		eb.cleanupTicker = time.NewTicker(config.CleanupPeriod)
		go eb.cleanupLoop(config.InactiveTimeout)
	}

	return eb
}

// Subscribe returns a channel that receives events and a cleanup function.
// The channel is automatically unsubscribed (but not closed, to avoid a
// send-on-closed-channel panic racing a concurrent Publish) when ctx is
// done.
func (eb *EventBus[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	if eb.isShutdown.Load() {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	id := eb.generateSubscriberID()
	ch := make(chan T, eb.bufferSize)

	sub := &subscriber[T]{id: id, ch: ch}
	sub.lastActive.Store(time.Now().UnixNano())
	sub.isActive.Store(true)

	eb.subscribers.Store(id, sub)

	go func() {
		<-ctx.Done()
		eb.unsubscribe(id)
	}()

	return ch, func() { eb.unsubscribe(id) }
}

// Publish delivers event to every active subscriber and returns how many
// received it.
func (eb *EventBus[T]) Publish(event T) int {
	if eb.isShutdown.Load() {
		return 0
	}

	delivered := 0
	now := time.Now().UnixNano()

	eb.subscribers.Range(func(id string, sub *subscriber[T]) bool {
		if !sub.isActive.Load() {
			return true
		}
		select {
		case sub.ch <- event:
			sub.lastActive.Store(now)
			delivered++
		default:
			sub.dropped.Add(1)
		}
		return true
	})

	return delivered
}

// PublishAsync queues event for delivery without blocking the caller.
func (eb *EventBus[T]) PublishAsync(event T) {
	if eb.isShutdown.Load() {
		return
	}
	if eb.workerPool != nil {
		eb.workerPool.PublishAsync(event)
	}
}

// Shutdown stops accepting publishes and clears all subscribers.
func (eb *EventBus[T]) Shutdown() {
	if !eb.isShutdown.CompareAndSwap(false, true) {
		return
	}

	if eb.workerPool != nil {
		eb.workerPool.Shutdown()
	}

	if eb.cleanupTicker != nil {
		eb.cleanupTicker.Stop()
		close(eb.stopCleanup)
	}

	eb.subscribers.Range(func(id string, sub *subscriber[T]) bool {
		sub.isActive.Store(false)
		return true
	})
	eb.subscribers.Clear()
}

// Stats returns aggregate subscriber/delivery counters.
func (eb *EventBus[T]) Stats() EventBusStats {
	stats := EventBusStats{IsShutdown: eb.isShutdown.Load()}
	if stats.IsShutdown {
		return stats
	}

	eb.subscribers.Range(func(id string, sub *subscriber[T]) bool {
		stats.TotalSubscribers++
		if sub.isActive.Load() {
			stats.ActiveSubscribers++
		}
		stats.TotalDropped += sub.dropped.Load()
		return true
	})

	return stats
}

type EventBusStats struct {
	TotalSubscribers  int
	ActiveSubscribers int
	TotalDropped      uint64
	IsShutdown        bool
}

func (eb *EventBus[T]) generateSubscriberID() string {
	seq := eb.subscriberSeq.Add(1)
	return "sub_" + strconv.FormatUint(seq, 10)
}

func (eb *EventBus[T]) unsubscribe(id string) {
	if sub, exists := eb.subscribers.Load(id); exists {
		sub.isActive.Store(false)
		eb.subscribers.Delete(id)
	}
}

func (eb *EventBus[T]) cleanupLoop(inactiveTimeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventbus cleanupLoop panic recovered: %v", r)
		}
	}()

	for {
		select {
		case <-eb.stopCleanup:
			return
		case <-eb.cleanupTicker.C:
			eb.cleanupInactiveSubscribers(inactiveTimeout)
		}
	}
}

func (eb *EventBus[T]) cleanupInactiveSubscribers(timeout time.Duration) {
	cutoff := time.Now().Add(-timeout).UnixNano()
	var toRemove []string

	eb.subscribers.Range(func(id string, sub *subscriber[T]) bool {
		if !sub.isActive.Load() || sub.lastActive.Load() < cutoff {
			toRemove = append(toRemove, id)
		}
		return true
	})

	for _, id := range toRemove {
		eb.unsubscribe(id)
	}
}
