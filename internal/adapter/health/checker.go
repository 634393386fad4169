// Package health implements the Health Checker (spec §4.C): one ticker per
// data source that polls the provider module for its status and republishes
// a SetDataSources snapshot on the first check and on every transition.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/relayforge/relayforge/internal/adapter/executor"
	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/internal/metrics"
	"github.com/relayforge/relayforge/pkg/eventbus"
)

const (
	DefaultStatusInterval = 5 * time.Minute
	MinStatusInterval     = 1 * time.Second
)

// Invoker is the subset of the Invocation Executor the checker needs.
type Invoker interface {
	Invoke(ctx context.Context, providerType string, config map[string]any, payload []byte) ([]byte, *domain.ProviderError)
}

// StatusRegistry is the subset of the Provider Registry the checker needs.
type StatusRegistry interface {
	List() []domain.DataSource
	SetStatus(name domain.Name, status domain.DataSourceStatus) bool
}

// Publisher enqueues an outbound ProxyMessage on the Session's write loop.
type Publisher interface {
	Publish(msg domain.ProxyMessage)
}

// transition is fanned out over the event bus whenever SetStatus reports a
// real change, so the Session publish, the HealthTransitionsTotal metric
// and the diagnostics recorder each react independently instead of check
// calling all three by hand.
type transition struct {
	name     domain.Name
	status   domain.DataSourceStatus
	snapshot []domain.DataSource
}

// Checker runs one polling goroutine per data source.
type Checker struct {
	registry StatusRegistry
	exec     Invoker
	interval time.Duration
	log      *logger.StyledLogger
	recorder *Recorder

	bus    *eventbus.EventBus[transition]
	stopCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Checker. interval is clamped to MinStatusInterval. recorder
// may be nil if the caller has no use for a /debug/stats transition
// history (e.g. in tests).
func New(registry StatusRegistry, exec Invoker, interval time.Duration, log *logger.StyledLogger, recorder *Recorder) *Checker {
	if interval < MinStatusInterval {
		interval = MinStatusInterval
	}
	return &Checker{
		registry: registry,
		exec:     exec,
		interval: interval,
		log:      log,
		recorder: recorder,
		bus:      eventbus.New[transition](),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the event bus subscribers that fan a status transition out
// to the Session publisher, the metric and the diagnostics recorder, then
// one polling goroutine per data source currently in the registry. Each
// poller performs an immediate check before settling into its ticker, so
// the first SetDataSources snapshot goes out right away (spec §4.C).
func (c *Checker) Start(ctx context.Context, publisher Publisher) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.subscribe(ctx, func(t transition) {
		publisher.Publish(domain.SetDataSourcesMessage(t.snapshot))
	})
	c.subscribe(ctx, func(t transition) {
		metrics.HealthTransitionsTotal.WithLabelValues(string(t.name)).Inc()
		c.log.InfoDataSourceStatus("data source status", t.name, t.status)
	})
	if c.recorder != nil {
		c.subscribe(ctx, func(t transition) {
			c.recorder.record(TransitionRecord{Name: t.name, Status: t.status, At: time.Now()})
		})
	}

	for _, ds := range c.registry.List() {
		c.wg.Add(1)
		go c.run(ctx, ds.Name, ds.ProviderType, ds.Config)
	}
}

// subscribe registers one event bus consumer that calls handle for every
// transition until ctx is done.
func (c *Checker) subscribe(ctx context.Context, handle func(transition)) {
	events, _ := c.bus.Subscribe(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-events:
				if !ok {
					return
				}
				handle(t)
			}
		}
	}()
}

// Stop signals every polling goroutine to exit, waits for them, then tears
// down the event bus subscribers and shuts the bus down.
func (c *Checker) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	if c.cancel != nil {
		c.cancel()
	}
	c.bus.Shutdown()
}

func (c *Checker) run(ctx context.Context, name domain.Name, providerType string, config map[string]any) {
	defer c.wg.Done()

	c.check(ctx, name, providerType, config)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.check(ctx, name, providerType, config)
		}
	}
}

func (c *Checker) check(ctx context.Context, name domain.Name, providerType string, config map[string]any) {
	_, perr := c.exec.Invoke(ctx, providerType, config, executor.StatusPayload())

	var status domain.DataSourceStatus
	if perr == nil {
		status = domain.ConnectedStatus()
	} else {
		status = domain.ErrorStatus(*perr)
	}

	if !c.registry.SetStatus(name, status) {
		return
	}

	c.bus.Publish(transition{name: name, status: status, snapshot: c.registry.List()})
}
