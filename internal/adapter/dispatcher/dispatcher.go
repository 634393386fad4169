// Package dispatcher implements the Dispatcher (spec §4.E): it routes each
// decoded ServerMessage to the correct data source's provider module on a
// bounded worker pool, and publishes the result back through the Session.
package dispatcher

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/internal/metrics"
)

const DefaultMaxConcurrentRequests = 5

// Registry is the subset of the Provider Registry the dispatcher needs.
type Registry interface {
	LookupDataSource(name domain.Name) (domain.DataSource, error)
}

// Invoker is the subset of the Invocation Executor the dispatcher needs.
type Invoker interface {
	Invoke(ctx context.Context, providerType string, config map[string]any, payload []byte) ([]byte, *domain.ProviderError)
}

// Publisher enqueues an outbound ProxyMessage on the Session's write loop.
type Publisher interface {
	Publish(msg domain.ProxyMessage)
}

// Dispatcher owns a bounded worker pool sized by max_concurrent_requests.
// Once every worker is busy, Dispatch blocks its caller until a worker takes
// the request; there is no separate in-memory request queue, and the peer is
// sent no backpressure signal.
type Dispatcher struct {
	ctx       context.Context
	registry  Registry
	exec      Invoker
	publisher Publisher
	pool      *pool.Pool
	log       *logger.StyledLogger
}

// New builds a Dispatcher. ctx bounds every in-flight invocation; cancelling
// it (e.g. on Supervisor shutdown) aborts outstanding sandbox calls.
// maxConcurrent is clamped to a floor of 1.
func New(ctx context.Context, registry Registry, exec Invoker, publisher Publisher, maxConcurrent int, log *logger.StyledLogger) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		ctx:       ctx,
		registry:  registry,
		exec:      exec,
		publisher: publisher,
		pool:      pool.New().WithMaxGoroutines(maxConcurrent),
		log:       log,
	}
}

// SetPublisher (re)binds the outbound publisher. The Supervisor constructs a
// Dispatcher before the Session it will publish through exists, then binds
// the Session once the opening SetDataSources frame has been sent
// successfully (spec §4.F, §5 ordering guarantees).
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = p
}

// Dispatch implements session.Dispatcher. It is called synchronously from
// the Session's read loop and does not run the invocation itself, but while
// every worker is busy it blocks until one finishes, so the read loop reads
// no further frames in the meantime.
func (d *Dispatcher) Dispatch(msg domain.ServerMessage) {
	switch msg.Kind {
	case domain.ServerMessageInvoke:
		d.dispatchInvoke(msg)
	default:
		d.log.Debug("ignoring server message", "kind", msg.Kind)
	}
}

func (d *Dispatcher) dispatchInvoke(msg domain.ServerMessage) {
	opID := msg.OpId

	if _, ok := domain.SupportedProtocolVersions[msg.ProtocolVersion]; !ok {
		d.publisher.Publish(domain.ErrorMessage(&opID, domain.NewValidationError("unsupported protocol version")))
		return
	}

	ds, err := d.registry.LookupDataSource(msg.DataSourceName)
	if err != nil {
		d.publisher.Publish(domain.ErrorMessage(&opID, domain.ProviderError{Kind: domain.ErrNotFound}))
		return
	}

	metrics.DispatcherQueueDepth.Inc()
	d.pool.Go(func() {
		defer metrics.DispatcherQueueDepth.Dec()
		defer func() {
			if r := recover(); r != nil {
				metrics.InvocationsTotal.WithLabelValues(ds.ProviderType, string(domain.ErrInvocation)).Inc()
				d.publisher.Publish(domain.ErrorMessage(&opID, domain.NewInvocationError("provider invocation panicked")))
			}
		}()

		start := time.Now()
		data, perr := d.exec.Invoke(d.ctx, ds.ProviderType, ds.Config, msg.Payload)
		metrics.InvocationDuration.WithLabelValues(ds.ProviderType).Observe(time.Since(start).Seconds())

		if perr != nil {
			metrics.InvocationsTotal.WithLabelValues(ds.ProviderType, string(perr.Kind)).Inc()
			d.publisher.Publish(domain.ErrorMessage(&opID, *perr))
			return
		}
		metrics.InvocationsTotal.WithLabelValues(ds.ProviderType, "success").Inc()
		d.publisher.Publish(domain.InvokeProxyResponseMessage(opID, data))
	})
}

// Wait blocks until every dispatched invocation has returned. Used during
// graceful shutdown so the worker pool drains before the process exits.
func (d *Dispatcher) Wait() {
	d.pool.Wait()
}
