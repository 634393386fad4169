package health

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/theme"
)

type fakeRegistry struct {
	mu       sync.Mutex
	sources  []domain.DataSource
	statuses map[domain.Name]domain.DataSourceStatus
}

func newFakeRegistry(names ...domain.Name) *fakeRegistry {
	r := &fakeRegistry{statuses: make(map[domain.Name]domain.DataSourceStatus)}
	for _, n := range names {
		r.sources = append(r.sources, domain.DataSource{Name: n, ProviderType: "prometheus"})
		r.statuses[n] = domain.NotCheckedStatus()
	}
	return r
}

func (r *fakeRegistry) List() []domain.DataSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.DataSource, len(r.sources))
	for i, s := range r.sources {
		s.Status = r.statuses[s.Name]
		out[i] = s
	}
	return out
}

func (r *fakeRegistry) SetStatus(name domain.Name, status domain.DataSourceStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses[name].Equal(status) {
		return false
	}
	r.statuses[name] = status
	return true
}

type fakeInvoker struct {
	err *domain.ProviderError
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, _ map[string]any, _ []byte) ([]byte, *domain.ProviderError) {
	return nil, f.err
}

type countingPublisher struct {
	count atomic.Int32
	last  atomic.Pointer[domain.ProxyMessage]
}

func (p *countingPublisher) Publish(msg domain.ProxyMessage) {
	p.count.Add(1)
	p.last.Store(&msg)
}

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.DiscardHandler), theme.Default(), false)
}

func TestChecker_PublishesOnFirstCheckAndDebouncesAfter(t *testing.T) {
	reg := newFakeRegistry("metrics-a")
	pub := &countingPublisher{}
	c := New(reg, &fakeInvoker{}, MinStatusInterval, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, pub)
	defer c.Stop()

	require.Eventually(t, func() bool { return pub.count.Load() >= 1 }, time.Second, time.Millisecond)

	// Wait past the next tick so a second check runs and sees the same status.
	time.Sleep(MinStatusInterval + 500*time.Millisecond)
	assert.Equal(t, int32(1), pub.count.Load(), "status never changes, so only the first check should publish")
}

func TestChecker_PublishesOnTransition(t *testing.T) {
	reg := newFakeRegistry("metrics-a")
	pub := &countingPublisher{}
	invoker := &fakeInvoker{}
	c := New(reg, invoker, MinStatusInterval, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, pub)
	defer c.Stop()

	require.Eventually(t, func() bool { return pub.count.Load() >= 1 }, time.Second, time.Millisecond)

	perr := domain.NewHTTPError(503, nil)
	invoker.err = &perr

	require.Eventually(t, func() bool { return pub.count.Load() >= 2 }, 3*MinStatusInterval, time.Millisecond)
}

func TestChecker_ClampsIntervalToMinimum(t *testing.T) {
	reg := newFakeRegistry()
	c := New(reg, &fakeInvoker{}, 0, testLogger(), nil)
	assert.Equal(t, MinStatusInterval, c.interval)
}

// TestChecker_RecordsTransitionsForDiagnostics covers the third event bus
// fan-out consumer: the /debug/stats Recorder observes the same
// transitions the Session publisher and metrics counter do.
func TestChecker_RecordsTransitionsForDiagnostics(t *testing.T) {
	reg := newFakeRegistry("metrics-a")
	pub := &countingPublisher{}
	recorder := NewRecorder()
	c := New(reg, &fakeInvoker{}, 20*time.Millisecond, testLogger(), recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, pub)
	defer c.Stop()

	require.Eventually(t, func() bool { return len(recorder.Snapshot()) >= 1 }, time.Second, time.Millisecond)

	snap := recorder.Snapshot()
	assert.Equal(t, domain.Name("metrics-a"), snap[0].Name)
	assert.True(t, snap[0].Status.Connected)
}
