package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/internal/config"
	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/theme"
)

type fakeRegistry struct {
	sources []domain.DataSource
}

func (r *fakeRegistry) List() []domain.DataSource { return r.sources }

func (r *fakeRegistry) LookupDataSource(name domain.Name) (domain.DataSource, error) {
	for _, ds := range r.sources {
		if ds.Name == name {
			return ds, nil
		}
	}
	return domain.DataSource{}, assert.AnError
}

func (r *fakeRegistry) SetStatus(domain.Name, domain.DataSourceStatus) bool { return false }

type fakeInvoker struct{ calls int32 }

func (f *fakeInvoker) Invoke(context.Context, string, map[string]any, []byte) ([]byte, *domain.ProviderError) {
	atomic.AddInt32(&f.calls, 1)
	return []byte("ok"), nil
}

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.DiscardHandler), theme.Default(), false)
}

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ControlPlane.WorkspaceID = "11111111-1111-1111-1111-111111111111"
	cfg.ControlPlane.ProxyName = "test-proxy"
	cfg.ControlPlane.Token = "secret"
	cfg.ControlPlane.MaxConnectRetries = 1
	cfg.ControlPlane.BackoffBase = time.Millisecond
	cfg.ControlPlane.BackoffMax = 5 * time.Millisecond
	return cfg
}

// TestRun_GivesUpAfterMaxConnectRetries covers the reconnect-giving-up path
// (spec §4.F step 3): a control plane that always rejects the handshake
// exhausts max_connect_retries and Run returns a non-nil error instead of
// looping forever.
func TestRun_GivesUpAfterMaxConnectRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := baseConfig(t)
	cfg.ControlPlane.Endpoint = "http://" + srv.Listener.Addr().String()

	sup := New(cfg, &fakeRegistry{}, &fakeInvoker{}, testLogger())

	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500 Internal Server Error")
	case <-time.After(5 * time.Second):
		t.Fatal("expected Run to give up and return an error")
	}
}

// TestRun_LocalEndpointServesRoutes covers the optional local HTTP endpoint
// (spec §6): "/" always 200, "/health" 502 while no session is open, and the
// ambient "/metrics" and "/debug/stats" routes this module adds.
func TestRun_LocalEndpointServesRoutes(t *testing.T) {
	// An unreachable control plane endpoint keeps the reconnect loop busy in
	// the background without ever opening a session, so /health stays 502
	// for the duration of this test.
	cfg := baseConfig(t)
	cfg.ControlPlane.Endpoint = "http://127.0.0.1:1"
	cfg.ControlPlane.MaxConnectRetries = 1 << 30
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Telemetry.Metrics.Enabled = true

	sup := New(cfg, &fakeRegistry{}, &fakeInvoker{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = sup.Run(ctx)
		close(done)
	}()

	var addr string
	require.Eventually(t, func() bool {
		a := sup.listenAddr()
		if a == "" {
			return false
		}
		addr = a
		return true
	}, time.Second, 5*time.Millisecond)

	base := "http://" + addr

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/debug/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cancel()
	<-done
}
