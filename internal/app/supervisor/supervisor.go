// Package supervisor implements the Supervisor (spec §4.F): it owns the
// Provider Registry's lifetime, the Health Checker's schedule, the optional
// local HTTP endpoint, and the reconnect policy around the Session.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayforge/relayforge/internal/adapter/dispatcher"
	"github.com/relayforge/relayforge/internal/adapter/health"
	"github.com/relayforge/relayforge/internal/adapter/session"
	"github.com/relayforge/relayforge/internal/config"
	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/internal/router"
	"github.com/relayforge/relayforge/internal/util"
)

// Registry is the subset of the Provider Registry the Supervisor needs.
type Registry interface {
	List() []domain.DataSource
	LookupDataSource(name domain.Name) (domain.DataSource, error)
	SetStatus(name domain.Name, status domain.DataSourceStatus) bool
}

// Invoker is the subset of the Invocation Executor the Supervisor needs to
// hand to the Dispatcher and the Health Checker.
type Invoker interface {
	Invoke(ctx context.Context, providerType string, config map[string]any, payload []byte) ([]byte, *domain.ProviderError)
}

// Supervisor runs the reconnect loop and the optional local health endpoint.
type Supervisor struct {
	cfg      *config.Config
	registry Registry
	exec     Invoker
	log      *logger.StyledLogger

	current   atomic.Pointer[session.Session]
	startTime time.Time
	boundAddr atomic.Pointer[string]

	// recorder outlives any single Checker so /debug/stats keeps a
	// transition history across reconnects, even though runSession builds a
	// fresh Checker every time the session drops.
	recorder *health.Recorder
}

func New(cfg *config.Config, registry Registry, exec Invoker, log *logger.StyledLogger) *Supervisor {
	return &Supervisor{cfg: cfg, registry: registry, exec: exec, log: log, startTime: time.Now(), recorder: health.NewRecorder()}
}

// listenAddr returns the local endpoint's actual bound address once it's
// listening, or "" before then - useful when Server.ListenAddr asks for an
// OS-assigned ephemeral port (":0").
func (s *Supervisor) listenAddr() string {
	if p := s.boundAddr.Load(); p != nil {
		return *p
	}
	return ""
}

// Run blocks until ctx is cancelled (clean shutdown) or reconnect attempts
// are exhausted (spec §4.F step 2-3). It returns nil on clean shutdown and a
// non-nil error when the session could not be (re)established.
func (s *Supervisor) Run(ctx context.Context) error {
	var httpServer *http.Server
	if s.cfg.Server.ListenAddr != "" {
		srv, err := s.startLocalEndpoint()
		if err != nil {
			return fmt.Errorf("bind local endpoint: %w", err)
		}
		httpServer = srv
		defer s.stopLocalEndpoint(httpServer)
	}

	token, err := s.buildToken()
	if err != nil {
		return fmt.Errorf("build proxy token: %w", err)
	}

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sess, dispatch, err := s.connectOnce(ctx, token)
		if err != nil {
			attempts++
			if attempts > s.cfg.ControlPlane.MaxConnectRetries {
				return fmt.Errorf("session connect failed after %d attempts: %w", attempts, err)
			}
			s.log.Warn("session connect failed, retrying", "attempt", attempts, "err", err)
			if !s.sleepOrShutdown(ctx, attempts) {
				return nil
			}
			continue
		}

		attempts = 0
		s.current.Store(sess)
		s.runSession(ctx, sess, dispatch)
		s.current.Store(nil)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// connectOnce performs one handshake attempt, sends the opening
// SetDataSources frame synchronously, and only then builds the Dispatcher -
// the first outbound frame after open must be SetDataSources, and the
// Dispatcher must not start before that send succeeds (spec §5).
func (s *Supervisor) connectOnce(ctx context.Context, token domain.ProxyToken) (*session.Session, *dispatcher.Dispatcher, error) {
	disp := dispatcher.New(ctx, s.registry, s.exec, nil, s.cfg.Provider.MaxConcurrentRequests, s.log)

	sess, err := session.Connect(ctx, s.cfg.ControlPlane.Endpoint, token, disp, s.cfg.ControlPlane.InactivityTimeout, s.log)
	if err != nil {
		return nil, nil, err
	}

	if err := sess.SendInitial(domain.SetDataSourcesMessage(s.registry.List())); err != nil {
		sess.Close()
		return nil, nil, err
	}

	disp.SetPublisher(sess)
	return sess, disp, nil
}

func (s *Supervisor) runSession(ctx context.Context, sess *session.Session, disp *dispatcher.Dispatcher) {
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	checker := health.New(s.registry, s.exec, s.cfg.Health.StatusInterval, s.log, s.recorder)
	checker.Start(ctx, sess)

	<-done

	checker.Stop()
	disp.Wait()
}

func (s *Supervisor) sleepOrShutdown(ctx context.Context, attempt int) bool {
	backoff := util.CalculateExponentialBackoff(attempt, s.cfg.ControlPlane.BackoffBase, s.cfg.ControlPlane.BackoffMax, 0)
	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) buildToken() (domain.ProxyToken, error) {
	workspaceID, err := uuid.Parse(s.cfg.ControlPlane.WorkspaceID)
	if err != nil {
		return domain.ProxyToken{}, fmt.Errorf("invalid workspace_id: %w", err)
	}
	return domain.ProxyToken{
		WorkspaceID: workspaceID,
		ProxyName:   domain.Name(s.cfg.ControlPlane.ProxyName),
		Token:       s.cfg.ControlPlane.Token,
	}, nil
}

func (s *Supervisor) startLocalEndpoint() (*http.Server, error) {
	routes := router.NewRouteRegistry(s.log)
	routes.Register("/", s.rootHandler, "always 200 OK")
	routes.Register("/health", s.healthHandler, "200 while session open, 502 otherwise")
	if s.cfg.Telemetry.Metrics.Enabled {
		routes.Register("/metrics", promhttp.Handler().ServeHTTP, "Prometheus metrics")
	}
	routes.Register("/debug/stats", router.DiagnosticsHandler(s.startTime, recorderHistory{s.recorder}), "operator runtime diagnostics")

	mux := http.NewServeMux()
	routes.WireUp(mux)

	srv := &http.Server{Addr: s.cfg.Server.ListenAddr, Handler: mux}

	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return nil, err
	}
	addr := ln.Addr().String()
	s.boundAddr.Store(&addr)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("local endpoint serve error", "err", err)
		}
	}()

	s.log.Info("local endpoint listening", "addr", s.cfg.Server.ListenAddr)
	return srv, nil
}

// recorderHistory adapts a *health.Recorder to router.HealthHistory so the
// router package doesn't need to import health's domain types.
type recorderHistory struct {
	recorder *health.Recorder
}

func (r recorderHistory) Snapshot() []router.HealthTransition {
	records := r.recorder.Snapshot()
	out := make([]router.HealthTransition, len(records))
	for i, rec := range records {
		out[i] = router.HealthTransition{Name: string(rec.Name), Status: rec.Status.String(), At: rec.At}
	}
	return out
}

func (s *Supervisor) stopLocalEndpoint(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("local endpoint shutdown error", "err", err)
	}
}

func (s *Supervisor) rootHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Supervisor) healthHandler(w http.ResponseWriter, _ *http.Request) {
	sess := s.current.Load()
	if sess != nil && sess.IsOpen() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte("session not open"))
}
