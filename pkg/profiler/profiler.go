// Package profiler exposes Go's net/http/pprof handlers on a dedicated
// listener, separate from the local health endpoint, so an operator can
// attach go tool pprof to a running relay without exposing profiling data on
// the same port as /health and /metrics.
package profiler

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"
)

// Logger is the subset of the styled logger profiler needs, kept minimal so
// this package doesn't import the logging stack directly.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Start launches a pprof server on addr in the background and returns it so
// the caller can Stop it during shutdown. A disabled profiler (empty addr)
// is the caller's responsibility to skip.
func Start(addr string, log Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("profiler listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("profiler server stopped", "err", err)
		}
	}()

	return srv
}

// Stop shuts down the profiler server with a short grace period.
func Stop(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
