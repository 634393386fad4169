package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/relayforge/relayforge/pkg/container"
	"github.com/relayforge/relayforge/pkg/format"
	"github.com/relayforge/relayforge/pkg/nerdstats"
)

// HealthTransition is one data source status change, rendered alongside
// process diagnostics.
type HealthTransition struct {
	Name   string
	Status string
	At     time.Time
}

// HealthHistory supplies the most recent health transitions for
// /debug/stats, decoupling this package from the health checker's types.
type HealthHistory interface {
	Snapshot() []HealthTransition
}

// DiagnosticsHandler renders a plain-text operator snapshot of process
// runtime stats at /debug/stats - heap/GC/goroutine figures plus whether the
// process looks containerised, and (when history is non-nil) the most
// recent data source health transitions - for debugging a relay deployed
// inside a customer network without shell access to it.
func DiagnosticsHandler(startTime time.Time, history HealthHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		stats := nerdstats.Snapshot(startTime)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "uptime:            %s\n", format.Duration(stats.Uptime))
		fmt.Fprintf(w, "containerised:     %t\n", container.IsContainerised())
		fmt.Fprintf(w, "goroutines:        %d (%s)\n", stats.NumGoroutines, stats.GetGoroutineHealthStatus())
		fmt.Fprintf(w, "heap_alloc:        %s\n", format.Bytes(stats.HeapAlloc))
		fmt.Fprintf(w, "heap_sys:          %s\n", format.Bytes(stats.HeapSys))
		fmt.Fprintf(w, "memory_pressure:   %s\n", stats.GetMemoryPressure())
		fmt.Fprintf(w, "gc_cycles:         %d\n", stats.NumGC)
		fmt.Fprintf(w, "gc_cpu_fraction:   %s\n", format.Percentage(stats.GCCPUFraction*100))
		fmt.Fprintf(w, "avg_gc_pause:      %s\n", nerdstats.CalculateAverageGCPause(stats))
		fmt.Fprintf(w, "go_version:        %s\n", stats.GoVersion)
		fmt.Fprintf(w, "gomaxprocs:        %d\n", stats.GOMAXPROCS)

		if history == nil {
			return
		}
		transitions := history.Snapshot()
		if len(transitions) == 0 {
			return
		}
		fmt.Fprintf(w, "\nrecent health transitions:\n")
		for _, t := range transitions {
			fmt.Fprintf(w, "  %s  %-20s %s\n", t.At.Format(time.RFC3339), t.Name, t.Status)
		}
	}
}
