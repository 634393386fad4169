package health

import (
	"sync"
	"time"

	"github.com/relayforge/relayforge/internal/core/domain"
)

// maxRecordedTransitions bounds the history kept for the diagnostics route;
// older transitions are dropped rather than growing this without limit.
const maxRecordedTransitions = 20

// TransitionRecord is one status change, kept for the /debug/stats
// diagnostics route.
type TransitionRecord struct {
	Name   domain.Name
	Status domain.DataSourceStatus
	At     time.Time
}

// Recorder keeps the most recent status transitions across reconnects: the
// Supervisor owns one Recorder for its whole lifetime and hands it to every
// short-lived Checker it constructs, so the diagnostics history survives a
// Session reconnect even though the Checker doesn't.
type Recorder struct {
	mu      sync.Mutex
	history []TransitionRecord
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(rec TransitionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, rec)
	if len(r.history) > maxRecordedTransitions {
		r.history = r.history[len(r.history)-maxRecordedTransitions:]
	}
}

// Snapshot returns the recorded transitions, oldest first.
func (r *Recorder) Snapshot() []TransitionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TransitionRecord, len(r.history))
	copy(out, r.history)
	return out
}
