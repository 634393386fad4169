package session

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine leaks escape the session's read/write
// loops between tests - Run spawns a write-pump goroutine per session, and
// a forgotten one would otherwise only surface under load.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
