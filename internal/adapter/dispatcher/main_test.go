package dispatcher

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies the worker pool's goroutines wind down once Wait
// returns, so a leaked dispatch goroutine fails the suite instead of
// quietly accumulating in a long-running process.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
