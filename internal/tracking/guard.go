package tracking

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// guardTimer is the single re-armable handle behind the session guard. The
// schedule itself lives in Service and is always recomputed from the
// persisted enter_at, never from in-memory counters, so recovery after a
// restart is exact.
type guardTimer struct {
	clock quartz.Clock

	mu    sync.Mutex
	timer *quartz.Timer
}

func newGuardTimer(clock quartz.Clock) *guardTimer {
	return &guardTimer{clock: clock}
}

// Arm replaces any armed check with a new one firing after d.
func (g *guardTimer) Arm(d time.Duration, f func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = g.clock.AfterFunc(d, f)
}

// Cancel disarms the guard. Safe no-op when nothing is armed.
func (g *guardTimer) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
