package tracking

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// PendingExit is an exit signal waiting out its cooldown window. If the
// worker re-enters the geofence before the timer fires, the exit never
// happened.
type PendingExit struct {
	LocationID   string
	LocationName string
	ExitTime     time.Time

	timer *quartz.Timer
}

// ExitRegistry holds at most one armed cooldown timer per location id.
type ExitRegistry struct {
	clock    quartz.Clock
	cooldown time.Duration

	mu      sync.Mutex
	pending map[string]*PendingExit
}

func NewExitRegistry(clock quartz.Clock, cooldown time.Duration) *ExitRegistry {
	return &ExitRegistry{
		clock:    clock,
		cooldown: cooldown,
		pending:  map[string]*PendingExit{},
	}
}

// Schedule arms a confirmation timer for the location, replacing any entry
// already armed for it. confirm runs once the cooldown elapses, unless
// Cancel wins first. The registry entry is removed before confirm runs, so a
// fired timer can never be cancelled into a half-state; confirm callbacks
// must do their own staleness checking against persisted state.
func (r *ExitRegistry) Schedule(locationID, locationName string, exitTime time.Time, confirm func(PendingExit)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.pending[locationID]; ok {
		old.timer.Stop()
		delete(r.pending, locationID)
	}

	p := &PendingExit{LocationID: locationID, LocationName: locationName, ExitTime: exitTime}
	p.timer = r.clock.AfterFunc(r.cooldown, func() {
		r.mu.Lock()
		current, ok := r.pending[locationID]
		live := ok && current == p
		if live {
			delete(r.pending, locationID)
		}
		r.mu.Unlock()

		// A Stop that lost the race to the firing timer lands here; the
		// map check above makes the superseded callback a no-op.
		if live {
			confirm(*p)
		}
	})
	r.pending[locationID] = p
}

// Cancel disarms and forgets the pending exit for the location. Reports
// whether one existed; safe to call when none does.
func (r *ExitRegistry) Cancel(locationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[locationID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(r.pending, locationID)
	return true
}

// CooldownExpiresAt reports when the pending exit for the location will
// confirm, zero when none is armed. The UI uses this for the countdown.
func (r *ExitRegistry) CooldownExpiresAt(locationID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[locationID]
	if !ok {
		return time.Time{}
	}
	return p.ExitTime.Add(r.cooldown)
}
