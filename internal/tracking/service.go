package tracking

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/notify"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/stream"
	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/syncer"
)

// Settings tunes the state machine. Zero values fall back to the defaults
// the mobile app ships with.
type Settings struct {
	// ExitCooldown is the grace window after an EXIT during which a matching
	// ENTER discards the exit. Absorbs geofence flapping at the boundary.
	ExitCooldown time.Duration
	// ExitAdjustment is subtracted from every confirmed duration and exit
	// time to compensate for systematic sensor lag.
	ExitAdjustment time.Duration
	// GuardFirstCheck is the session age at which the guard starts checking.
	GuardFirstCheck time.Duration
	// GuardRepeat is the interval between guard checks after the first.
	GuardRepeat time.Duration
	// GuardMaxSession is the ceiling at which a session is force-ended.
	GuardMaxSession time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.ExitCooldown <= 0 {
		s.ExitCooldown = 30 * time.Second
	}
	if s.GuardFirstCheck <= 0 {
		s.GuardFirstCheck = 10 * time.Hour
	}
	if s.GuardRepeat <= 0 {
		s.GuardRepeat = 2 * time.Hour
	}
	if s.GuardMaxSession <= 0 {
		s.GuardMaxSession = 16 * time.Hour
	}
	return s
}

type endReason int

const (
	endCooldown endReason = iota
	endManual
	endSwitch
	endGuard
)

// Service is the tracking orchestrator. It owns every transition of the
// active session and serializes SDK events, cooldown confirmations and
// guard checks behind one mutex, mirroring the cooperative event loop the
// mobile runtime gives the app for free.
type Service struct {
	store    *Store
	settings Settings
	clock    quartz.Clock
	notifier notify.Notifier
	syncer   syncer.Syncer
	hub      *stream.Hub

	mu      sync.Mutex
	pending *ExitRegistry
	guard   *guardTimer
}

func NewService(store *Store, settings Settings, clock quartz.Clock, notifier notify.Notifier, sync syncer.Syncer, hub *stream.Hub) *Service {
	if clock == nil {
		clock = quartz.NewReal()
	}
	settings = settings.withDefaults()

	return &Service{
		store:    store,
		settings: settings,
		clock:    clock,
		notifier: notifier,
		syncer:   sync,
		hub:      hub,
		pending:  NewExitRegistry(clock, settings.ExitCooldown),
		guard:    newGuardTimer(clock),
	}
}

// HandleEnter processes a geofence ENTER signal.
func (s *Service) HandleEnter(ctx context.Context, userID string, ev GeofenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enterAt := ev.Timestamp
	if enterAt.IsZero() {
		enterAt = s.clock.Now()
	}

	// Re-entry inside the cooldown window: the exit never happened. The
	// session keeps its original enter_at and the guard keeps its schedule.
	if s.pending.Cancel(ev.LocationID) {
		log.Printf("re-entered %s within cooldown, exit discarded", ev.LocationName)
		return
	}

	active := s.store.Active(ctx)
	if active != nil {
		if active.LocationID == ev.LocationID {
			// Duplicate ENTER while already tracking here.
			return
		}
		// Location switch: confirm the previous session synchronously before
		// the new one exists, so the ledger never sees both at once.
		s.pending.Cancel(active.LocationID)
		s.confirmLocked(ctx, *active, s.clock.Now(), endSwitch)
	}

	t := ActiveTracking{
		UserID:       userID,
		LocationID:   ev.LocationID,
		LocationName: ev.LocationName,
		EnterAt:      enterAt,
	}
	if err := s.store.SetActive(ctx, t); err != nil {
		log.Printf("persist active tracking: %v", err)
		return
	}
	s.startGuardLocked(ctx, t)

	today, err := s.store.Daily(ctx, userID, dateOf(enterAt))
	if err != nil {
		log.Printf("read daily entry: %v", err)
	}
	if today == nil || today.FirstEntry == nil {
		firstEntry := enterAt
		err := s.store.MergeDaily(ctx, DailyEntry{
			UserID:       userID,
			Date:         dateOf(enterAt),
			LocationID:   ev.LocationID,
			LocationName: ev.LocationName,
			FirstEntry:   &firstEntry,
			Verified:     true,
			Source:       "gps",
		})
		if err != nil {
			log.Printf("record first entry: %v", err)
		}
		if s.notifier != nil {
			s.notifier.Arrival(ev.LocationName)
		}
	}

	if s.hub != nil {
		s.hub.StartTracking(userID, ev.LocationID, ev.LocationName, enterAt)
	}
}

// HandleExit processes a geofence EXIT signal. The session does not end
// yet: a cooldown timer is armed so boundary flapping cannot split it.
func (s *Service) HandleExit(ctx context.Context, userID string, ev GeofenceEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.store.Active(ctx)
	if active == nil || active.LocationID != ev.LocationID {
		log.Printf("exit for %s with no matching session, dropped", ev.LocationID)
		return
	}

	exitTime := ev.Timestamp
	if exitTime.IsZero() {
		exitTime = s.clock.Now()
	}

	// Schedule replaces any stale pending exit for the same location.
	s.pending.Schedule(ev.LocationID, ev.LocationName, exitTime, s.confirmPending)
}

// ManualExit ends the session immediately, bypassing the cooldown. Reports
// false when there is nothing to end.
func (s *Service) ManualExit(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.store.Active(ctx)
	if active == nil {
		log.Printf("manual exit with no active session, dropped")
		return false
	}

	s.pending.Cancel(active.LocationID)
	s.confirmLocked(ctx, *active, s.clock.Now(), endManual)
	return true
}

// Recover re-arms the session guard from the persisted row after a process
// restart, preserving the original schedule. Pending exit cooldowns are
// deliberately not rebuilt: an exit that arrived just before a crash is
// forgotten, and the session ends through the next exit signal or the
// guard ceiling.
func (s *Service) Recover(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.store.Active(ctx)
	if active == nil {
		return
	}
	log.Printf("recovered session at %s since %s", active.LocationName, active.EnterAt.Format(time.RFC3339))
	s.startGuardLocked(ctx, *active)
}

// Status reports the live tracking state for the UI card, including the
// cooldown countdown when an exit is pending.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.store.Active(ctx)
	if active == nil {
		return Status{}
	}

	st := Status{Tracking: true, Active: active}
	if exp := s.pending.CooldownExpiresAt(active.LocationID); !exp.IsZero() {
		st.CooldownExpiresAt = &exp
	}
	return st
}

// SetPauseSeconds is the pause/resume feature's write path into the session.
func (s *Service) SetPauseSeconds(ctx context.Context, seconds int) error {
	if seconds < 0 {
		seconds = 0
	}
	return s.store.UpdatePauseSeconds(ctx, seconds)
}

// Today returns the user's ledger row for the current day, nil when absent.
func (s *Service) Today(ctx context.Context, userID string) (*DailyEntry, error) {
	return s.store.Daily(ctx, userID, dateOf(s.clock.Now()))
}

// DailyFor returns the user's ledger row for a date (YYYY-MM-DD).
func (s *Service) DailyFor(ctx context.Context, userID, date string) (*DailyEntry, error) {
	return s.store.Daily(ctx, userID, date)
}

// confirmPending runs when a cooldown expires with no re-entry.
func (s *Service) confirmPending(p PendingExit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := context.Background()

	active := s.store.Active(ctx)
	if active == nil {
		log.Printf("stale exit confirmation for %s, session already ended", p.LocationID)
		return
	}
	if active.LocationID != p.LocationID {
		// A location switch already confirmed this exit synchronously;
		// running it again would double-count the session.
		return
	}
	s.confirmLocked(ctx, *active, p.ExitTime, endCooldown)
}

// confirmLocked finalizes an exit: computes the worked duration, clears the
// active row, folds the result into the daily ledger and fires the
// downstream signals. Callers hold s.mu.
func (s *Service) confirmLocked(ctx context.Context, active ActiveTracking, exitTime time.Time, reason endReason) {
	pause := time.Duration(s.store.PauseSeconds(ctx)) * time.Second

	// Pause time comes off at second precision before minute rounding.
	worked := exitTime.Sub(active.EnterAt) - pause
	if worked < 0 {
		worked = 0
	}
	worked -= s.settings.ExitAdjustment
	if worked < 0 {
		worked = 0
	}
	recordedExit := exitTime.Add(-s.settings.ExitAdjustment)

	if err := s.store.ClearActive(ctx); err != nil {
		log.Printf("clear active tracking: %v", err)
	}
	s.guard.Cancel()

	minutes := int(math.Round(worked.Minutes()))
	breakMinutes := int(math.Ceil(pause.Minutes()))

	entry := DailyEntry{
		UserID:       active.UserID,
		Date:         dateOf(active.EnterAt),
		TotalMinutes: minutes,
		BreakMinutes: breakMinutes,
		LocationID:   active.LocationID,
		LocationName: active.LocationName,
		LastExit:     &recordedExit,
		Verified:     true,
		Source:       "gps",
	}
	if err := s.store.MergeDaily(ctx, entry); err != nil {
		log.Printf("merge daily hours: %v", err)
	}

	if s.notifier != nil {
		if reason == endGuard {
			s.notifier.Simple("Tracking auto-ended",
				fmt.Sprintf("The session at %s exceeded %d hours and was ended automatically", active.LocationName, int(s.settings.GuardMaxSession.Hours())))
		} else {
			total := minutes
			if today, err := s.store.Daily(ctx, active.UserID, entry.Date); err == nil && today != nil {
				total = today.TotalMinutes
			}
			s.notifier.EndOfDay(total/60, total%60, active.LocationName)
		}
	}

	if s.hub != nil {
		s.hub.ResetTracking(active.UserID)
		s.hub.ReloadToday(active.UserID)
	}
	if s.syncer != nil {
		go s.syncer.SyncNow(active.UserID)
	}
}

// startGuardLocked (re)arms the session guard for a session. Sessions
// already past the ceiling are ended on the spot.
func (s *Service) startGuardLocked(ctx context.Context, t ActiveTracking) {
	s.guard.Cancel()

	elapsed := s.clock.Since(t.EnterAt)
	switch {
	case elapsed >= s.settings.GuardMaxSession:
		s.forceEndLocked(ctx, t)
	case elapsed >= s.settings.GuardFirstCheck:
		s.guardCheckLocked(ctx)
	default:
		s.guard.Arm(s.settings.GuardFirstCheck-elapsed, s.guardCheck)
	}
}

func (s *Service) guardCheck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guardCheckLocked(context.Background())
}

// guardCheckLocked is one periodic safety evaluation. It works purely off
// the persisted row, so a check firing after the session already ended
// through a normal path is a clean no-op.
func (s *Service) guardCheckLocked(ctx context.Context) {
	active := s.store.Active(ctx)
	if active == nil {
		s.guard.Cancel()
		return
	}

	elapsed := s.clock.Since(active.EnterAt)
	if elapsed >= s.settings.GuardMaxSession {
		s.forceEndLocked(ctx, *active)
		return
	}

	if s.notifier != nil {
		s.notifier.SessionGuard(active.LocationName, active.LocationID, int(elapsed.Hours()))
	}
	s.guard.Arm(s.settings.GuardRepeat, s.guardCheck)
}

// forceEndLocked ends a runaway session at the ceiling, bypassing the
// cooldown. A missed exit signal must never pin a location as active
// forever.
func (s *Service) forceEndLocked(ctx context.Context, t ActiveTracking) {
	log.Printf("session at %s exceeded %s, auto-ending", t.LocationName, s.settings.GuardMaxSession)
	s.pending.Cancel(t.LocationID)
	s.confirmLocked(ctx, t, s.clock.Now(), endGuard)
}

func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}
