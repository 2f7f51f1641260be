package tracking

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"

	"github.com/onsiteclub/onsite-timekeeper-sub004/internal/db"
)

// active_tracking is a singleton table: at most one row, always keyed 'current'.
const activeRowID = "current"

// Store owns the active_tracking singleton row and the daily_hours ledger.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Active reads the singleton row. Any failure degrades to "not tracking":
// the event pipeline must keep running when storage is flaky, and a false
// negative is preferable to a crashed pipeline.
func (s *Store) Active(ctx context.Context) *ActiveTracking {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, location_id, location_name, enter_at, pause_seconds
		FROM active_tracking WHERE id=$1
	`, activeRowID)

	var t ActiveTracking
	if err := row.Scan(&t.UserID, &t.LocationID, &t.LocationName, &t.EnterAt, &t.PauseSeconds); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("active tracking read failed, assuming idle: %v", err)
		}
		return nil
	}
	return &t
}

// SetActive replaces the singleton row. Last writer wins; the orchestrator
// never issues two competing writes.
func (s *Store) SetActive(ctx context.Context, t ActiveTracking) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO active_tracking (id, user_id, location_id, location_name, enter_at, pause_seconds)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE
		SET user_id=EXCLUDED.user_id, location_id=EXCLUDED.location_id,
		    location_name=EXCLUDED.location_name, enter_at=EXCLUDED.enter_at,
		    pause_seconds=EXCLUDED.pause_seconds
	`, activeRowID, t.UserID, t.LocationID, t.LocationName, t.EnterAt, t.PauseSeconds)
	return err
}

func (s *Store) ClearActive(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM active_tracking WHERE id=$1`, activeRowID)
	return err
}

// UpdatePauseSeconds is the pause/resume feature's write path into the
// current session. A no-op when no session is active.
func (s *Store) UpdatePauseSeconds(ctx context.Context, seconds int) error {
	_, err := s.db.Exec(ctx, `UPDATE active_tracking SET pause_seconds=$2 WHERE id=$1`, activeRowID, seconds)
	return err
}

// PauseSeconds returns 0 when no session is active or the read fails.
func (s *Store) PauseSeconds(ctx context.Context) int {
	var seconds int
	err := s.db.QueryRow(ctx, `SELECT pause_seconds FROM active_tracking WHERE id=$1`, activeRowID).Scan(&seconds)
	if err != nil {
		return 0
	}
	return seconds
}

// MergeDaily folds a confirmed session into the user's ledger row for the
// day. Minutes are added to the existing totals, never overwritten, and
// first_entry is written once per day.
func (s *Store) MergeDaily(ctx context.Context, e DailyEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO daily_hours (user_id, date, total_minutes, break_minutes, location_id, location_name, first_entry, last_exit, verified, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id, date) DO UPDATE
		SET total_minutes = daily_hours.total_minutes + EXCLUDED.total_minutes,
		    break_minutes = daily_hours.break_minutes + EXCLUDED.break_minutes,
		    location_id   = EXCLUDED.location_id,
		    location_name = EXCLUDED.location_name,
		    first_entry   = COALESCE(daily_hours.first_entry, EXCLUDED.first_entry),
		    last_exit     = COALESCE(EXCLUDED.last_exit, daily_hours.last_exit),
		    verified      = EXCLUDED.verified,
		    source        = EXCLUDED.source
	`, e.UserID, e.Date, e.TotalMinutes, e.BreakMinutes, e.LocationID, e.LocationName, e.FirstEntry, e.LastExit, e.Verified, e.Source)
	return err
}

// Daily returns the ledger row for one user and date, nil when absent.
func (s *Store) Daily(ctx context.Context, userID, date string) (*DailyEntry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT user_id, date, total_minutes, break_minutes, COALESCE(location_id,''), COALESCE(location_name,''), first_entry, last_exit, verified, source
		FROM daily_hours WHERE user_id=$1 AND date=$2
	`, userID, date)

	var e DailyEntry
	err := row.Scan(&e.UserID, &e.Date, &e.TotalMinutes, &e.BreakMinutes, &e.LocationID, &e.LocationName, &e.FirstEntry, &e.LastExit, &e.Verified, &e.Source)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
