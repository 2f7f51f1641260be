package tracking

import "time"

const (
	EventEnter = "enter"
	EventExit  = "exit"
)

// ActiveTracking is the persisted singleton "currently being tracked" record.
// Its existence is the sole source of truth for whether a session is running.
type ActiveTracking struct {
	UserID       string    `json:"user_id"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	EnterAt      time.Time `json:"enter_at"`
	PauseSeconds int       `json:"pause_seconds"`
}

// DailyEntry accumulates worked minutes for one user and calendar day.
// TotalMinutes only ever grows via additive merge.
type DailyEntry struct {
	UserID       string     `json:"user_id"`
	Date         string     `json:"date"`
	TotalMinutes int        `json:"total_minutes"`
	BreakMinutes int        `json:"break_minutes"`
	LocationID   string     `json:"location_id"`
	LocationName string     `json:"location_name"`
	FirstEntry   *time.Time `json:"first_entry,omitempty"`
	LastExit     *time.Time `json:"last_exit,omitempty"`
	Verified     bool       `json:"verified"`
	Source       string     `json:"source"`
}

// GeofenceEvent is one enter/exit signal delivered by the device-side
// geofencing SDK. Timestamp is the SDK's event time; zero means the SDK did
// not report one and the server clock is used instead.
type GeofenceEvent struct {
	Type         string    `json:"type"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	Timestamp    time.Time `json:"timestamp"`
}

// Status is the live tracking state returned to the UI.
type Status struct {
	Tracking          bool            `json:"tracking"`
	Active            *ActiveTracking `json:"active,omitempty"`
	CooldownExpiresAt *time.Time      `json:"cooldown_expires_at,omitempty"`
}
