package tracking

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	svc := NewService(NewStore(mock), Settings{}, nil, nil, nil, nil)

	app := fiber.New()
	stubAuth := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/tracking"), svc, stubAuth)
	return app, mock
}

func TestEventsEndpointAcceptsEnter(t *testing.T) {
	app, mock := newTestApp(t)

	enterAt := time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT user_id, location_id, location_name, enter_at, pause_seconds`).
		WithArgs("current").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO active_tracking`).
		WithArgs("current", "user-1", "site-a", "Site A", enterAt, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT user_id, date, total_minutes`).
		WithArgs("user-1", "2026-03-09").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO daily_hours`).
		WithArgs("user-1", "2026-03-09", 0, 0, "site-a", "Site A", pgxmock.AnyArg(), pgxmock.AnyArg(), true, "gps").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	body := `{"type":"enter","location_id":"site-a","location_name":"Site A","timestamp":"2026-03-09T07:30:00Z"}`
	req := httptest.NewRequest("POST", "/tracking/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEventsEndpointRejectsBadPayload(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"dwell","location_id":"site-a"}`},
		{"missing location", `{"type":"enter"}`},
		{"not json", `enter site-a`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/tracking/events", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: request failed: %v", tc.name, err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, resp.StatusCode)
		}
	}
}

func TestManualExitEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectQuery(`SELECT user_id, location_id, location_name, enter_at, pause_seconds`).
		WithArgs("current").
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest("POST", "/tracking/exit", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 with no session, got %d", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	enterAt := time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT user_id, location_id, location_name, enter_at, pause_seconds`).
		WithArgs("current").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "location_id", "location_name", "enter_at", "pause_seconds"}).
			AddRow("user-1", "site-a", "Site A", enterAt, 0))

	req := httptest.NewRequest("GET", "/tracking/status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var st Status
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.Tracking || st.Active == nil || st.Active.LocationID != "site-a" {
		t.Fatalf("unexpected status: %s", data)
	}
}

func TestPauseEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectExec(`UPDATE active_tracking SET pause_seconds`).
		WithArgs("current", 300).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	req := httptest.NewRequest("PUT", "/tracking/pause", strings.NewReader(`{"seconds":300}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTodayEndpointEmptyWhenAbsent(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectQuery(`SELECT user_id, date, total_minutes`).
		WithArgs("user-1", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	req := httptest.NewRequest("GET", "/tracking/today", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(data)) != "{}" {
		t.Fatalf("expected empty object, got %s", data)
	}
}

func TestHoursEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	firstEntry := time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)
	lastExit := firstEntry.Add(8 * time.Hour)
	mock.ExpectQuery(`SELECT user_id, date, total_minutes`).
		WithArgs("user-1", "2026-03-09").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "date", "total_minutes", "break_minutes", "location_id", "location_name", "first_entry", "last_exit", "verified", "source"}).
			AddRow("user-1", "2026-03-09", 478, 2, "site-a", "Site A", &firstEntry, &lastExit, true, "gps"))

	req := httptest.NewRequest("GET", "/tracking/hours/2026-03-09", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var entry DailyEntry
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.TotalMinutes != 478 || entry.BreakMinutes != 2 {
		t.Fatalf("unexpected entry: %s", data)
	}

	mock.ExpectQuery(`SELECT user_id, date, total_minutes`).
		WithArgs("user-1", "2026-03-10").
		WillReturnError(pgx.ErrNoRows)
	req = httptest.NewRequest("GET", "/tracking/hours/2026-03-10", nil)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for absent day, got %d", resp.StatusCode)
	}
}
