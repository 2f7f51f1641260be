package location

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(t *testing.T) (*fiber.App, pgxmock.PgxPoolIface) {
	t.Helper()
	svc, mock := newServiceMock(t)

	app := fiber.New()
	stubAuth := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/locations"), svc, stubAuth)
	return app, mock
}

func TestCreateEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectQuery(`INSERT INTO locations`).
		WithArgs(pgxmock.AnyArg(), "Baustelle Nord", "", 53.55, 9.99, float64(100), "user-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	body := `{"name":"Baustelle Nord","lat":53.55,"lng":9.99}`
	req := httptest.NewRequest("POST", "/locations/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var loc Location
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.CreatedBy != "user-1" {
		t.Fatalf("expected owner from token, got %q", loc.CreatedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateEndpointRejectsMissingName(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest("POST", "/locations/", strings.NewReader(`{"lat":1,"lng":2}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestResolveEndpoint(t *testing.T) {
	app, mock := newTestApp(t)
	createdAt := time.Now()

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("user-1").
		WillReturnRows(locationRows(
			Location{ID: "loc-1", Name: "Baustelle Nord", Lat: 53.55, Lng: 9.99, RadiusM: 200, CreatedBy: "user-1", CreatedAt: createdAt},
		))

	req := httptest.NewRequest("GET", "/locations/resolve?lat=53.5501&lng=9.9901", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var loc Location
	data, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(data, &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.ID != "loc-1" {
		t.Fatalf("unexpected location: %s", data)
	}
}

func TestResolveEndpointNotFound(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectQuery(`SELECT id, name`).
		WithArgs("user-1").
		WillReturnRows(locationRows())

	req := httptest.NewRequest("GET", "/locations/resolve?lat=1&lng=2", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectExec(`DELETE FROM locations`).
		WithArgs("loc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	req := httptest.NewRequest("DELETE", "/locations/loc-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
