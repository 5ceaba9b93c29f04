package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/core/service"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/memory"
	"github.com/99minutos/transit-tracker/internal/infrastructure/realtime"
)

type routeList []domain.Route

func (r routeList) FindByID(_ context.Context, id string) (*domain.Route, error) {
	for _, route := range r {
		if route.ID == id {
			return &route, nil
		}
	}
	return nil, domain.ErrRouteNotFound
}

func (r routeList) List(_ context.Context) ([]domain.Route, error) { return r, nil }

type inlineDispatcher struct{ svc ports.TrackingService }

func (d inlineDispatcher) EnqueueBatch(ctx context.Context, reports []ports.ReportInput) (int, error) {
	for _, in := range reports {
		_, _ = d.svc.Ingest(ctx, in)
	}
	return len(reports), nil
}

func newTestRouter(t *testing.T, jwtSecret string) *echo.Echo {
	t.Helper()
	catalog := service.NewRouteCatalog(routeList{{
		ID:        "R1",
		Waypoints: []domain.Point{{Lat: 30.0, Lng: 78.0}, {Lat: 30.01, Lng: 78.01}, {Lat: 30.02, Lng: 78.02}},
	}}, zerolog.Nop())
	store := memory.NewVehicleStore()
	hub := realtime.NewHub(store, 8, zerolog.Nop())
	svc := service.NewTrackingService(catalog, store, hub, service.DefaultEngineConfig(), zerolog.Nop())

	return NewRouter(Dependencies{
		Tracking:   svc,
		Dispatcher: inlineDispatcher{svc: svc},
		Routes:     catalog,
		RefreshRoutes: func(context.Context) error {
			catalog.Invalidate()
			hub.RoutesChanged()
			return nil
		},
		Hub:       hub,
		JWTSecret: jwtSecret,
		Registry:  prometheus.NewRegistry(),
		Log:       zerolog.Nop(),
	})
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ReportThenRead(t *testing.T) {
	e := newTestRouter(t, "")

	rec := do(e, http.MethodPost, "/v1/vehicles/updates", `{"vehicle_id":"V1","route_id":"R1","lat":30.0,"lng":78.0,"speed_kmh":20}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/v1/vehicles/V1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var v domain.VehicleState
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Status != domain.StatusRunning || v.EtaSeconds <= 0 || v.RouteID != "R1" {
		t.Errorf("unexpected vehicle: %+v", v)
	}

	rec = do(e, http.MethodGet, "/v1/vehicles/nearby?lat=30&lng=78&radius_km=1", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"V1"`) {
		t.Errorf("expected V1 nearby, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_InvalidReportIs400WithEnvelope(t *testing.T) {
	e := newTestRouter(t, "")

	rec := do(e, http.MethodPost, "/v1/vehicles/updates", `{"lat":30,"lng":78}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "invalid report: vehicle_id is required" {
		t.Errorf("unexpected error message: %q", body.Error)
	}
}

func TestRouter_UnknownRouteStillAccepted(t *testing.T) {
	e := newTestRouter(t, "")

	rec := do(e, http.MethodPost, "/v1/vehicles/updates", `{"vehicle_id":"V1","route_id":"NOPE","lat":30,"lng":78}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"eta_seconds":60`) {
		t.Errorf("expected fallback eta, got %s", rec.Body.String())
	}
}

func TestRouter_NotFound(t *testing.T) {
	e := newTestRouter(t, "")

	for _, path := range []string{"/v1/vehicles/V404", "/v1/routes/R404"} {
		rec := do(e, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestRouter_RoutesAndOps(t *testing.T) {
	e := newTestRouter(t, "")

	for _, path := range []string{"/v1/routes", "/v1/routes/R1", "/v1/vehicles", "/health", "/health/ready", "/metrics"} {
		if rec := do(e, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + s
}

func TestRouter_AuthGuardsWriteEndpoints(t *testing.T) {
	const secret = "s3cret"
	e := newTestRouter(t, secret)
	report := `{"vehicle_id":"V1","lat":30,"lng":78}`

	if rec := do(e, http.MethodPost, "/v1/vehicles/updates", report, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	driver := signedToken(t, secret, jwt.MapClaims{"sub": "d1", "role": "driver", "vehicle_id": "V1"})
	if rec := do(e, http.MethodPost, "/v1/vehicles/updates", report, map[string]string{"Authorization": driver}); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for bound driver, got %d", rec.Code)
	}

	other := `{"vehicle_id":"V2","lat":30,"lng":78}`
	if rec := do(e, http.MethodPost, "/v1/vehicles/updates", other, map[string]string{"Authorization": driver}); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another vehicle, got %d", rec.Code)
	}

	if rec := do(e, http.MethodPost, "/v1/routes/refresh", "", map[string]string{"Authorization": driver}); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for driver refresh, got %d", rec.Code)
	}

	admin := signedToken(t, secret, jwt.MapClaims{"sub": "ops", "role": "admin"})
	if rec := do(e, http.MethodPost, "/v1/routes/refresh", "", map[string]string{"Authorization": admin}); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202 for admin refresh, got %d", rec.Code)
	}

	if rec := do(e, http.MethodGet, "/v1/vehicles", "", nil); rec.Code != http.StatusOK {
		t.Errorf("reads must stay public, got %d", rec.Code)
	}
}

func TestRouter_BatchIngest(t *testing.T) {
	e := newTestRouter(t, "")

	rec := do(e, http.MethodPost, "/v1/vehicles/updates/batch",
		`[{"vehicle_id":"V1","route_id":"R1","lat":30,"lng":78},{"vehicle_id":"V1","lat":30.02,"lng":78.02}]`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/v1/vehicles/V1", "", nil)
	var v domain.VehicleState
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Status != domain.StatusArrived {
		t.Errorf("expected the last report to win with arrival, got %+v", v)
	}
}
