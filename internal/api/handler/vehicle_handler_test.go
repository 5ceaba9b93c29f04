package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubTracking struct {
	ingested  []ports.ReportInput
	ingestErr error
	vehicles  []domain.VehicleState
	nearby    []ports.NearbyVehicle
	nearbyIn  struct {
		center   domain.Point
		radiusKm float64
		limit    int
	}
}

func (s *stubTracking) Ingest(_ context.Context, in ports.ReportInput) (*domain.VehicleState, error) {
	if s.ingestErr != nil {
		return nil, s.ingestErr
	}
	s.ingested = append(s.ingested, in)
	return &domain.VehicleState{
		VehicleID:  in.VehicleID,
		Position:   domain.Point{Lat: *in.Lat, Lng: *in.Lng},
		Status:     domain.StatusRunning,
		EtaSeconds: 120,
		EtaMinutes: 2,
		UpdatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubTracking) Snapshot(_ context.Context) []domain.VehicleState { return s.vehicles }

func (s *stubTracking) Get(_ context.Context, id string) (*domain.VehicleState, error) {
	for _, v := range s.vehicles {
		if v.VehicleID == id {
			return &v, nil
		}
	}
	return nil, domain.ErrVehicleNotFound
}

func (s *stubTracking) Nearby(_ context.Context, center domain.Point, radiusKm float64, limit int) ([]ports.NearbyVehicle, error) {
	s.nearbyIn.center, s.nearbyIn.radiusKm, s.nearbyIn.limit = center, radiusKm, limit
	return s.nearby, nil
}

type stubDispatcher struct {
	batches [][]ports.ReportInput
	err     error
}

func (d *stubDispatcher) EnqueueBatch(_ context.Context, reports []ports.ReportInput) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.batches = append(d.batches, reports)
	return len(reports), nil
}

type stubDedup struct {
	claimed  map[string]bool
	released []string
	err      error
}

func (d *stubDedup) Claim(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.claimed == nil {
		d.claimed = make(map[string]bool)
	}
	if d.claimed[key] {
		return false, nil
	}
	d.claimed[key] = true
	return true, nil
}

func (d *stubDedup) Release(_ context.Context, key string) error {
	d.released = append(d.released, key)
	delete(d.claimed, key)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestVehicleHandler_Report_HappyPath(t *testing.T) {
	svc := &stubTracking{}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	e := newTestEcho()

	c, rec := jsonRequest(e, http.MethodPost, "/v1/vehicles/updates",
		`{"vehicle_id":"V1","route_id":"R1","lat":30.0,"lng":78.0,"speed_kmh":20,"occupancy":"Half","status":"running"}`)

	if err := h.Report(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(svc.ingested) != 1 {
		t.Fatalf("expected one ingest, got %d", len(svc.ingested))
	}
	in := svc.ingested[0]
	if *in.RouteID != "R1" || *in.SpeedKmh != 20 || *in.Occupancy != "Half" || *in.StatusHint != "running" {
		t.Errorf("report not mapped: %+v", in)
	}

	var resp reportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Vehicle.VehicleID != "V1" || resp.Vehicle.EtaSeconds != 120 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestVehicleHandler_Report_OptionalFieldsStayNil(t *testing.T) {
	svc := &stubTracking{}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `{"vehicle_id":"V1","lat":0,"lng":0}`)

	if err := h.Report(c); err != nil {
		t.Fatalf("zero coordinates are valid, got: %v", err)
	}
	in := svc.ingested[0]
	if in.RouteID != nil || in.SpeedKmh != nil || in.StatusHint != nil {
		t.Errorf("expected omitted fields to be nil, got %+v", in)
	}
}

func TestVehicleHandler_Report_InvalidReports(t *testing.T) {
	tests := map[string]string{
		"missing vehicle id": `{"lat":30,"lng":78}`,
		"missing lat":        `{"vehicle_id":"V1","lng":78}`,
		"missing lng":        `{"vehicle_id":"V1","lat":30}`,
		"negative capacity":  `{"vehicle_id":"V1","lat":30,"lng":78,"capacity":-1}`,
		"latitude range":     `{"vehicle_id":"V1","lat":91,"lng":78}`,
		"longitude range":    `{"vehicle_id":"V1","lat":30,"lng":-181}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			svc := &stubTracking{}
			h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
			c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", body)

			err := h.Report(c)
			if !errors.Is(err, domain.ErrInvalidReport) {
				t.Fatalf("expected ErrInvalidReport, got: %v", err)
			}
			if len(svc.ingested) != 0 {
				t.Error("invalid report must not reach the service")
			}
		})
	}
}

func TestVehicleHandler_Report_MalformedJSON(t *testing.T) {
	h := NewVehicleHandler(&stubTracking{}, &stubDispatcher{}, nil, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `{"vehicle_id":`)

	if code := httpCode(t, h.Report(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestVehicleHandler_Report_ServiceErrorPropagates(t *testing.T) {
	svc := &stubTracking{ingestErr: domain.ErrInvalidReport}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `{"vehicle_id":"V1","lat":30,"lng":78}`)

	if err := h.Report(c); !errors.Is(err, domain.ErrInvalidReport) {
		t.Errorf("expected service error, got: %v", err)
	}
}

func TestVehicleHandler_Report_DriverBoundToOtherVehicle(t *testing.T) {
	svc := &stubTracking{}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `{"vehicle_id":"V2","lat":30,"lng":78}`)
	c.Set("role", domain.RoleDriver)
	c.Set("vehicle_id", "V1")

	if code := httpCode(t, h.Report(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
	if len(svc.ingested) != 0 {
		t.Error("forbidden report must not be ingested")
	}
}

func TestVehicleHandler_Report_AdminMayReportAnyVehicle(t *testing.T) {
	h := NewVehicleHandler(&stubTracking{}, &stubDispatcher{}, nil, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `{"vehicle_id":"V2","lat":30,"lng":78}`)
	c.Set("role", domain.RoleAdmin)
	c.Set("vehicle_id", "V1")

	if err := h.Report(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVehicleHandler_ReportBatch_Accepted(t *testing.T) {
	disp := &stubDispatcher{}
	h := NewVehicleHandler(&stubTracking{}, disp, nil, zerolog.Nop())
	c, rec := jsonRequest(newTestEcho(), http.MethodPost, "/",
		`[{"vehicle_id":"V1","lat":30,"lng":78},{"vehicle_id":"V1","lat":30.01,"lng":78.01}]`)

	if err := h.ReportBatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(disp.batches) != 1 || len(disp.batches[0]) != 2 || *disp.batches[0][1].Lat != 30.01 {
		t.Errorf("expected batch enqueued in order, got %+v", disp.batches)
	}
}

func TestVehicleHandler_ReportBatch_RejectsEmptyAndInvalid(t *testing.T) {
	disp := &stubDispatcher{}
	h := NewVehicleHandler(&stubTracking{}, disp, nil, zerolog.Nop())

	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `[]`)
	if code := httpCode(t, h.ReportBatch(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", code)
	}

	c, _ = jsonRequest(newTestEcho(), http.MethodPost, "/", `[{"vehicle_id":"V1","lat":30,"lng":78},{"lat":1,"lng":2}]`)
	err := h.ReportBatch(c)
	if !errors.Is(err, domain.ErrInvalidReport) || !strings.Contains(err.Error(), "report[1]") {
		t.Errorf("expected indexed ErrInvalidReport, got: %v", err)
	}
	if len(disp.batches) != 0 {
		t.Error("nothing should be enqueued when any report is invalid")
	}
}

func TestVehicleHandler_ReportBatch_IdempotencyKey(t *testing.T) {
	disp := &stubDispatcher{}
	dedup := &stubDedup{}
	h := NewVehicleHandler(&stubTracking{}, disp, dedup, zerolog.Nop())
	body := `[{"vehicle_id":"V1","lat":30,"lng":78}]`

	for i := 0; i < 2; i++ {
		c, rec := jsonRequest(newTestEcho(), http.MethodPost, "/", body)
		c.Request().Header.Set("Idempotency-Key", "batch-1")
		if err := h.ReportBatch(c); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		if rec.Code != http.StatusAccepted {
			t.Fatalf("attempt %d: expected 202, got %d", i, rec.Code)
		}
	}
	if len(disp.batches) != 1 {
		t.Errorf("expected the retried batch to be skipped, got %d enqueues", len(disp.batches))
	}
}

func TestVehicleHandler_ReportBatch_DedupErrorStillAccepts(t *testing.T) {
	disp := &stubDispatcher{}
	h := NewVehicleHandler(&stubTracking{}, disp, &stubDedup{err: errors.New("redis down")}, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `[{"vehicle_id":"V1","lat":30,"lng":78}]`)
	c.Request().Header.Set("Idempotency-Key", "k")

	if err := h.ReportBatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(disp.batches) != 1 {
		t.Error("expected batch enqueued despite dedup failure")
	}
}

func TestVehicleHandler_ReportBatch_EnqueueFailureReleasesKey(t *testing.T) {
	dedup := &stubDedup{}
	h := NewVehicleHandler(&stubTracking{}, &stubDispatcher{err: context.Canceled}, dedup, zerolog.Nop())
	c, _ := jsonRequest(newTestEcho(), http.MethodPost, "/", `[{"vehicle_id":"V1","lat":30,"lng":78}]`)
	c.Request().Header.Set("Idempotency-Key", "k")

	if code := httpCode(t, h.ReportBatch(c)); code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if len(dedup.released) != 1 || dedup.released[0] != "k" {
		t.Errorf("expected key released for retry, got %v", dedup.released)
	}
}

func TestVehicleHandler_List(t *testing.T) {
	svc := &stubTracking{vehicles: []domain.VehicleState{{VehicleID: "V1"}, {VehicleID: "V2"}}}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	c, rec := jsonRequest(newTestEcho(), http.MethodGet, "/v1/vehicles", "")

	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp vehicleListResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Count != 2 || resp.Vehicles[1].VehicleID != "V2" {
		t.Errorf("unexpected list: %+v", resp)
	}
}

func TestVehicleHandler_Get(t *testing.T) {
	svc := &stubTracking{vehicles: []domain.VehicleState{{VehicleID: "V1"}}}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())
	e := newTestEcho()

	c, rec := jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("vehicle_id")
	c.SetParamValues("V1")
	if err := h.Get(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", rec.Code, err)
	}

	c, _ = jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("vehicle_id")
	c.SetParamValues("V9")
	if err := h.Get(c); !errors.Is(err, domain.ErrVehicleNotFound) {
		t.Errorf("expected ErrVehicleNotFound, got: %v", err)
	}
}

func TestVehicleHandler_Nearby(t *testing.T) {
	svc := &stubTracking{nearby: []ports.NearbyVehicle{
		{Vehicle: domain.VehicleState{VehicleID: "V1"}, DistanceKm: 0.25},
	}}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())

	c, rec := jsonRequest(newTestEcho(), http.MethodGet, "/v1/vehicles/nearby?lat=30&lng=78&radius_km=2.5&limit=5", "")
	if err := h.Nearby(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.nearbyIn.radiusKm != 2.5 || svc.nearbyIn.limit != 5 || svc.nearbyIn.center.Lat != 30 {
		t.Errorf("query not bound: %+v", svc.nearbyIn)
	}

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	first := body["vehicles"].([]any)[0].(map[string]any)
	if first["vehicle_id"] != "V1" || first["distance_km"] != 0.25 {
		t.Errorf("expected flattened vehicle with distance, got %v", first)
	}
}

func TestVehicleHandler_Nearby_Defaults(t *testing.T) {
	svc := &stubTracking{}
	h := NewVehicleHandler(svc, &stubDispatcher{}, nil, zerolog.Nop())

	c, _ := jsonRequest(newTestEcho(), http.MethodGet, "/v1/vehicles/nearby?lat=30&lng=78", "")
	if err := h.Nearby(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.nearbyIn.radiusKm != defaultNearbyRadius || svc.nearbyIn.limit != defaultNearbyLimit {
		t.Errorf("expected defaults, got %+v", svc.nearbyIn)
	}
}

func TestVehicleHandler_Nearby_MissingCoordinates(t *testing.T) {
	h := NewVehicleHandler(&stubTracking{}, &stubDispatcher{}, nil, zerolog.Nop())

	c, _ := jsonRequest(newTestEcho(), http.MethodGet, "/v1/vehicles/nearby?lat=30", "")
	if code := httpCode(t, h.Nearby(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
