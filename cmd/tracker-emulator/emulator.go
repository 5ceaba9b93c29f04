package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/infrastructure/db/file"
)

var occupancies = []string{"Low", "Half", "Full"}

// RouteSource lists the routes buses are assigned to.
type RouteSource interface {
	Routes(ctx context.Context) ([]domain.Route, error)
}

type fileRoutes struct{ store *file.RouteStore }

func (f fileRoutes) Routes(ctx context.Context) ([]domain.Route, error) {
	return f.store.List(ctx)
}

// Report is the body of POST /v1/vehicles/updates.
type Report struct {
	VehicleID string  `json:"vehicle_id"`
	RouteID   string  `json:"route_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpeedKmh  float64 `json:"speed_kmh"`
	Occupancy string  `json:"occupancy"`
	Status    string  `json:"status"`
}

// Sender delivers one report.
type Sender interface {
	Send(ctx context.Context, r Report) error
}

// Reporter posts reports to the tracker API.
type Reporter struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewReporter(baseURL, token string) *Reporter {
	return &Reporter{
		url:        strings.TrimRight(baseURL, "/") + "/v1/vehicles/updates",
		token:      token,
		httpClient: &http.Client{Timeout: 7 * time.Second},
	}
}

func (r *Reporter) Send(ctx context.Context, rep Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post report: http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

type bus struct {
	id      string
	routeID string
	idx     int
	offset  int
}

// Emulator moves each bus one waypoint per tick. Offsets keep buses on the
// same route out of step.
type Emulator struct {
	routes RouteSource
	sender Sender
	rnd    *rand.Rand
	log    zerolog.Logger
	buses  []*bus
}

func NewEmulator(routes RouteSource, sender Sender, n int, rnd *rand.Rand, log zerolog.Logger) *Emulator {
	e := &Emulator{
		routes: routes,
		sender: sender,
		rnd:    rnd,
		log:    log.With().Str("component", "emulator").Logger(),
	}
	for i := 0; i < n; i++ {
		e.buses = append(e.buses, &bus{id: fmt.Sprintf("E%d", i+1), offset: rnd.Intn(5)})
	}
	return e
}

// Run ticks shortly after start and then every interval until ctx is done.
func (e *Emulator) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTimer(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Tick(ctx)
			t.Reset(interval)
		}
	}
}

// Tick reloads the routes and sends one report per bus.
func (e *Emulator) Tick(ctx context.Context) {
	routes, err := e.routes.Routes(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("route fetch failed")
		return
	}
	byID := make(map[string]domain.Route, len(routes))
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		if len(r.Waypoints) == 0 {
			continue
		}
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}
	if len(ids) == 0 {
		e.log.Debug().Msg("no routes, skipping tick")
		return
	}

	for i, b := range e.buses {
		if _, ok := byID[b.routeID]; !ok {
			if b.routeID == "" {
				b.routeID = ids[i%len(ids)]
			} else {
				b.routeID = ids[e.rnd.Intn(len(ids))]
			}
			b.idx = e.rnd.Intn(3)
		}
		route := byID[b.routeID]
		pt := route.Waypoints[(b.idx+b.offset)%len(route.Waypoints)]
		b.idx++

		rep := Report{
			VehicleID: b.id,
			RouteID:   b.routeID,
			Lat:       pt.Lat,
			Lng:       pt.Lng,
			SpeedKmh:  float64(15 + e.rnd.Intn(35)),
			Occupancy: occupancies[e.rnd.Intn(len(occupancies))],
			Status:    string(domain.StatusRunning),
		}
		if err := e.sender.Send(ctx, rep); err != nil {
			e.log.Warn().Err(err).Str("bus", b.id).Msg("report failed")
			continue
		}
		e.log.Info().Str("bus", b.id).Str("route", b.routeID).Float64("lat", pt.Lat).Float64("lng", pt.Lng).Msg("reported")
	}
}
