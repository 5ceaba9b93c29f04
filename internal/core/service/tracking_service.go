package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/geo"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/pkg/metrics"
)

const lockStripes = 64

// EngineConfig holds the ETA tunables.
type EngineConfig struct {
	DefaultSpeedKmh    float64
	ArrivalThresholdKm float64
	FallbackEtaSeconds int
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultSpeedKmh:    20,
		ArrivalThresholdKm: 0.05,
		FallbackEtaSeconds: 60,
	}
}

// Option customises a trackingService.
type Option func(*trackingService)

// WithClock replaces time.Now. Tests use it to drive UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *trackingService) { s.now = now }
}

// WithGeoIndex mirrors every accepted position into idx and enables Nearby.
func WithGeoIndex(idx ports.GeoIndex) Option {
	return func(s *trackingService) { s.geo = idx }
}

type trackingService struct {
	routes ports.RouteReader
	store  ports.VehicleStore
	dist   ports.Distributor
	geo    ports.GeoIndex
	cfg    EngineConfig
	now    func() time.Time
	log    zerolog.Logger

	stripes [lockStripes]sync.Mutex
}

// NewTrackingService returns a TrackingService implementation.
func NewTrackingService(
	routes ports.RouteReader,
	store ports.VehicleStore,
	dist ports.Distributor,
	cfg EngineConfig,
	log zerolog.Logger,
	opts ...Option,
) ports.TrackingService {
	s := &trackingService{
		routes: routes,
		store:  store,
		dist:   dist,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "tracking").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest validates a report, recomputes ETA and status, replaces the stored
// state for the vehicle and hands the result to the distributor.
func (s *trackingService) Ingest(ctx context.Context, in ports.ReportInput) (*domain.VehicleState, error) {
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	pos, err := validateReport(in)
	if err != nil {
		metrics.ReportsInvalidTotal.Inc()
		return nil, fmt.Errorf("ingest: %w", err)
	}

	mu := s.stripe(in.VehicleID)
	mu.Lock()
	defer mu.Unlock()

	prev, hadPrev := s.store.Get(in.VehicleID)

	next := domain.VehicleState{
		VehicleID: in.VehicleID,
		Position:  pos,
		SpeedKmh:  s.cfg.DefaultSpeedKmh,
		Status:    domain.StatusRunning,
		Occupancy: in.Occupancy,
		Capacity:  in.Capacity,
	}
	if in.SpeedKmh != nil && *in.SpeedKmh > 0 && !math.IsInf(*in.SpeedKmh, 0) {
		next.SpeedKmh = *in.SpeedKmh
	}
	if in.RouteID != nil && *in.RouteID != "" {
		next.RouteID = *in.RouteID
	} else if hadPrev {
		next.RouteID = prev.RouteID
	}

	s.estimate(ctx, &next)

	if hadPrev && prev.Arrived() && prev.RouteID == next.RouteID && next.RouteID != "" {
		next.Status = domain.StatusArrived
		next.EtaSeconds = 0
	}

	if in.StatusHint != nil && !domain.VehicleStatus(*in.StatusHint).Valid() {
		metrics.StatusHintsUnknownTotal.Inc()
		s.log.Warn().
			Str("vehicle", in.VehicleID).
			Str("hint", *in.StatusHint).
			Msg("unknown status hint")
	} else if in.StatusHint != nil && domain.VehicleStatus(*in.StatusHint) != next.Status {
		s.log.Debug().
			Str("vehicle", in.VehicleID).
			Str("hint", *in.StatusHint).
			Str("computed", string(next.Status)).
			Msg("status hint ignored")
	}

	next.EtaMinutes = etaMinutes(next.EtaSeconds)

	now := s.now()
	if hadPrev && prev.UpdatedAt.After(now) {
		now = prev.UpdatedAt
	}
	next.UpdatedAt = now

	s.store.Put(next)
	s.dist.Publish(next)
	metrics.ReportsIngestedTotal.WithLabelValues(string(next.Status)).Inc()

	if s.geo != nil {
		if err := s.geo.Upsert(ctx, next.VehicleID, next.Position); err != nil {
			metrics.GeoIndexErrorsTotal.WithLabelValues("upsert").Inc()
			s.log.Warn().Err(err).Str("vehicle", next.VehicleID).Msg("geo index upsert failed")
		}
	}

	s.log.Debug().
		Str("vehicle", next.VehicleID).
		Str("route", next.RouteID).
		Int("eta_seconds", next.EtaSeconds).
		Str("status", string(next.Status)).
		Msg("report ingested")

	out := next
	return &out, nil
}

// estimate fills EtaSeconds and Status. An unresolvable route falls back to a
// fixed ETA and never surfaces as an error.
func (s *trackingService) estimate(ctx context.Context, v *domain.VehicleState) {
	route, err := s.resolveRoute(ctx, v.RouteID)
	if err != nil {
		metrics.RouteUnresolvedTotal.Inc()
		s.log.Warn().Err(err).Str("vehicle", v.VehicleID).Str("route", v.RouteID).Msg("route unresolved, using fallback eta")
		v.EtaSeconds = s.cfg.FallbackEtaSeconds
		v.Status = domain.StatusRunning
		return
	}

	remainingKm, _ := geo.RemainingDistanceKm(route.Waypoints, v.Position)
	if remainingKm <= s.cfg.ArrivalThresholdKm {
		v.EtaSeconds = 0
		v.Status = domain.StatusArrived
		return
	}

	eta := int(math.Round(remainingKm / v.SpeedKmh * 3600))
	if eta < 1 {
		// A running vehicle never reports zero.
		eta = 1
	}
	v.EtaSeconds = eta
	v.Status = domain.StatusRunning
}

func (s *trackingService) resolveRoute(ctx context.Context, routeID string) (*domain.Route, error) {
	if routeID == "" {
		return nil, errors.New("report has no route")
	}
	route, err := s.routes.Route(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if len(route.Waypoints) == 0 {
		return nil, fmt.Errorf("route %q has no waypoints", routeID)
	}
	return route, nil
}

// Snapshot returns every vehicle ordered by id.
func (s *trackingService) Snapshot(_ context.Context) []domain.VehicleState {
	return s.store.All()
}

// Get returns domain.ErrVehicleNotFound for unknown ids.
func (s *trackingService) Get(_ context.Context, vehicleID string) (*domain.VehicleState, error) {
	v, ok := s.store.Get(vehicleID)
	if !ok {
		return nil, fmt.Errorf("get vehicle %q: %w", vehicleID, domain.ErrVehicleNotFound)
	}
	return &v, nil
}

// Nearby returns vehicles within radiusKm of center, closest first. Without a
// geo index it scans the in-memory map.
func (s *trackingService) Nearby(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]ports.NearbyVehicle, error) {
	if !geo.Finite(center) || radiusKm <= 0 {
		return nil, fmt.Errorf("nearby: %w: center and positive radius required", domain.ErrInvalidReport)
	}

	if s.geo == nil {
		return s.scanNearby(center, radiusKm, limit), nil
	}

	hits, err := s.geo.Nearby(ctx, center, radiusKm, limit)
	if err != nil {
		metrics.GeoIndexErrorsTotal.WithLabelValues("nearby").Inc()
		s.log.Warn().Err(err).Msg("geo index nearby failed, scanning memory")
		return s.scanNearby(center, radiusKm, limit), nil
	}

	out := make([]ports.NearbyVehicle, 0, len(hits))
	for _, h := range hits {
		v, ok := s.store.Get(h.VehicleID)
		if !ok {
			continue
		}
		out = append(out, ports.NearbyVehicle{Vehicle: v, DistanceKm: h.DistanceKm})
	}
	return out, nil
}

func (s *trackingService) scanNearby(center domain.Point, radiusKm float64, limit int) []ports.NearbyVehicle {
	var out []ports.NearbyVehicle
	for _, v := range s.store.All() {
		if d := geo.DistanceKm(center, v.Position); d <= radiusKm {
			out = append(out, ports.NearbyVehicle{Vehicle: v, DistanceKm: d})
		}
	}
	sortNearby(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *trackingService) stripe(vehicleID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(vehicleID))
	return &s.stripes[h.Sum32()%lockStripes]
}

func validateReport(in ports.ReportInput) (domain.Point, error) {
	if in.VehicleID == "" {
		return domain.Point{}, fmt.Errorf("%w: vehicle id is required", domain.ErrInvalidReport)
	}
	if in.Lat == nil || in.Lng == nil {
		return domain.Point{}, fmt.Errorf("%w: lat and lng are required", domain.ErrInvalidReport)
	}
	p := domain.Point{Lat: *in.Lat, Lng: *in.Lng}
	if !geo.Finite(p) {
		return domain.Point{}, fmt.Errorf("%w: coordinates must be finite", domain.ErrInvalidReport)
	}
	return p, nil
}

func etaMinutes(seconds int) int {
	return (seconds + 59) / 60
}

func sortNearby(vs []ports.NearbyVehicle) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].DistanceKm != vs[j].DistanceKm {
			return vs[i].DistanceKm < vs[j].DistanceKm
		}
		return vs[i].Vehicle.VehicleID < vs[j].Vehicle.VehicleID
	})
}
