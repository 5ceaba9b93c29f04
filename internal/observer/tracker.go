package observer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/geo"
)

// SimState is the local state of one vehicle's dead-reckoning simulation.
type SimState string

const (
	SimIdle       SimState = "idle"
	SimSimulating SimState = "simulating"
	SimArrived    SimState = "arrived"
)

// materialDistanceKm is how far an untimestamped update must move before it
// replaces a running simulation.
const materialDistanceKm = 0.001

var ErrRouteUnavailable = errors.New("route unavailable")

// Config holds the simulator tunables. Zero values fall back to the same
// defaults the server uses.
type Config struct {
	ArrivalThresholdKm float64
	DefaultSpeedKmh    float64
	MinSegmentDuration time.Duration
	// AutoSimulate restarts a simulation from every adopted running state.
	AutoSimulate       bool
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ArrivalThresholdKm <= 0 {
		c.ArrivalThresholdKm = 0.05
	}
	if c.DefaultSpeedKmh <= 0 {
		c.DefaultSpeedKmh = 20
	}
	if c.MinSegmentDuration <= 0 {
		c.MinSegmentDuration = 300 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// SimOptions customises StartSimulation.
type SimOptions struct {
	// RouteID overrides the route held in the authoritative copy.
	RouteID  string
	SpeedKmh float64
	// Loop restarts from the first segment instead of arriving.
	Loop     bool
}

// View is what an observer displays for one vehicle: the authoritative copy,
// or the simulation overlay while one is running.
type View struct {
	VehicleID  string
	RouteID    string
	Position   domain.Point
	SpeedKmh   float64
	EtaSeconds int
	Status     domain.VehicleStatus
	State      SimState
	UpdatedAt  time.Time
}

type segment struct {
	from, to domain.Point
	km       float64
	dur      time.Duration
}

type simulation struct {
	routeID   string
	waypoints []domain.Point
	segments  []segment
	idx       int
	segStart  time.Time
	speed     float64
	loop      bool

	serverObservedAt time.Time
	seed             domain.Point

	frame     FrameID
	cancelled bool
	done      bool
}

type vehicleEntry struct {
	auth    domain.VehicleState
	hasAuth bool
	display View
	sim     *simulation
}

// Tracker holds an observer's read-only copy of authoritative vehicle state
// and the per-vehicle simulations animated on a FrameLoop. Push and polling
// both feed Reconcile.
type Tracker struct {
	loop *FrameLoop
	cfg  Config
	log  zerolog.Logger

	mu       sync.Mutex
	routes   map[string]domain.Route
	vehicles map[string]*vehicleEntry
}

func NewTracker(loop *FrameLoop, cfg Config, log zerolog.Logger) *Tracker {
	return &Tracker{
		loop:     loop,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "tracker").Logger(),
		routes:   make(map[string]domain.Route),
		vehicles: make(map[string]*vehicleEntry),
	}
}

// SetRoutes replaces the route table. Simulations on routes that are gone or
// no longer routable are cancelled in place.
func (t *Tracker) SetRoutes(routes []domain.Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes = make(map[string]domain.Route, len(routes))
	for _, r := range routes {
		t.routes[r.ID] = r
	}
	for id, e := range t.vehicles {
		if e.sim == nil {
			continue
		}
		if r, ok := t.routes[e.sim.routeID]; !ok || !r.Routable() {
			t.log.Info().Str("vehicle", id).Str("route", e.sim.routeID).Msg("route removed, simulation cancelled")
			t.cancelLocked(e)
		}
	}
}

// ApplySnapshot replaces the observer's copy with a snapshot. Vehicles absent
// from it are dropped and their simulations cancelled; the rest are reconciled.
func (t *Tracker) ApplySnapshot(states []domain.VehicleState) {
	keep := make(map[string]struct{}, len(states))
	for _, s := range states {
		keep[s.VehicleID] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.vehicles {
		if _, ok := keep[id]; ok {
			continue
		}
		t.cancelLocked(e)
		delete(t.vehicles, id)
		t.log.Debug().Str("vehicle", id).Msg("vehicle missing from snapshot, dropped")
	}
	for _, s := range states {
		t.reconcileLocked(s)
	}
}

// ApplyUpdate reconciles a single pushed update.
func (t *Tracker) ApplyUpdate(state domain.VehicleState) {
	t.Reconcile(state)
}

// Reconcile decides whether state replaces what the observer holds for the
// vehicle and reports whether it was adopted. A running simulation yields to
// an update that is not older than the state it was seeded from; an older
// update is dropped. Updates without a timestamp replace a simulation only
// when they move the vehicle.
func (t *Tracker) Reconcile(state domain.VehicleState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconcileLocked(state)
}

func (t *Tracker) reconcileLocked(state domain.VehicleState) bool {
	if state.VehicleID == "" {
		return false
	}

	e := t.entryLocked(state.VehicleID)

	if e.hasAuth && !state.UpdatedAt.IsZero() && state.UpdatedAt.Equal(e.auth.UpdatedAt) && state.Position == e.auth.Position {
		// Redelivery of the held copy, typically a poll racing the stream.
		return false
	}

	if sim := e.sim; sim != nil {
		if state.UpdatedAt.IsZero() {
			if geo.DistanceKm(state.Position, sim.seed) <= materialDistanceKm {
				return false
			}
		} else if state.UpdatedAt.Before(sim.serverObservedAt) {
			t.log.Debug().Str("vehicle", state.VehicleID).Time("updated_at", state.UpdatedAt).Msg("stale update discarded")
			return false
		}
		t.cancelLocked(e)
	} else if e.hasAuth && !state.UpdatedAt.IsZero() && state.UpdatedAt.Before(e.auth.UpdatedAt) {
		return false
	}

	e.auth = state
	e.hasAuth = true
	e.display = View{
		VehicleID:  state.VehicleID,
		RouteID:    state.RouteID,
		Position:   state.Position,
		SpeedKmh:   state.SpeedKmh,
		EtaSeconds: state.EtaSeconds,
		Status:     state.Status,
		State:      SimIdle,
		UpdatedAt:  state.UpdatedAt,
	}

	if t.cfg.AutoSimulate && state.Status == domain.StatusRunning {
		if r, ok := t.routes[state.RouteID]; ok && r.Routable() {
			if err := t.startLocked(state.VehicleID, e, SimOptions{}); err != nil {
				t.log.Debug().Err(err).Str("vehicle", state.VehicleID).Msg("simulation not restarted")
			}
		}
	}
	return true
}

// StartSimulation begins dead-reckoning the vehicle along its route, replacing
// any simulation already running for it.
func (t *Tracker) StartSimulation(vehicleID string, opts SimOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked(vehicleID, t.entryLocked(vehicleID), opts)
}

func (t *Tracker) startLocked(vehicleID string, e *vehicleEntry, opts SimOptions) error {
	routeID := opts.RouteID
	if routeID == "" {
		routeID = e.auth.RouteID
	}
	route, ok := t.routes[routeID]
	if !ok || !route.Routable() {
		return fmt.Errorf("simulate %q on route %q: %w", vehicleID, routeID, ErrRouteUnavailable)
	}

	t.cancelLocked(e)

	seed := route.Waypoints[0]
	if e.hasAuth && geo.Finite(e.auth.Position) {
		seed = e.auth.Position
	}

	speed := opts.SpeedKmh
	if speed <= 0 {
		speed = e.auth.SpeedKmh
	}
	if speed <= 0 {
		speed = t.cfg.DefaultSpeedKmh
	}

	sim := &simulation{
		routeID:          routeID,
		waypoints:        append([]domain.Point(nil), route.Waypoints...),
		segments:         t.buildSegments(route.Waypoints, speed),
		speed:            speed,
		loop:             opts.Loop,
		serverObservedAt: e.auth.UpdatedAt,
		seed:             seed,
	}

	idx, frac := geo.ProjectOntoPolyline(sim.waypoints, seed)
	if idx < 0 {
		idx, frac = 0, 0
	}
	sim.idx = idx
	back := time.Duration(inverseEase(frac) * float64(sim.segments[idx].dur))
	sim.segStart = t.cfg.Now().Add(-back)

	e.sim = sim
	e.display.VehicleID = vehicleID
	e.display.RouteID = routeID
	e.display.Position = seed
	e.display.SpeedKmh = speed
	e.display.Status = domain.StatusRunning
	e.display.State = SimSimulating

	t.scheduleLocked(vehicleID, sim)
	t.log.Debug().Str("vehicle", vehicleID).Str("route", routeID).Int("segment", idx).Float64("speed_kmh", speed).Msg("simulation started")
	return nil
}

func (t *Tracker) buildSegments(waypoints []domain.Point, speed float64) []segment {
	segs := make([]segment, 0, len(waypoints)-1)
	for i := 0; i < len(waypoints)-1; i++ {
		km := geo.DistanceKm(waypoints[i], waypoints[i+1])
		dur := time.Duration(km / speed * float64(time.Hour))
		if dur < t.cfg.MinSegmentDuration {
			dur = t.cfg.MinSegmentDuration
		}
		segs = append(segs, segment{from: waypoints[i], to: waypoints[i+1], km: km, dur: dur})
	}
	return segs
}

func (t *Tracker) scheduleLocked(vehicleID string, sim *simulation) {
	sim.frame = t.loop.RequestFrame(func(now time.Time) { t.step(vehicleID, sim, now) })
}

// step advances one simulation by one frame. A frame whose simulation has been
// replaced or cancelled does nothing.
func (t *Tracker) step(vehicleID string, sim *simulation, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.vehicles[vehicleID]
	if !ok || e.sim != sim || sim.cancelled || sim.done {
		return
	}

	elapsed := now.Sub(sim.segStart)
	if elapsed >= sim.segments[sim.idx].dur {
		// Overshoot carries into the following segments.
		for elapsed >= sim.segments[sim.idx].dur {
			elapsed -= sim.segments[sim.idx].dur
			sim.idx++
			if sim.idx < len(sim.segments) {
				continue
			}
			if !sim.loop {
				t.arriveLocked(vehicleID, e, sim.waypoints[len(sim.waypoints)-1])
				return
			}
			sim.idx = 0
		}
		sim.segStart = now.Add(-elapsed)
	}

	seg := sim.segments[sim.idx]
	progress := ease(float64(elapsed) / float64(seg.dur))
	pos := geo.Interpolate(seg.from, seg.to, progress)

	remaining, _ := geo.RemainingDistanceKm(sim.waypoints, pos)
	if !sim.loop && remaining <= t.cfg.ArrivalThresholdKm {
		t.arriveLocked(vehicleID, e, pos)
		return
	}

	eta := int(math.Round(remaining / sim.speed * 3600))
	if eta < 1 {
		eta = 1
	}
	e.display.Position = pos
	e.display.EtaSeconds = eta
	e.display.Status = domain.StatusRunning
	e.display.State = SimSimulating

	t.scheduleLocked(vehicleID, sim)
}

func (t *Tracker) arriveLocked(vehicleID string, e *vehicleEntry, pos domain.Point) {
	e.sim.done = true
	e.display.Position = pos
	e.display.EtaSeconds = 0
	e.display.Status = domain.StatusArrived
	e.display.State = SimArrived
	t.log.Debug().Str("vehicle", vehicleID).Str("route", e.sim.routeID).Msg("simulation arrived")
}

// Cancel stops the vehicle's simulation, leaving the last displayed position.
func (t *Tracker) Cancel(vehicleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.vehicles[vehicleID]; ok {
		t.cancelLocked(e)
	}
}

func (t *Tracker) cancelLocked(e *vehicleEntry) {
	if e.sim == nil {
		return
	}
	e.sim.cancelled = true
	t.loop.CancelFrame(e.sim.frame)
	e.sim = nil
	e.display.State = SimIdle
}

// State returns the simulation state, SimIdle for unknown vehicles.
func (t *Tracker) State(vehicleID string) SimState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.vehicles[vehicleID]; ok {
		return e.display.State
	}
	return SimIdle
}

func (t *Tracker) View(vehicleID string) (View, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.vehicles[vehicleID]
	if !ok {
		return View{}, false
	}
	return e.display, true
}

// Views returns every vehicle ordered by id.
func (t *Tracker) Views() []View {
	t.mu.Lock()
	out := make([]View, 0, len(t.vehicles))
	for _, e := range t.vehicles {
		out = append(out, e.display)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// CountdownETA returns the ETA to show at now. Simulated vehicles report the
// simulation's ETA; others count the last authoritative ETA down from its
// UpdatedAt.
func (t *Tracker) CountdownETA(vehicleID string, now time.Time) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.vehicles[vehicleID]
	if !ok {
		return 0, false
	}
	if e.sim != nil || !e.hasAuth {
		return e.display.EtaSeconds, true
	}
	if e.auth.Arrived() {
		return 0, true
	}
	left := e.auth.EtaSeconds - int(now.Sub(e.auth.UpdatedAt)/time.Second)
	if left < 0 {
		left = 0
	}
	return left, true
}

func (t *Tracker) entryLocked(vehicleID string) *vehicleEntry {
	e, ok := t.vehicles[vehicleID]
	if !ok {
		e = &vehicleEntry{display: View{VehicleID: vehicleID, State: SimIdle}}
		t.vehicles[vehicleID] = e
	}
	return e
}

// ease is quadratic ease-in-out on [0,1].
func ease(x float64) float64 {
	switch {
	case x <= 0:
		return 0
	case x >= 1:
		return 1
	case x < 0.5:
		return 2 * x * x
	default:
		return -1 + (4-2*x)*x
	}
}

// inverseEase returns x such that ease(x) == y.
func inverseEase(y float64) float64 {
	switch {
	case y <= 0:
		return 0
	case y >= 1:
		return 1
	case y < 0.5:
		return math.Sqrt(y / 2)
	default:
		return 1 - math.Sqrt((1-y)/2)
	}
}
