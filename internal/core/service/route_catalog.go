package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/geo"
	"github.com/99minutos/transit-tracker/internal/core/ports"
)

// RouteCatalog caches the route table read from a RouteStore. The cache is
// filled lazily and dropped by Invalidate when the authoring service announces
// a change.
type RouteCatalog struct {
	store ports.RouteStore
	log   zerolog.Logger

	mu     sync.RWMutex
	gen    uint64 // bumped by Invalidate
	loaded bool
	byID   map[string]domain.Route
	order  []string
}

// NewRouteCatalog wraps store with a read-through cache.
func NewRouteCatalog(store ports.RouteStore, log zerolog.Logger) *RouteCatalog {
	return &RouteCatalog{
		store: store,
		log:   log.With().Str("component", "route_catalog").Logger(),
	}
}

// Route returns a copy of the route, or domain.ErrRouteNotFound.
func (c *RouteCatalog) Route(ctx context.Context, id string) (*domain.Route, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	r, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("route %q: %w", id, domain.ErrRouteNotFound)
	}
	return cloneRoute(r), nil
}

// List returns every cached route in store order.
func (c *RouteCatalog) List(ctx context.Context) ([]domain.Route, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Route, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *cloneRoute(c.byID[id]))
	}
	return out, nil
}

// Invalidate drops the cache; the next read reloads from the store.
func (c *RouteCatalog) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.loaded = false
	c.byID = nil
	c.order = nil
	c.mu.Unlock()
	c.log.Info().Msg("route cache invalidated")
}

// Refresh reloads the route table immediately. A table read before a
// concurrent Invalidate is discarded and read again.
func (c *RouteCatalog) Refresh(ctx context.Context) error {
	for {
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()

		routes, err := c.store.List(ctx)
		if err != nil {
			return fmt.Errorf("refresh routes: %w", err)
		}
		byID, order := c.index(routes)

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			c.log.Debug().Msg("routes changed during refresh, reloading")
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("refresh routes: %w", err)
			}
			continue
		}
		c.byID = byID
		c.order = order
		c.loaded = true
		c.mu.Unlock()

		c.log.Info().Int("routes", len(order)).Msg("route cache loaded")
		return nil
	}
}

func (c *RouteCatalog) index(routes []domain.Route) (map[string]domain.Route, []string) {
	byID := make(map[string]domain.Route, len(routes))
	order := make([]string, 0, len(routes))
	for _, r := range routes {
		if r.ID == "" {
			continue
		}
		if _, dup := byID[r.ID]; !dup {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
		if !r.Routable() {
			c.log.Warn().Str("route", r.ID).Int("waypoints", len(r.Waypoints)).Msg("route has too few waypoints to travel")
			continue
		}
		c.log.Debug().Str("route", r.ID).Float64("length_km", geo.PathLengthKm(r.Waypoints)).Msg("route loaded")
	}
	return byID, order
}

func (c *RouteCatalog) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

func cloneRoute(r domain.Route) *domain.Route {
	r.Waypoints = append([]domain.Point(nil), r.Waypoints...)
	return &r
}
