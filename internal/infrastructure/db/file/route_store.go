// Package file serves routes from a local YAML or JSON document. It is the
// development stand-in for the route authoring service.
package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

type routeEntry struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Color       string      `yaml:"color"`
	Image       string      `yaml:"image"`
	Coordinates [][]float64 `yaml:"coordinates"`
}

type routesDocument struct {
	Routes []routeEntry `yaml:"routes"`
}

// RouteStore implements ports.RouteStore. The file is re-read on every List so
// edits are picked up after a cache invalidation.
type RouteStore struct {
	path string
}

// NewRouteStore validates that path parses and returns a store over it.
func NewRouteStore(path string) (*RouteStore, error) {
	s := &RouteStore{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RouteStore) FindByID(ctx context.Context, id string) (*domain.Route, error) {
	routes, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		if routes[i].ID == id {
			return &routes[i], nil
		}
	}
	return nil, domain.ErrRouteNotFound
}

func (s *RouteStore) List(_ context.Context) ([]domain.Route, error) {
	return s.load()
}

func (s *RouteStore) load() ([]domain.Route, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	entries, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return entries, nil
}

// Parse decodes either {routes: [...]} or a bare list of routes. JSON input is
// accepted as YAML.
func Parse(raw []byte) ([]domain.Route, error) {
	var doc routesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil || doc.Routes == nil {
		var list []routeEntry
		if listErr := yaml.Unmarshal(raw, &list); listErr != nil {
			if err != nil {
				return nil, err
			}
			return nil, listErr
		}
		doc.Routes = list
	}

	routes := make([]domain.Route, 0, len(doc.Routes))
	seen := make(map[string]bool, len(doc.Routes))
	for i, e := range doc.Routes {
		if e.ID == "" {
			return nil, fmt.Errorf("route %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("route %q: duplicate id", e.ID)
		}
		seen[e.ID] = true

		r := domain.Route{ID: e.ID, Name: e.Name, Color: e.Color, Image: e.Image}
		for j, c := range e.Coordinates {
			if len(c) != 2 {
				return nil, fmt.Errorf("route %q waypoint %d: expected [lat, lng]", e.ID, j)
			}
			r.Waypoints = append(r.Waypoints, domain.Point{Lat: c[0], Lng: c[1]})
		}
		routes = append(routes, r)
	}
	return routes, nil
}
