package ports

import (
	"context"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// RouteStore is the read-only view of the route authoring service.
type RouteStore interface {
	// FindByID returns domain.ErrRouteNotFound when the id is unknown.
	FindByID(ctx context.Context, id string) (*domain.Route, error)
	List(ctx context.Context) ([]domain.Route, error)
}

// RouteReader resolves routes for the ingest engine. RouteCatalog is the
// production implementation.
type RouteReader interface {
	Route(ctx context.Context, id string) (*domain.Route, error)
}
