package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// RouteCatalog is the read side of the route table.
type RouteCatalog interface {
	Route(ctx context.Context, id string) (*domain.Route, error)
	List(ctx context.Context) ([]domain.Route, error)
}

// RouteHandler serves the route table to observers.
type RouteHandler struct {
	catalog RouteCatalog
	refresh func(ctx context.Context) error
}

// NewRouteHandler creates a RouteHandler. refresh is invoked by the admin
// refresh endpoint and should propagate the change to every instance.
func NewRouteHandler(catalog RouteCatalog, refresh func(ctx context.Context) error) *RouteHandler {
	return &RouteHandler{catalog: catalog, refresh: refresh}
}

// List handles GET /v1/routes.
//
// @Summary      List routes
// @Tags         routes
// @Produce      json
// @Success      200  {object}  routeListResponse
// @Failure      500  {object}  errorResponse
// @Router       /v1/routes [get]
func (h *RouteHandler) List(c echo.Context) error {
	routes, err := h.catalog.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, routeListResponse{Routes: routes, Count: len(routes)})
}

// Get handles GET /v1/routes/:route_id.
//
// @Summary      Get one route
// @Tags         routes
// @Produce      json
// @Param        route_id  path      string  true  "Route id"
// @Success      200       {object}  domain.Route
// @Failure      404       {object}  errorResponse
// @Router       /v1/routes/{route_id} [get]
func (h *RouteHandler) Get(c echo.Context) error {
	route, err := h.catalog.Route(c.Request().Context(), c.Param("route_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, route)
}

// Refresh handles POST /v1/routes/refresh — drops cached routes everywhere and
// tells observers to refetch.
//
// @Summary      Reload routes from the route store
// @Tags         routes
// @Produce      json
// @Security     BearerAuth
// @Success      202  {object}  acceptedResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /v1/routes/refresh [post]
func (h *RouteHandler) Refresh(c echo.Context) error {
	if err := h.refresh(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, acceptedResponse{Message: "route refresh announced"})
}
