package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/pkg/metrics"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	defaultNearbyRadius = 1.0
	defaultNearbyLimit  = 20
)

// ReportDispatcher is the interface the handler uses to enqueue batched reports.
type ReportDispatcher interface {
	EnqueueBatch(ctx context.Context, reports []ports.ReportInput) (int, error)
}

// BatchDeduper guards batch submissions carrying an Idempotency-Key.
type BatchDeduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// VehicleHandler serves report ingestion and vehicle reads.
type VehicleHandler struct {
	svc        ports.TrackingService
	dispatcher ReportDispatcher
	dedup      BatchDeduper
	log        zerolog.Logger
}

// NewVehicleHandler creates a VehicleHandler. dedup may be nil, in which case
// Idempotency-Key is ignored.
func NewVehicleHandler(svc ports.TrackingService, dispatcher ReportDispatcher, dedup BatchDeduper, log zerolog.Logger) *VehicleHandler {
	return &VehicleHandler{svc: svc, dispatcher: dispatcher, dedup: dedup, log: log}
}

// Report handles POST /v1/vehicles/updates — applies one report synchronously.
//
// @Summary      Report a vehicle position
// @Tags         vehicles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      reportRequest  true  "Position report"
// @Success      200   {object}  reportResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /v1/vehicles/updates [post]
func (h *VehicleHandler) Report(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidReport, err.Error())
	}
	if err := authorizeReporter(c, req.VehicleID); err != nil {
		return err
	}

	state, err := h.svc.Ingest(c.Request().Context(), toReportInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reportResponse{Message: "update applied", Vehicle: *state})
}

// ReportBatch handles POST /v1/vehicles/updates/batch — enqueues reports for
// asynchronous ingest, returns 202. Reports for the same vehicle are applied
// in array order.
//
// @Summary      Report a batch of vehicle positions
// @Tags         vehicles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string           false  "Deduplicates retried submissions for one hour"
// @Param        body             body      []reportRequest  true   "Array of position reports"
// @Success      202              {object}  acceptedResponse
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      503              {object}  errorResponse
// @Router       /v1/vehicles/updates/batch [post]
func (h *VehicleHandler) ReportBatch(c echo.Context) error {
	var reqs []reportRequest
	if err := c.Bind(&reqs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(reqs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch cannot be empty")
	}

	inputs := make([]ports.ReportInput, 0, len(reqs))
	for i, req := range reqs {
		if err := c.Validate(&req); err != nil {
			return fmt.Errorf("%w: report[%d]: %s", domain.ErrInvalidReport, i, err.Error())
		}
		if err := authorizeReporter(c, req.VehicleID); err != nil {
			return err
		}
		inputs = append(inputs, toReportInput(req))
	}

	ctx := c.Request().Context()
	key := c.Request().Header.Get(idempotencyHeader)
	if key != "" && h.dedup != nil {
		fresh, err := h.dedup.Claim(ctx, key)
		switch {
		case err != nil:
			h.log.Warn().Err(err).Str("key", key).Msg("idempotency check failed, accepting anyway")
		case !fresh:
			metrics.BatchDedupTotal.WithLabelValues("hit").Inc()
			return c.JSON(http.StatusAccepted, acceptedResponse{Message: "batch already accepted"})
		default:
			metrics.BatchDedupTotal.WithLabelValues("miss").Inc()
		}
	}

	n, err := h.dispatcher.EnqueueBatch(ctx, inputs)
	if err != nil {
		if key != "" && h.dedup != nil && n == 0 {
			if relErr := h.dedup.Release(context.WithoutCancel(ctx), key); relErr != nil {
				h.log.Warn().Err(relErr).Str("key", key).Msg("failed to release idempotency key")
			}
		}
		h.log.Error().Err(err).Int("accepted", n).Int("total", len(inputs)).Msg("batch enqueue interrupted")
		return echo.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("accepted %d of %d reports", n, len(inputs)))
	}

	return c.JSON(http.StatusAccepted, acceptedResponse{
		Message: "reports accepted",
		Count:   n,
	})
}

// List handles GET /v1/vehicles — full snapshot ordered by vehicle id.
//
// @Summary      List all vehicles
// @Tags         vehicles
// @Produce      json
// @Success      200  {object}  vehicleListResponse
// @Router       /v1/vehicles [get]
func (h *VehicleHandler) List(c echo.Context) error {
	vehicles := h.svc.Snapshot(c.Request().Context())
	return c.JSON(http.StatusOK, vehicleListResponse{Vehicles: vehicles, Count: len(vehicles)})
}

// Get handles GET /v1/vehicles/:vehicle_id.
//
// @Summary      Get one vehicle
// @Tags         vehicles
// @Produce      json
// @Param        vehicle_id  path      string  true  "Vehicle id"
// @Success      200         {object}  domain.VehicleState
// @Failure      404         {object}  errorResponse
// @Router       /v1/vehicles/{vehicle_id} [get]
func (h *VehicleHandler) Get(c echo.Context) error {
	state, err := h.svc.Get(c.Request().Context(), c.Param("vehicle_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// Nearby handles GET /v1/vehicles/nearby — vehicles around a point, closest first.
//
// @Summary      Find vehicles near a point
// @Tags         vehicles
// @Produce      json
// @Param        lat        query     number   true   "Latitude"
// @Param        lng        query     number   true   "Longitude"
// @Param        radius_km  query     number   false  "Search radius in km (default 1)"
// @Param        limit      query     integer  false  "Maximum results (default 20)"
// @Success      200        {object}  nearbyResponse
// @Failure      400        {object}  errorResponse
// @Router       /v1/vehicles/nearby [get]
func (h *VehicleHandler) Nearby(c echo.Context) error {
	var (
		lat, lng float64
		radius   = defaultNearbyRadius
		limit    = defaultNearbyLimit
	)
	err := echo.QueryParamsBinder(c).
		MustFloat64("lat", &lat).
		MustFloat64("lng", &lng).
		Float64("radius_km", &radius).
		Int("limit", &limit).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lat and lng are required numbers")
	}

	found, err := h.svc.Nearby(c.Request().Context(), domain.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		return err
	}

	out := make([]nearbyVehicle, 0, len(found))
	for _, f := range found {
		out = append(out, nearbyVehicle{VehicleState: f.Vehicle, DistanceKm: f.DistanceKm})
	}
	return c.JSON(http.StatusOK, nearbyResponse{Vehicles: out, Count: len(out)})
}
