package handler

import (
	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
)

// reportRequest is one position report. Only vehicle_id, lat and lng are
// required; everything else falls back to engine defaults.
type reportRequest struct {
	VehicleID string   `json:"vehicle_id" validate:"required"`
	RouteID   *string  `json:"route_id"`
	Lat       *float64 `json:"lat"        validate:"required,latitude"`
	Lng       *float64 `json:"lng"        validate:"required,longitude"`
	SpeedKmh  *float64 `json:"speed_kmh"`
	Occupancy *string  `json:"occupancy"`
	Capacity  *int     `json:"capacity"   validate:"omitempty,gte=0"`
	Status    *string  `json:"status"`
}

type reportResponse struct {
	Message string              `json:"message"`
	Vehicle domain.VehicleState `json:"vehicle"`
}

type acceptedResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

type vehicleListResponse struct {
	Vehicles []domain.VehicleState `json:"vehicles"`
	Count    int                   `json:"count"`
}

type nearbyVehicle struct {
	domain.VehicleState
	DistanceKm float64 `json:"distance_km"`
}

type nearbyResponse struct {
	Vehicles []nearbyVehicle `json:"vehicles"`
	Count    int             `json:"count"`
}

type routeListResponse struct {
	Routes []domain.Route `json:"routes"`
	Count  int            `json:"count"`
}

// errorResponse mirrors the envelope rendered by the API error handler; it is
// declared here for the swagger annotations.
type errorResponse struct {
	Error string `json:"error"`
}

// toReportInput maps the HTTP request to the service DTO.
func toReportInput(r reportRequest) ports.ReportInput {
	return ports.ReportInput{
		VehicleID:  r.VehicleID,
		RouteID:    r.RouteID,
		Lat:        r.Lat,
		Lng:        r.Lng,
		SpeedKmh:   r.SpeedKmh,
		Occupancy:  r.Occupancy,
		Capacity:   r.Capacity,
		StatusHint: r.Status,
	}
}
