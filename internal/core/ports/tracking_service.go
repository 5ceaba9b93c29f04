package ports

import (
	"context"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// ReportInput is a single position report from a vehicle. Only VehicleID, Lat
// and Lng are required; nil pointers mean the reporter omitted the field.
type ReportInput struct {
	VehicleID  string
	RouteID    *string
	Lat        *float64
	Lng        *float64
	SpeedKmh   *float64
	Occupancy  *string
	Capacity   *int
	StatusHint *string
}

// NearbyVehicle pairs a vehicle with its distance from a query point.
type NearbyVehicle struct {
	Vehicle    domain.VehicleState
	DistanceKm float64
}

// TrackingService ingests reports and serves the authoritative vehicle map.
type TrackingService interface {
	Ingest(ctx context.Context, in ReportInput) (*domain.VehicleState, error)
	Snapshot(ctx context.Context) []domain.VehicleState
	Get(ctx context.Context, vehicleID string) (*domain.VehicleState, error)
	Nearby(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]NearbyVehicle, error)
}
