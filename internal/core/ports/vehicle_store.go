package ports

import (
	"context"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// VehicleStore holds the authoritative vehicle map. Writes replace the whole
// record for a key.
type VehicleStore interface {
	Get(vehicleID string) (domain.VehicleState, bool)
	Put(state domain.VehicleState)
	// All returns a copy of every stored state ordered by vehicle id.
	All() []domain.VehicleState
	Len() int
}

// GeoIndex mirrors vehicle positions for proximity lookups.
type GeoIndex interface {
	Upsert(ctx context.Context, vehicleID string, p domain.Point) error
	Nearby(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]NearbyHit, error)
}

// NearbyHit is a single geo index match.
type NearbyHit struct {
	VehicleID  string
	DistanceKm float64
}
