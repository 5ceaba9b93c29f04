package domain

import (
	"errors"
	"time"
)

// VehicleStatus represents where a vehicle is within its current trip.
type VehicleStatus string

const (
	StatusRunning VehicleStatus = "running"
	StatusArrived VehicleStatus = "arrived"
)

var ErrInvalidReport = errors.New("invalid report")
var ErrVehicleNotFound = errors.New("vehicle not found")

// Valid reports whether s is one of the known statuses.
func (s VehicleStatus) Valid() bool {
	return s == StatusRunning || s == StatusArrived
}

// VehicleState is the authoritative record for a single vehicle. It is
// replaced as a whole on every ingest.
type VehicleState struct {
	VehicleID  string        `json:"vehicle_id"`
	RouteID    string        `json:"route_id,omitempty"`
	Position   Point         `json:"position"`
	SpeedKmh   float64       `json:"speed_kmh"`
	EtaSeconds int           `json:"eta_seconds"`
	EtaMinutes int           `json:"eta_minutes"`
	Status     VehicleStatus `json:"status"`
	UpdatedAt  time.Time     `json:"updated_at"`
	Occupancy  *string       `json:"occupancy,omitempty"`
	Capacity   *int          `json:"capacity,omitempty"`
}

// Arrived reports whether the vehicle has completed its current route.
func (v VehicleState) Arrived() bool {
	return v.Status == StatusArrived
}
