package ports

import "github.com/99minutos/transit-tracker/internal/core/domain"

// Distributor fans authoritative state changes out to connected observers.
type Distributor interface {
	Publish(state domain.VehicleState)
	RoutesChanged()
}
