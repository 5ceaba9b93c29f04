// Package memory holds the process-local authoritative vehicle map.
package memory

import (
	"sort"
	"sync"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

// VehicleStore implements ports.VehicleStore with a mutex-guarded map. It is
// created once at startup and lives for the whole process.
type VehicleStore struct {
	mu       sync.RWMutex
	vehicles map[string]domain.VehicleState
}

func NewVehicleStore() *VehicleStore {
	return &VehicleStore{vehicles: make(map[string]domain.VehicleState)}
}

func (s *VehicleStore) Get(vehicleID string) (domain.VehicleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[vehicleID]
	return v, ok
}

// Put replaces the stored record for state.VehicleID.
func (s *VehicleStore) Put(state domain.VehicleState) {
	s.mu.Lock()
	s.vehicles[state.VehicleID] = state
	s.mu.Unlock()
}

func (s *VehicleStore) All() []domain.VehicleState {
	s.mu.RLock()
	out := make([]domain.VehicleState, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

func (s *VehicleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vehicles)
}
