// Package realtime fans authoritative vehicle state out to connected
// observers. Transport lives in the API layer; the hub only deals in
// messages and per-observer queues.
package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
	"github.com/99minutos/transit-tracker/internal/pkg/metrics"
)

// MessageType tags a stream message.
type MessageType string

const (
	TypeSnapshot      MessageType = "vehicles_snapshot"
	TypeVehicleUpdate MessageType = "vehicle_update"
	TypeRoutesChanged MessageType = "routes_changed"
)

// Message is the envelope written to observers.
type Message struct {
	Type     MessageType           `json:"type"`
	Vehicles []domain.VehicleState `json:"vehicles,omitempty"`
	Vehicle  *domain.VehicleState  `json:"vehicle,omitempty"`
}

// Subscription is one observer's FIFO queue. C is closed when the observer is
// disconnected, either explicitly or because it fell behind.
type Subscription struct {
	ch chan Message
}

// C returns the receive side of the queue.
func (s *Subscription) C() <-chan Message { return s.ch }

// Hub implements ports.Distributor.
type Hub struct {
	store  ports.VehicleStore
	buffer int
	log    zerolog.Logger

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewHub returns a hub that snapshots store for each new subscriber. buffer is
// the per-observer queue length.
func NewHub(store ports.VehicleStore, buffer int, log zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		store:  store,
		buffer: buffer,
		log:    log.With().Str("component", "hub").Logger(),
		subs:   make(map[*Subscription]struct{}),
	}
}

// Connect registers a new observer. Its first message is a snapshot of every
// vehicle stored at the moment of registration; the snapshot and registration
// happen under the same lock that Publish takes, so no update falls between
// them.
func (h *Hub) Connect() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := h.store.All()
	// The snapshot always fits regardless of buffer size.
	sub := &Subscription{ch: make(chan Message, h.buffer+1)}
	sub.ch <- Message{Type: TypeSnapshot, Vehicles: snap}
	h.subs[sub] = struct{}{}

	metrics.StreamMessagesTotal.WithLabelValues(string(TypeSnapshot)).Inc()
	metrics.ObserversConnected.Set(float64(len(h.subs)))
	h.log.Debug().Int("vehicles", len(snap)).Int("observers", len(h.subs)).Msg("observer connected")
	return sub
}

// Disconnect removes sub and closes its queue. Safe to call more than once.
func (h *Hub) Disconnect(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(sub)
}

// Publish queues a vehicle_update for every observer. Observers whose queue is
// full are disconnected.
func (h *Hub) Publish(state domain.VehicleState) {
	v := state
	h.broadcast(Message{Type: TypeVehicleUpdate, Vehicle: &v})
}

// RoutesChanged tells every observer to refetch routes.
func (h *Hub) RoutesChanged() {
	h.broadcast(Message{Type: TypeRoutesChanged})
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.drop(sub)
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		select {
		case sub.ch <- msg:
			metrics.StreamMessagesTotal.WithLabelValues(string(msg.Type)).Inc()
		default:
			metrics.ObserversEvictedTotal.Inc()
			h.log.Warn().Str("type", string(msg.Type)).Msg("observer queue full, disconnecting")
			h.drop(sub)
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
	metrics.ObserversConnected.Set(float64(len(h.subs)))
}
