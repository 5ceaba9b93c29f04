package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RoutesChannel is the Pub/Sub channel the route authoring service publishes
// to after every route write.
const RoutesChannel = "routes:changed"

// RouteEvents listens for route change announcements.
type RouteEvents struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRouteEvents creates a RouteEvents wrapping the given Redis client.
func NewRouteEvents(client *redis.Client, log zerolog.Logger) *RouteEvents {
	return &RouteEvents{
		client: client,
		log:    log.With().Str("component", "route_events").Logger(),
	}
}

// Listen calls onChange for every message on RoutesChannel until ctx is
// cancelled. The payload is ignored; any message means "refetch".
func (e *RouteEvents) Listen(ctx context.Context, onChange func()) error {
	sub := e.client.Subscribe(ctx, RoutesChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", RoutesChannel, err)
	}
	e.log.Info().Str("channel", RoutesChannel).Msg("listening for route changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e.log.Info().Str("payload", msg.Payload).Msg("routes changed")
			onChange()
		}
	}
}

// Announce publishes a route change to every API instance, this one included.
func (e *RouteEvents) Announce(ctx context.Context, payload string) error {
	if err := e.client.Publish(ctx, RoutesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", RoutesChannel, err)
	}
	return nil
}
