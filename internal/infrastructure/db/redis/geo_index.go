package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/transit-tracker/internal/core/domain"
	"github.com/99minutos/transit-tracker/internal/core/ports"
)

const geoKey = "vehicles:positions"

// GeoIndex mirrors vehicle positions into a Redis GEO set so proximity
// queries do not scan the whole vehicle map.
type GeoIndex struct {
	client redis.Cmdable
	key    string
}

// NewGeoIndex returns a GeoIndex on the default key.
func NewGeoIndex(client redis.Cmdable) *GeoIndex {
	return &GeoIndex{client: client, key: geoKey}
}

// Upsert sets the position of vehicleID.
func (g *GeoIndex) Upsert(ctx context.Context, vehicleID string, p domain.Point) error {
	err := g.client.GeoAdd(ctx, g.key, &redis.GeoLocation{
		Name:      vehicleID,
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", vehicleID, err)
	}
	return nil
}

// Nearby returns members within radiusKm of center, closest first. limit <= 0
// means no limit.
func (g *GeoIndex) Nearby(ctx context.Context, center domain.Point, radiusKm float64, limit int) ([]ports.NearbyHit, error) {
	q := &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithDist: true,
	}
	if limit > 0 {
		q.Count = limit
	}

	locs, err := g.client.GeoSearchLocation(ctx, g.key, q).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	hits := make([]ports.NearbyHit, 0, len(locs))
	for _, l := range locs {
		hits = append(hits, ports.NearbyHit{VehicleID: l.Name, DistanceKm: l.Dist})
	}
	return hits, nil
}
