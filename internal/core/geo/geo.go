// Package geo contains the pure geometry used to place vehicles on routes.
//
// The authoritative engine and the observer-side simulator both import this
// package, so a given input always yields the same distance on either side.
package geo

import (
	"math"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between a and b
// on a spherical earth.
func DistanceKm(a, b domain.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// NearestPointIndex returns the index of the waypoint closest to p, or -1
// when waypoints is empty. Ties resolve to the lowest index.
//
// This snaps to waypoints only, not to points inside a segment. On routes with
// sparse waypoints the result can lag or lead the true position.
func NearestPointIndex(waypoints []domain.Point, p domain.Point) int {
	nearest := -1
	best := math.Inf(1)
	for i, w := range waypoints {
		if d := DistanceKm(w, p); d < best {
			best = d
			nearest = i
		}
	}
	return nearest
}

// RemainingDistanceKm returns the distance from p to its nearest waypoint plus
// the length of the route from that waypoint to the end. ok is false when the
// route has no waypoints.
func RemainingDistanceKm(waypoints []domain.Point, p domain.Point) (km float64, ok bool) {
	idx := NearestPointIndex(waypoints, p)
	if idx < 0 {
		return 0, false
	}

	km = DistanceKm(p, waypoints[idx])
	for j := idx; j < len(waypoints)-1; j++ {
		km += DistanceKm(waypoints[j], waypoints[j+1])
	}
	return km, true
}

// PathLengthKm returns the summed segment length of waypoints.
func PathLengthKm(waypoints []domain.Point) float64 {
	total := 0.0
	for i := 0; i < len(waypoints)-1; i++ {
		total += DistanceKm(waypoints[i], waypoints[i+1])
	}
	return total
}

// ProjectOntoPolyline finds the segment of waypoints closest to p and the
// fractional position along it. The projection is linear in lat/lng space,
// which is adequate for the short segments of a city route; candidates are
// compared by great-circle distance from the projected point. segment is -1
// when fewer than two waypoints are given.
func ProjectOntoPolyline(waypoints []domain.Point, p domain.Point) (segment int, fraction float64) {
	segment = -1
	best := math.Inf(1)
	for i := 0; i < len(waypoints)-1; i++ {
		a, b := waypoints[i], waypoints[i+1]

		vx, vy := b.Lat-a.Lat, b.Lng-a.Lng
		wx, wy := p.Lat-a.Lat, p.Lng-a.Lng

		f := 0.0
		if segLen2 := vx*vx + vy*vy; segLen2 > 0 {
			f = clamp01((wx*vx + wy*vy) / segLen2)
		}

		if d := DistanceKm(Interpolate(a, b, f), p); d < best {
			best = d
			segment = i
			fraction = f
		}
	}
	return segment, fraction
}

// Interpolate returns the point at fraction f of the straight line from a to b.
func Interpolate(a, b domain.Point, f float64) domain.Point {
	return domain.Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}

// Finite reports whether p holds real coordinates.
func Finite(p domain.Point) bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
