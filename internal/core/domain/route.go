package domain

import "errors"

var ErrRouteNotFound = errors.New("route not found")

// Point is a WGS 84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" bson:"lat" yaml:"lat"`
	Lng float64 `json:"lng" bson:"lng" yaml:"lng"`
}

// Route is an ordered list of waypoints. Waypoint order is the direction of
// travel.
type Route struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Color     string  `json:"color,omitempty"`
	Image     string  `json:"image,omitempty"`
	Waypoints []Point `json:"waypoints"`
}

// Routable reports whether the route has enough waypoints to travel along.
func (r *Route) Routable() bool {
	return r != nil && len(r.Waypoints) >= 2
}
