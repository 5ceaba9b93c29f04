package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/99minutos/transit-tracker/internal/core/domain"
)

const collectionRoutes = "routes"

// routeDocument is the shape written by the route authoring service.
// Coordinates are [lat, lng] pairs in travel order.
type routeDocument struct {
	ID          string      `bson:"_id"`
	Name        string      `bson:"name"`
	Color       string      `bson:"color,omitempty"`
	Image       string      `bson:"image,omitempty"`
	Coordinates [][]float64 `bson:"coordinates"`
}

func (d routeDocument) toDomain() domain.Route {
	r := domain.Route{
		ID:        d.ID,
		Name:      d.Name,
		Color:     d.Color,
		Image:     d.Image,
		Waypoints: make([]domain.Point, 0, len(d.Coordinates)),
	}
	for _, c := range d.Coordinates {
		if len(c) < 2 {
			continue
		}
		r.Waypoints = append(r.Waypoints, domain.Point{Lat: c[0], Lng: c[1]})
	}
	return r
}

// RouteRepository is a read-only ports.RouteStore over the routes collection.
type RouteRepository struct {
	col *mongo.Collection
}

func NewRouteRepository(db *mongo.Database) *RouteRepository {
	return &RouteRepository{col: db.Collection(collectionRoutes)}
}

// FindByID retrieves a route by its id.
func (r *RouteRepository) FindByID(ctx context.Context, id string) (*domain.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc routeDocument
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRouteNotFound
		}
		return nil, fmt.Errorf("find route %q: %w", id, err)
	}
	route := doc.toDomain()
	return &route, nil
}

// List returns every route ordered by id.
func (r *RouteRepository) List(ctx context.Context) ([]domain.Route, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []routeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}

	routes := make([]domain.Route, 0, len(docs))
	for _, d := range docs {
		routes = append(routes, d.toDomain())
	}
	return routes, nil
}
