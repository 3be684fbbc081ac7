// Package geoprovider defines the port used by the Distance Cache to obtain
// travel legs between POIs from an external mapping service. The default
// adapter (pkg/geoprovider/googlemaps) implements this against the Google
// Maps Distance Matrix API; other adapters can be swapped in without
// touching pkg/distancecache.
package geoprovider

import (
	"context"

	"tripweave/pkg/model"
)

// MaxBatchSize is the largest number of origins, and separately of
// destinations, a single DistanceMatrix call may carry; pkg/distancecache
// chunks each list to this size.
const MaxBatchSize = 25

// Provider is the GeoProvider port.
type Provider interface {
	// DistanceMatrix returns travel legs for every (origin, dest, mode)
	// combination requested. Pairs the upstream service can't resolve are
	// simply absent from the result, not zero-valued.
	DistanceMatrix(ctx context.Context, origins, dests []model.Point, modes []model.TravelMode) ([][]ModeLegs, error)

	// PlaceDetails resolves a free-text query to a single best-matching
	// location, used when a POI record arrives without coordinates.
	PlaceDetails(ctx context.Context, query string) (PlaceDetail, error)

	// Geocode resolves a free-text address to coordinates.
	Geocode(ctx context.Context, address string) (model.Point, error)
}

// ModeLegs holds the legs resolved for one origin/dest pair, keyed by mode.
type ModeLegs map[model.TravelMode]model.Leg

// PlaceDetail is the subset of a places lookup the planner needs.
type PlaceDetail struct {
	Name    string
	Coords  model.Point
	Address string
}
