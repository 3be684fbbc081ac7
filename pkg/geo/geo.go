// Package geo wraps paulmach/orb's spherical geometry for the pieces the
// planner needs: haversine distance, bearing, and a destination-point
// projection, plus a 2km proximity test used by the POI Selector's backup
// grouping, and the fixed conservative distance the Distance Cache assumes
// for unknown pairs.
package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"tripweave/pkg/model"
)

// ProximityThresholdKM is the "geographic proximity" cutoff used when
// grouping backup candidates (spec §4.4).
const ProximityThresholdKM = 2.0

// ConservativeUnknownKM is the default distance substituted for a missing
// distance-cache pair; the spec requires degrading gracefully rather than
// defaulting to zero.
const ConservativeUnknownKM = 2.0

func toOrb(p model.Point) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// DistanceKM returns the great-circle distance between two points in km.
func DistanceKM(a, b model.Point) float64 {
	return geo.Distance(toOrb(a), toOrb(b)) / 1000.0
}

// Bearing returns the initial bearing from a to b, in degrees [0, 360).
func Bearing(a, b model.Point) float64 {
	brng := geo.Bearing(toOrb(a), toOrb(b))
	if brng < 0 {
		brng += 360
	}
	return brng
}

// DestinationPoint projects distanceKM from start along bearing degrees.
func DestinationPoint(start model.Point, distanceKM, bearingDeg float64) model.Point {
	dst := geo.PointAtBearingAndDistance(toOrb(start), bearingDeg, distanceKM*1000.0)
	return model.Point{Lat: dst[1], Lon: dst[0]}
}

// WithinProximity reports whether a and b are within the spec's 2km
// backup-candidate proximity threshold.
func WithinProximity(a, b model.Point) bool {
	return DistanceKM(a, b) <= ProximityThresholdKM
}
