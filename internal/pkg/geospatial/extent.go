package geospatial

import (
	"math"

	"github.com/paulmach/orb"
)

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111320.0

// BoundAround returns the box enclosing a circle of radiusMeters around
// center. Latitudes are clamped to the poles.
func BoundAround(center orb.Point, radiusMeters float64) orb.Bound {
	latDelta := radiusMeters / metersPerDegree
	lonDelta := 180.0
	if c := math.Cos(toRad(center.Lat())); c > 1e-9 {
		lonDelta = math.Min(radiusMeters/(metersPerDegree*c), 180)
	}

	return orb.Bound{
		Min: orb.Point{center.Lon() - lonDelta, math.Max(center.Lat()-latDelta, -90)},
		Max: orb.Point{center.Lon() + lonDelta, math.Min(center.Lat()+latDelta, 90)},
	}
}

// Extent is the area covered by geom. Points with a positive radius are
// treated as circles.
func Extent(geom orb.Geometry, radiusMeters float64) orb.Bound {
	if p, ok := geom.(orb.Point); ok && radiusMeters > 0 {
		return BoundAround(p, radiusMeters)
	}
	return geom.Bound()
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
