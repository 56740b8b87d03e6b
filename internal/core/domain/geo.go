package domain

import "github.com/paulmach/orb"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsFromOrb converts an orb bound (x = lon, y = lat).
func BoundsFromOrb(b orb.Bound) Bounds {
	return Bounds{
		MinLat: b.Min.Lat(),
		MinLon: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLon: b.Max.Lon(),
	}
}

// Orb returns the bounds as an orb.Bound.
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Center returns the middle of the box.
func (b Bounds) Center() GeoPoint {
	c := b.Orb().Center()
	return GeoPoint{Lat: c.Lat(), Lon: c.Lon()}
}

// IsZero reports whether no bounds were set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Valid reports whether the box lies in WGS 84 range and is not inverted.
func (b Bounds) Valid() bool {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return false
	}
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}
