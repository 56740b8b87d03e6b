package shapefile

import (
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// convertShape maps a shapefile record to an orb geometry. Null shapes and
// multipatches yield nil.
func convertShape(s shp.Shape) orb.Geometry {
	switch s := s.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}
	case *shp.PointM:
		return orb.Point{s.X, s.Y}
	case *shp.MultiPoint:
		return multiPoint(s.Points)
	case *shp.MultiPointZ:
		return multiPoint(s.Points)
	case *shp.MultiPointM:
		return multiPoint(s.Points)
	case *shp.PolyLine:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lines(s.Parts, s.Points)
	case *shp.PolyLineM:
		return lines(s.Parts, s.Points)
	case *shp.Polygon:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygons(s.Parts, s.Points)
	case *shp.PolygonM:
		return polygons(s.Parts, s.Points)
	}
	return nil
}

func multiPoint(points []shp.Point) orb.Geometry {
	if len(points) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, 0, len(points))
	for _, p := range points {
		mp = append(mp, orb.Point{p.X, p.Y})
	}
	return mp
}

// splitParts cuts the flat point list at the part offsets.
func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(points)) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			part = append(part, orb.Point{p.X, p.Y})
		}
		out = append(out, part)
	}
	return out
}

func lines(parts []int32, points []shp.Point) orb.Geometry {
	split := splitParts(parts, points)
	switch len(split) {
	case 0:
		return nil
	case 1:
		return orb.LineString(split[0])
	}
	mls := make(orb.MultiLineString, 0, len(split))
	for _, p := range split {
		mls = append(mls, orb.LineString(p))
	}
	return mls
}

// polygons groups rings into polygons. Shapefile outer rings run clockwise
// and holes counter-clockwise; each hole joins the first outer ring that
// contains it. Output follows RFC 7946 winding (outer CCW, holes CW).
func polygons(parts []int32, points []shp.Point) orb.Geometry {
	var (
		polys []orb.Polygon
		holes []orb.Ring
	)
	for _, p := range splitParts(parts, points) {
		r := orb.Ring(p)
		if len(r) < 4 {
			continue
		}
		if r.Orientation() == orb.CW {
			polys = append(polys, orb.Polygon{r})
		} else {
			holes = append(holes, r)
		}
	}

	for _, h := range holes {
		placed := false
		for i := range polys {
			if planar.RingContains(polys[i][0], h[0]) {
				polys[i] = append(polys[i], h)
				placed = true
				break
			}
		}
		if !placed {
			polys = append(polys, orb.Polygon{h})
		}
	}

	for _, poly := range polys {
		for i, r := range poly {
			if (i == 0) != (r.Orientation() == orb.CCW) {
				r.Reverse()
			}
		}
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	return orb.MultiPolygon(polys)
}
