package usecases

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// validateDrawn checks that geom is what the draw tool for kind produces.
// Circles are a center point with a positive "radius" property in meters.
func validateDrawn(kind domain.ShapeKind, geom orb.Geometry, props map[string]any) error {
	if geom == nil {
		return fmt.Errorf("%w: missing geometry", domain.ErrInvalidGeometry)
	}

	switch kind {
	case domain.KindPolygon, domain.KindRectangle:
		switch g := geom.(type) {
		case orb.Polygon:
			if err := validPolygon(g); err != nil {
				return err
			}
		case orb.MultiPolygon:
			for _, p := range g {
				if err := validPolygon(p); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: %s needs a polygon, got %s", domain.ErrInvalidGeometry, kind, geom.GeoJSONType())
		}
	case domain.KindPolyline:
		switch g := geom.(type) {
		case orb.LineString:
			if len(g) < 2 {
				return fmt.Errorf("%w: polyline needs at least 2 points", domain.ErrInvalidGeometry)
			}
		case orb.MultiLineString:
			for _, ls := range g {
				if len(ls) < 2 {
					return fmt.Errorf("%w: polyline needs at least 2 points", domain.ErrInvalidGeometry)
				}
			}
		default:
			return fmt.Errorf("%w: polyline needs a line string, got %s", domain.ErrInvalidGeometry, geom.GeoJSONType())
		}
	case domain.KindCircle:
		if _, ok := geom.(orb.Point); !ok {
			return fmt.Errorf("%w: circle needs a center point, got %s", domain.ErrInvalidGeometry, geom.GeoJSONType())
		}
		if r, ok := radius(props); !ok || r <= 0 {
			return fmt.Errorf("%w: circle needs a positive radius", domain.ErrInvalidGeometry)
		}
	case domain.KindMarker, domain.KindCircleMarker:
		if _, ok := geom.(orb.Point); !ok {
			return fmt.Errorf("%w: %s needs a point, got %s", domain.ErrInvalidGeometry, kind, geom.GeoJSONType())
		}
	}

	if !domain.BoundsFromOrb(geom.Bound()).Valid() {
		return fmt.Errorf("%w: coordinates outside WGS 84 range", domain.ErrInvalidGeometry)
	}
	return nil
}

func validPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: polygon has no rings", domain.ErrInvalidGeometry)
	}
	for _, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("%w: ring needs at least 4 points", domain.ErrInvalidGeometry)
		}
		if !r.Closed() {
			return fmt.Errorf("%w: ring is not closed", domain.ErrInvalidGeometry)
		}
	}
	return nil
}

func radius(props map[string]any) (float64, bool) {
	switch v := props["radius"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
