package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/s1webapp/internal/pkg/geospatial"
)

// ShapeKind names the draw tool (or import path) that produced a shape.
type ShapeKind string

const (
	KindPolygon      ShapeKind = "polygon"
	KindRectangle    ShapeKind = "rectangle"
	KindCircle       ShapeKind = "circle"
	KindPolyline     ShapeKind = "polyline"
	KindMarker       ShapeKind = "marker"
	KindCircleMarker ShapeKind = "circlemarker"
	KindFeature      ShapeKind = "feature" // imported from a file
)

// ParseShapeKind validates a draw tool name.
func ParseShapeKind(s string) (ShapeKind, error) {
	switch k := ShapeKind(s); k {
	case KindPolygon, KindRectangle, KindCircle, KindPolyline, KindMarker, KindCircleMarker:
		return k, nil
	}
	return "", ErrUnknownKind
}

// Shape is one vector shape in a workspace's editable collection.
type Shape struct {
	ID         string         `json:"id"`
	Kind       ShapeKind      `json:"kind"`
	Geometry   orb.Geometry   `json:"-"`
	Properties map[string]any `json:"properties,omitempty"`
	LayerID    string         `json:"layer_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Shape) Clone() Shape {
	c := s
	if s.Geometry != nil {
		c.Geometry = orb.Clone(s.Geometry)
	}
	if s.Properties != nil {
		c.Properties = make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			c.Properties[k] = v
		}
	}
	return c
}

// MarshalJSON renders the geometry as a GeoJSON geometry object.
func (s Shape) MarshalJSON() ([]byte, error) {
	type alias Shape
	var g *geojson.Geometry
	if s.Geometry != nil {
		g = geojson.NewGeometry(s.Geometry)
	}
	return json.Marshal(struct {
		alias
		Geometry *geojson.Geometry `json:"geometry"`
	}{alias(s), g})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Shape) UnmarshalJSON(data []byte) error {
	type alias Shape
	aux := struct {
		*alias
		Geometry *geojson.Geometry `json:"geometry"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Geometry != nil {
		s.Geometry = aux.Geometry.Geometry()
	}
	return nil
}

// IsZipName reports whether an upload name carries a .zip extension, in any
// letter case.
func IsZipName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// LayerSource identifies where an imported layer came from.
type LayerSource string

const LayerSourceShapefile LayerSource = "shapefile"

// Layer groups the shapes added by one import.
type Layer struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Source       LayerSource `json:"source"`
	Projection   string      `json:"projection,omitempty"`
	FeatureCount int         `json:"feature_count"`
	Bounds       Bounds      `json:"bounds"`
	CreatedAt    time.Time   `json:"created_at"`
}

// RasterOverlay references a geospatial raster shown on top of the map.
// The service only streams its bytes; decoding happens in the page.
type RasterOverlay struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Source     string    `json:"source"`
	Bounds     *Bounds   `json:"bounds,omitempty"`
	Opacity    float64   `json:"opacity"`
	Resolution int       `json:"resolution"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	DefaultOverlayOpacity    = 0.8
	DefaultOverlayResolution = 256
)

// Workspace is the server-side editable-layer group of one map page.
type Workspace struct {
	ID        string          `json:"id"`
	Shapes    []Shape         `json:"shapes"`
	Layers    []Layer         `json:"layers"`
	Overlays  []RasterOverlay `json:"overlays"`
	CreatedAt time.Time       `json:"created_at"`
	LastSeen  time.Time       `json:"last_seen"`
}

// Extent is the area covered by the shape. Circles cover their radius.
func (s Shape) Extent() orb.Bound {
	var r float64
	if s.Kind == KindCircle {
		switch v := s.Properties["radius"].(type) {
		case float64:
			r = v
		case int:
			r = float64(v)
		}
	}
	return geospatial.Extent(s.Geometry, r)
}

// Bound returns the union of all shape extents, ok=false when empty.
func (w *Workspace) Bound() (Bounds, bool) {
	if len(w.Shapes) == 0 {
		return Bounds{}, false
	}
	b := w.Shapes[0].Extent()
	for _, s := range w.Shapes[1:] {
		b = b.Union(s.Extent())
	}
	return BoundsFromOrb(b), true
}

// Export is a serialized workspace ready for download.
type Export struct {
	Document   []byte `json:"-"`
	FileName   string `json:"download"`
	DataURI    string `json:"href"`
	ShapeCount int    `json:"shapes"`
}

// ImportResult describes what an import added to a workspace.
type ImportResult struct {
	Layers []Layer `json:"layers"`
	Shapes []Shape `json:"shapes"`
	Bounds Bounds  `json:"bounds"`
}

// WorkspaceEvent is published whenever a workspace changes.
type WorkspaceEvent struct {
	Type        string    `json:"type"`
	WorkspaceID string    `json:"workspace_id"`
	ShapeID     string    `json:"shape_id,omitempty"`
	LayerID     string    `json:"layer_id,omitempty"`
	Count       int       `json:"count,omitempty"`
	Time        time.Time `json:"time"`
}

// Workspace event types.
const (
	EventShapeCreated     = "shape.created"
	EventShapeUpdated     = "shape.updated"
	EventShapeDeleted     = "shape.deleted"
	EventWorkspaceCleared = "workspace.cleared"
	EventLayerImported    = "layer.imported"
	EventOverlayAdded     = "overlay.added"
	EventOverlayRemoved   = "overlay.removed"
)
