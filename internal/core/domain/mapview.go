package domain

// TileLayer describes the raster background fetched by the map widget.
type TileLayer struct {
	URLTemplate string   `json:"url_template"`
	Attribution string   `json:"attribution"`
	MaxZoom     int      `json:"max_zoom"`
	Subdomains  []string `json:"subdomains"`
}

// DrawOptions enables or disables the draw toolbar tools.
type DrawOptions struct {
	Polygon      bool `json:"polygon"`
	Rectangle    bool `json:"rectangle"`
	Circle       bool `json:"circle"`
	Polyline     bool `json:"polyline"`
	Marker       bool `json:"marker"`
	CircleMarker bool `json:"circlemarker"`
	Remove       bool `json:"remove"`
}

// Enabled reports whether the tool for kind is switched on.
func (o DrawOptions) Enabled(kind ShapeKind) bool {
	switch kind {
	case KindPolygon:
		return o.Polygon
	case KindRectangle:
		return o.Rectangle
	case KindCircle:
		return o.Circle
	case KindPolyline:
		return o.Polyline
	case KindMarker:
		return o.Marker
	case KindCircleMarker:
		return o.CircleMarker
	}
	return false
}

// MapView is everything the page needs to initialise the map widget.
type MapView struct {
	Center    GeoPoint    `json:"center"`
	Zoom      int         `json:"zoom"`
	TileLayer TileLayer   `json:"tile_layer"`
	Draw      DrawOptions `json:"draw"`
}
