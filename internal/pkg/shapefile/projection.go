package shapefile

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrUnsupportedProjection is returned for a .prj whose coordinates cannot
// be brought back to WGS 84 longitude/latitude.
var ErrUnsupportedProjection = errors.New("unsupported projection")

var (
	wktProjection = regexp.MustCompile(`(?i)PROJECTION\[\s*"([^"]+)"`)
	wktMethod     = regexp.MustCompile(`(?i)METHOD\[\s*"([^"]+)"`)
	wktParameter  = regexp.MustCompile(`(?i)PARAMETER\[\s*"([^"]+)"\s*,\s*([-+0-9.eE]+)`)
	wktSpheroid   = regexp.MustCompile(`(?i)(?:SPHEROID|ELLIPSOID)\[\s*"[^"]*"\s*,\s*([-+0-9.eE]+)\s*,\s*([-+0-9.eE]+)`)
	wktUnit       = regexp.MustCompile(`(?i)UNIT\[\s*"[^"]*"\s*,\s*([-+0-9.eE]+)`)
)

// ellipsoid is given by its semi-major axis in metres and its flattening.
type ellipsoid struct {
	a, f float64
}

var wgs84Ellipsoid = ellipsoid{a: 6378137, f: 1 / 298.257223563}

// parseProjection reads the WKT of a .prj file. Geographic systems and an
// empty text need no conversion and yield a nil projection. Datum shifts
// are not applied.
func parseProjection(wkt string) (orb.Projection, error) {
	wkt = strings.TrimSpace(wkt)
	upper := strings.ToUpper(wkt)
	switch {
	case wkt == "":
		return nil, nil
	case strings.HasPrefix(upper, "GEOGCS"), strings.HasPrefix(upper, "GEOGCRS"), strings.HasPrefix(upper, "GEODCRS"):
		return nil, nil
	case !strings.HasPrefix(upper, "PROJCS") && !strings.HasPrefix(upper, "PROJCRS"):
		return nil, fmt.Errorf("%w: not a coordinate system", ErrUnsupportedProjection)
	}

	m := wktProjection.FindStringSubmatch(wkt)
	if m == nil {
		// WKT2 names the method instead
		m = wktMethod.FindStringSubmatch(wkt)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: no projection method", ErrUnsupportedProjection)
	}
	method := wktName(m[1])

	params := make(map[string]float64)
	for _, p := range wktParameter.FindAllStringSubmatch(wkt, -1) {
		if v, err := strconv.ParseFloat(p[2], 64); err == nil {
			params[wktName(p[1])] = v
		}
	}
	param := func(def float64, names ...string) float64 {
		for _, n := range names {
			if v, ok := params[n]; ok {
				return v
			}
		}
		return def
	}

	// the linear unit closes the projected system, after the geographic one
	unit := 1.0
	if units := wktUnit.FindAllStringSubmatch(wkt, -1); len(units) > 0 {
		if v, err := strconv.ParseFloat(units[len(units)-1][1], 64); err == nil && v > 0 {
			unit = v
		}
	}
	fe := param(0, "false_easting")
	fn := param(0, "false_northing")

	switch {
	case method == "transverse_mercator":
		tm := transverseMercator{
			ell:  wktEllipsoid(wkt),
			lon0: toRad(param(0, "central_meridian", "longitude_of_natural_origin")),
			lat0: toRad(param(0, "latitude_of_origin", "latitude_of_natural_origin")),
			k0:   param(1, "scale_factor", "scale_factor_at_natural_origin"),
			fe:   fe,
			fn:   fn,
			unit: unit,
		}
		if tm.k0 <= 0 {
			return nil, fmt.Errorf("%w: scale factor %v", ErrUnsupportedProjection, tm.k0)
		}
		return tm.toWGS84, nil
	case method == "mercator_auxiliary_sphere",
		method == "popular_visualisation_pseudo_mercator",
		strings.HasPrefix(method, "mercator") && strings.Contains(strings.ToLower(wkt), "pseudo"):
		return func(p orb.Point) orb.Point {
			return project.Mercator.ToWGS84(orb.Point{(p[0] - fe) * unit, (p[1] - fn) * unit})
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProjection, m[1])
}

// wktName folds "Central Meridian" and "central_meridian" together.
func wktName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

func wktEllipsoid(wkt string) ellipsoid {
	m := wktSpheroid.FindStringSubmatch(wkt)
	if m == nil {
		return wgs84Ellipsoid
	}
	a, err1 := strconv.ParseFloat(m[1], 64)
	invf, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil || a <= 0 {
		return wgs84Ellipsoid
	}
	if invf == 0 {
		return ellipsoid{a: a}
	}
	return ellipsoid{a: a, f: 1 / invf}
}

type transverseMercator struct {
	ell        ellipsoid
	lon0, lat0 float64 // radians
	k0         float64
	fe, fn     float64
	unit       float64 // metres per layer unit
}

// toWGS84 inverts the projection with the USGS series (Snyder 1987, §8),
// good to well under a metre inside a UTM zone.
func (tm transverseMercator) toWGS84(p orb.Point) orb.Point {
	a := tm.ell.a
	e2 := tm.ell.f * (2 - tm.ell.f)
	ep2 := e2 / (1 - e2)
	x := (p[0] - tm.fe) * tm.unit
	y := (p[1] - tm.fn) * tm.unit

	m := meridianArc(a, e2, tm.lat0) + y/tm.k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))
	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sin, cos, tan := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	c1 := ep2 * cos * cos
	t1 := tan * tan
	n1 := a / math.Sqrt(1-e2*sin*sin)
	r1 := a * (1 - e2) / math.Pow(1-e2*sin*sin, 1.5)
	d := x / (n1 * tm.k0)

	lat := phi1 - (n1*tan/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*math.Pow(d, 4)/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*math.Pow(d, 6)/720)
	lon := tm.lon0 + (d-
		(1+2*t1+c1)*math.Pow(d, 3)/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*math.Pow(d, 5)/120)/cos

	return orb.Point{toDeg(lon), toDeg(lat)}
}

// meridianArc is the distance along the meridian from the equator to phi.
func meridianArc(a, e2, phi float64) float64 {
	e4, e6 := e2*e2, e2*e2*e2
	return a * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
