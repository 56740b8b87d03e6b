// Package shapefile decodes zipped ESRI shapefile bundles into GeoJSON
// feature collections in WGS 84 longitude/latitude. Layers with a
// Transverse Mercator (UTM and national grids) or Web Mercator .prj are
// reprojected; other projected systems are rejected.
package shapefile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

var (
	ErrNoShapefile = errors.New("archive contains no .shp file")
	ErrMissingDBF  = errors.New("shapefile has no matching .dbf file")
)

// Layer is one shapefile found in an archive.
type Layer struct {
	Name       string
	Projection string
	Features   *geojson.FeatureCollection
}

// Bound returns the union of all feature bounds.
func (l Layer) Bound() orb.Bound {
	var b orb.Bound
	for i, f := range l.Features.Features {
		if i == 0 {
			b = f.Geometry.Bound()
			continue
		}
		b = b.Union(f.Geometry.Bound())
	}
	return b
}

// Decoder satisfies ports.ArchiveDecoder.
type Decoder struct{}

// Decode calls the package level Decode.
func (Decoder) Decode(r io.ReaderAt, size int64) ([]Layer, error) {
	return Decode(r, size)
}

// Decode reads every shapefile in a zip archive, sorted by path.
func Decode(r io.ReaderAt, size int64) ([]Layer, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	// sidecar files grouped by lower-cased path without extension
	groups := make(map[string]map[string]*zip.File)
	var bases []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") ||
			strings.HasPrefix(path.Base(f.Name), "._") {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		base := strings.TrimSuffix(f.Name, path.Ext(f.Name))
		key := strings.ToLower(base)
		if groups[key] == nil {
			groups[key] = make(map[string]*zip.File)
		}
		groups[key][ext] = f
		if ext == ".shp" {
			bases = append(bases, base)
		}
	}
	if len(bases) == 0 {
		return nil, ErrNoShapefile
	}
	sort.Strings(bases)

	layers := make([]Layer, 0, len(bases))
	for _, base := range bases {
		layer, err := decodeLayer(path.Base(base), groups[strings.ToLower(base)])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", base, err)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func decodeLayer(name string, parts map[string]*zip.File) (Layer, error) {
	dbfFile, ok := parts[".dbf"]
	if !ok {
		return Layer{}, ErrMissingDBF
	}

	layer := Layer{Name: name, Features: geojson.NewFeatureCollection()}
	if prj, ok := parts[".prj"]; ok {
		text, err := readFile(prj)
		if err != nil {
			return Layer{}, fmt.Errorf("read prj: %w", err)
		}
		layer.Projection = strings.TrimSpace(string(text))
	}
	toWGS84, err := parseProjection(layer.Projection)
	if err != nil {
		return Layer{}, err
	}

	shpR, err := parts[".shp"].Open()
	if err != nil {
		return Layer{}, fmt.Errorf("open shp: %w", err)
	}
	dbfR, err := dbfFile.Open()
	if err != nil {
		shpR.Close()
		return Layer{}, fmt.Errorf("open dbf: %w", err)
	}

	sr := shp.SequentialReaderFromExt(shpR, dbfR)
	defer sr.Close()

	fields := sr.Fields()
	for sr.Next() {
		_, s := sr.Shape()
		g := convertShape(s)
		if g == nil {
			continue
		}
		if toWGS84 != nil {
			g = project.Geometry(g, toWGS84)
		}
		f := geojson.NewFeature(g)
		for i, field := range fields {
			f.Properties[field.String()] = attributeValue(field, sr.Attribute(i))
		}
		layer.Features.Append(f)
	}
	if err := sr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return Layer{}, fmt.Errorf("read shapes: %w", err)
	}
	return layer, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// attributeValue types a dBase value by its field type.
func attributeValue(f shp.Field, raw string) any {
	v := strings.TrimSpace(raw)
	switch f.Fieldtype {
	case 'N', 'F':
		if v == "" {
			return nil
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	case 'L':
		switch strings.ToUpper(v) {
		case "Y", "T":
			return true
		case "N", "F":
			return false
		case "", "?":
			return nil
		}
	}
	return v
}
