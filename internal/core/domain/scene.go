package domain

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Scene is a Sentinel-1 GeoTIFF registered in the catalog.
type Scene struct {
	ID        int64          `json:"id"`
	Sensor    string         `json:"sensor"`
	Orbit     string         `json:"orbit"`
	Date      time.Time      `json:"date"`
	FilePath  string         `json:"filepath"`
	TimeAdded time.Time      `json:"time_added"`
	Meta      *SceneMetadata `json:"meta,omitempty"`
	Geo       *SceneGeometry `json:"geo,omitempty"`
}

// FileName returns the base name of the scene file.
func (s *Scene) FileName() string {
	return filepath.Base(s.FilePath)
}

// SceneMetadata holds acquisition and band statistics of a scene.
type SceneMetadata struct {
	AcqMode      string   `json:"acq_mode"`
	Polarisation string   `json:"polarisation,omitempty"`
	Resolution   *int     `json:"resolution,omitempty"`
	NoData       *int     `json:"nodata,omitempty"`
	BandMin      *float64 `json:"band_min,omitempty"`
	BandMax      *float64 `json:"band_max,omitempty"`
}

// SceneGeometry holds raster size, CRS and extent of a scene.
type SceneGeometry struct {
	Columns   int    `json:"columns"`
	Rows      int    `json:"rows"`
	EPSG      string `json:"epsg"`
	Bounds    Bounds `json:"bounds"`
	Footprint string `json:"footprint,omitempty"` // GeoJSON
}

// SceneOutput is a processed raster derived from a scene.
type SceneOutput struct {
	ID          int64  `json:"id"`
	SceneID     int64  `json:"scene_id"`
	Description string `json:"description"`
	FilePath    string `json:"filepath"`
}

// MetaRow is one attribute/value line of the scene metadata table.
type MetaRow struct {
	Attr string `json:"attr"`
	Val  string `json:"val"`
}

// MetaTable flattens a scene into the rows shown on its metadata page.
func (s *Scene) MetaTable() []MetaRow {
	rows := []MetaRow{
		{Attr: "Scene ID", Val: fmt.Sprint(s.ID)},
		{Attr: "Date", Val: s.Date.Format("2006-01-02 15:04:05")},
		{Attr: "Sensor", Val: s.Sensor},
		{Attr: "Orbit", Val: s.Orbit},
	}
	if s.Meta == nil {
		return rows
	}
	rows = append(rows,
		MetaRow{Attr: "Acquisition Mode", Val: s.Meta.AcqMode},
		MetaRow{Attr: "Polarisation", Val: s.Meta.Polarisation},
		MetaRow{Attr: "Resolution (m)", Val: optString(s.Meta.Resolution)},
		MetaRow{Attr: "Band Min", Val: optString(s.Meta.BandMin)},
		MetaRow{Attr: "Band Max", Val: optString(s.Meta.BandMax)},
	)
	return rows
}

func optString[T int | float64](v *T) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(*v)
}

// SceneFilePattern matches Sentinel-1 GeoTIFF file names.
var SceneFilePattern = regexp.MustCompile(`^S1[AB].*\.tif`)

// SceneFileInfo is what the pyroSAR file naming scheme encodes.
type SceneFileInfo struct {
	Sensor       string
	AcqMode      string
	Orbit        string
	Polarisation string
	Date         time.Time
}

// ParseSceneFilename extracts scene information from a pyroSAR style name,
// e.g. S1A__IW___A_20150320T182611_147_VV_grd_mli_norm_geo_db.tif.
func ParseSceneFilename(path string) (SceneFileInfo, error) {
	name := filepath.Base(path)
	if len(name) < 27 {
		return SceneFileInfo{}, fmt.Errorf("%s: %w", name, ErrInvalidFilename)
	}

	info := SceneFileInfo{
		Sensor:  strings.ReplaceAll(name[0:4], "_", ""),
		AcqMode: strings.ReplaceAll(name[5:9], "_", ""),
	}

	switch name[10:11] {
	case "A":
		info.Orbit = "ascending"
	case "D":
		info.Orbit = "descending"
	default:
		return SceneFileInfo{}, fmt.Errorf("%s: orbit flag %q: %w", name, name[10:11], ErrInvalidFilename)
	}

	switch {
	case strings.Contains(name, "_VV_"):
		info.Polarisation = "VV"
	case strings.Contains(name, "_VH_"):
		info.Polarisation = "VH"
	}

	d, err := time.Parse("20060102T150405", strings.ReplaceAll(name[12:27], "_", ""))
	if err != nil {
		return SceneFileInfo{}, fmt.Errorf("%s: date: %w", name, ErrInvalidFilename)
	}
	info.Date = d

	return info, nil
}
