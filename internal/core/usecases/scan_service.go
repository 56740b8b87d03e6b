package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
	"github.com/samirrijal/s1webapp/internal/pkg/telemetry"
)

// ScanService finds new Sentinel-1 files on disk and registers them in the
// catalog.
type ScanService struct {
	scenes ports.SceneRepository
	events ports.EventPublisher
	cache  ports.CacheService
	now    func() time.Time
}

// NewScanService creates a new ScanService. events and cache may be nil.
func NewScanService(scenes ports.SceneRepository, events ports.EventPublisher, cache ports.CacheService) *ScanService {
	return &ScanService{scenes: scenes, events: events, cache: cache, now: time.Now}
}

// Scan returns the scene files in dir that are not yet in the catalog,
// sorted by name.
func (s *ScanService) Scan(ctx context.Context, dir string) ([]string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSceneScan)
	defer span.End()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scan dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !domain.SceneFilePattern.MatchString(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, nil
	}

	known, err := s.scenes.KnownPaths(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("known paths: %w", err)
	}
	fresh := paths[:0]
	for _, p := range paths {
		if !known[p] {
			fresh = append(fresh, p)
		}
	}
	sort.Strings(fresh)
	return fresh, nil
}

// sceneSidecar is the optional <file>.json written next to a scene by the
// processing chain. It carries what can only be read from the raster.
type sceneSidecar struct {
	Columns    int            `json:"columns"`
	Rows       int            `json:"rows"`
	EPSG       string         `json:"epsg"`
	Bounds     *domain.Bounds `json:"bounds"`
	Footprint  string         `json:"footprint"`
	Resolution *int           `json:"resolution"`
	NoData     *int           `json:"nodata"`
	BandMin    *float64       `json:"band_min"`
	BandMax    *float64       `json:"band_max"`
}

// Register parses a scene file name, stores the scene and announces it.
// Names outside the pyroSAR scheme fail with domain.ErrInvalidFilename.
func (s *ScanService) Register(ctx context.Context, path string) (*domain.Scene, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSceneRegister)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrScenePath, path))

	info, err := domain.ParseSceneFilename(path)
	if err != nil {
		metrics.ScenesSkipped.Inc()
		slog.WarnContext(ctx, "skipping scene with unparseable name", "path", path, "error", err)
		return nil, err
	}

	scene := &domain.Scene{
		Sensor:    info.Sensor,
		Orbit:     info.Orbit,
		Date:      info.Date,
		FilePath:  path,
		TimeAdded: s.now().UTC(),
		Meta: &domain.SceneMetadata{
			AcqMode:      info.AcqMode,
			Polarisation: info.Polarisation,
		},
	}
	if err := s.applySidecar(scene); err != nil {
		return nil, err
	}

	if err := s.scenes.Insert(ctx, scene); err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}
	metrics.ScenesRegistered.Inc()

	if s.cache != nil {
		_ = s.cache.Delete(ctx, sceneFirstKey)
	}
	if s.events != nil {
		if err := s.events.PublishSceneRegistered(ctx, scene); err != nil {
			slog.WarnContext(ctx, "publish scene registered", "scene_id", scene.ID, "error", err)
		}
	}
	slog.InfoContext(ctx, "scene registered", "scene_id", scene.ID, "path", path, "sensor", scene.Sensor)
	return scene, nil
}

func (s *ScanService) applySidecar(scene *domain.Scene) error {
	data, err := os.ReadFile(scene.FilePath + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}
	var sc sceneSidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("parse sidecar %s.json: %w", scene.FileName(), err)
	}

	scene.Meta.Resolution = sc.Resolution
	scene.Meta.NoData = sc.NoData
	scene.Meta.BandMin = sc.BandMin
	scene.Meta.BandMax = sc.BandMax
	if sc.Bounds != nil {
		if !sc.Bounds.Valid() {
			return fmt.Errorf("sidecar %s.json: bounds out of range", scene.FileName())
		}
		scene.Geo = &domain.SceneGeometry{
			Columns:   sc.Columns,
			Rows:      sc.Rows,
			EPSG:      sc.EPSG,
			Bounds:    *sc.Bounds,
			Footprint: sc.Footprint,
		}
	}
	return nil
}
