package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// SceneRepo implements ports.SceneRepository with pgx.
type SceneRepo struct {
	db *DB
}

// NewSceneRepo creates a new SceneRepo.
func NewSceneRepo(db *DB) *SceneRepo {
	return &SceneRepo{db: db}
}

const sceneSelect = `
	SELECT s.id, s.sensor, s.orbit, s.date, s.filepath, s.time_added,
	       m.scene_id IS NOT NULL, COALESCE(m.acq_mode, ''), COALESCE(m.polarisation, ''),
	       m.resolution, m.nodata, m.band_min, m.band_max,
	       g.scene_id IS NOT NULL, COALESCE(g.columns, 0), COALESCE(g.rows, 0), COALESCE(g.epsg, ''),
	       COALESCE(g.bounds_south, 0), COALESCE(g.bounds_west, 0),
	       COALESCE(g.bounds_north, 0), COALESCE(g.bounds_east, 0),
	       COALESCE(g.footprint::text, '')
	FROM scenes s
	LEFT JOIN scene_metadata m ON m.scene_id = s.id
	LEFT JOIN scene_geometries g ON g.scene_id = s.id`

func scanScene(row pgx.Row) (*domain.Scene, error) {
	var (
		s       domain.Scene
		meta    domain.SceneMetadata
		geo     domain.SceneGeometry
		hasMeta bool
		hasGeo  bool
	)
	if err := row.Scan(
		&s.ID, &s.Sensor, &s.Orbit, &s.Date, &s.FilePath, &s.TimeAdded,
		&hasMeta, &meta.AcqMode, &meta.Polarisation,
		&meta.Resolution, &meta.NoData, &meta.BandMin, &meta.BandMax,
		&hasGeo, &geo.Columns, &geo.Rows, &geo.EPSG,
		&geo.Bounds.MinLat, &geo.Bounds.MinLon, &geo.Bounds.MaxLat, &geo.Bounds.MaxLon,
		&geo.Footprint,
	); err != nil {
		return nil, err
	}
	if hasMeta {
		s.Meta = &meta
	}
	if hasGeo {
		s.Geo = &geo
	}
	return &s, nil
}

// Insert stores a scene with its metadata and geometry rows in one
// transaction and sets scene.ID.
func (r *SceneRepo) Insert(ctx context.Context, scene *domain.Scene) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO scenes (sensor, orbit, date, filepath, time_added)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, scene.Sensor, scene.Orbit, scene.Date, scene.FilePath, scene.TimeAdded).Scan(&scene.ID)
	if err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}

	if m := scene.Meta; m != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO scene_metadata (scene_id, acq_mode, polarisation, resolution, nodata, band_min, band_max)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		`, scene.ID, m.AcqMode, m.Polarisation, m.Resolution, m.NoData, m.BandMin, m.BandMax); err != nil {
			return fmt.Errorf("insert metadata: %w", err)
		}
	}

	if g := scene.Geo; g != nil {
		b := g.Bounds
		if _, err := tx.Exec(ctx, `
			INSERT INTO scene_geometries (scene_id, columns, rows, epsg,
			                              bounds_south, bounds_north, bounds_west, bounds_east,
			                              extent, footprint)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			        ST_MakeEnvelope($7, $5, $8, $6, 4326), NULLIF($9, '')::jsonb)
		`, scene.ID, g.Columns, g.Rows, g.EPSG,
			b.MinLat, b.MaxLat, b.MinLon, b.MaxLon, g.Footprint); err != nil {
			return fmt.Errorf("insert geometry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns a scene by id.
func (r *SceneRepo) GetByID(ctx context.Context, id int64) (*domain.Scene, error) {
	s, err := scanScene(r.db.Pool.QueryRow(ctx, sceneSelect+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSceneNotFound
	}
	return s, err
}

// First returns the scene with the lowest id.
func (r *SceneRepo) First(ctx context.Context) (*domain.Scene, error) {
	s, err := scanScene(r.db.Pool.QueryRow(ctx, sceneSelect+` ORDER BY s.id LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSceneNotFound
	}
	return s, err
}

// List returns a page of scenes ordered by id and the total count.
func (r *SceneRepo) List(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM scenes`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, sceneSelect+` ORDER BY s.id OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	scenes := []domain.Scene{}
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, 0, err
		}
		scenes = append(scenes, *s)
	}
	return scenes, total, rows.Err()
}

// KnownPaths returns the subset of paths already registered.
func (r *SceneRepo) KnownPaths(ctx context.Context, paths []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(paths) == 0 {
		return known, nil
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT filepath FROM scenes WHERE filepath = ANY($1)`, paths)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		known[p] = true
	}
	return known, rows.Err()
}

// Outputs lists processed rasters of a scene.
func (r *SceneRepo) Outputs(ctx context.Context, sceneID int64) ([]domain.SceneOutput, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, scene_id, description, filepath
		FROM scene_outputs WHERE scene_id = $1
		ORDER BY id
	`, sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outputs := []domain.SceneOutput{}
	for rows.Next() {
		var o domain.SceneOutput
		if err := rows.Scan(&o.ID, &o.SceneID, &o.Description, &o.FilePath); err != nil {
			return nil, err
		}
		outputs = append(outputs, o)
	}
	return outputs, rows.Err()
}

// AddOutput records a processed raster and sets out.ID.
func (r *SceneRepo) AddOutput(ctx context.Context, out *domain.SceneOutput) error {
	return r.db.Pool.QueryRow(ctx, `
		INSERT INTO scene_outputs (scene_id, description, filepath)
		VALUES ($1, $2, $3)
		RETURNING id
	`, out.SceneID, out.Description, out.FilePath).Scan(&out.ID)
}
