package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
)

const sceneFirstKey = "scenes:first"

func sceneKey(id int64) string { return fmt.Sprintf("scenes:id:%d", id) }

// SceneService reads the scene catalog.
type SceneService struct {
	scenes ports.SceneRepository
	cache  ports.CacheService
}

// NewSceneService creates a new SceneService. cache may be nil.
func NewSceneService(scenes ports.SceneRepository, cache ports.CacheService) *SceneService {
	return &SceneService{scenes: scenes, cache: cache}
}

// List returns a page of scenes ordered by id and the total count.
func (s *SceneService) List(ctx context.Context, offset, limit int) ([]domain.Scene, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.scenes.List(ctx, offset, limit)
}

// Get returns a single scene with metadata and geometry.
func (s *SceneService) Get(ctx context.Context, id int64) (*domain.Scene, error) {
	return s.cached(ctx, sceneKey(id), 600, func() (*domain.Scene, error) {
		return s.scenes.GetByID(ctx, id)
	})
}

// First returns the scene with the lowest id.
func (s *SceneService) First(ctx context.Context) (*domain.Scene, error) {
	return s.cached(ctx, sceneFirstKey, 300, func() (*domain.Scene, error) {
		return s.scenes.First(ctx)
	})
}

// Meta returns the attribute table shown on a scene's metadata page.
func (s *SceneService) Meta(ctx context.Context, id int64) ([]domain.MetaRow, error) {
	scene, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return scene.MetaTable(), nil
}

// Outputs lists processed rasters derived from a scene.
func (s *SceneService) Outputs(ctx context.Context, id int64) ([]domain.SceneOutput, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.scenes.Outputs(ctx, id)
}

func (s *SceneService) cached(ctx context.Context, key string, ttl int, load func() (*domain.Scene, error)) (*domain.Scene, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var scene domain.Scene
			if err := json.Unmarshal(data, &scene); err == nil {
				metrics.CacheHits.WithLabelValues("scene").Inc()
				return &scene, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("scene").Inc()
	}

	scene, err := load()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(scene); err == nil {
			_ = s.cache.Set(ctx, key, data, ttl)
		}
	}
	return scene, nil
}

// AddOutput records a processed raster for an existing scene.
func (s *SceneService) AddOutput(ctx context.Context, sceneID int64, description, path string) (*domain.SceneOutput, error) {
	if description == "" || path == "" {
		return nil, fmt.Errorf("description and filepath are required")
	}
	if _, err := s.Get(ctx, sceneID); err != nil {
		return nil, err
	}
	out := &domain.SceneOutput{SceneID: sceneID, Description: description, FilePath: path}
	if err := s.scenes.AddOutput(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Forget drops cached copies of a scene and of the first-scene lookup.
func (s *SceneService) Forget(ctx context.Context, id int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, sceneKey(id)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, sceneFirstKey)
}
