package usecases

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
)

// MapService hands out the initial map view.
type MapService struct {
	view          domain.MapView
	centerOnFirst bool
	scenes        ports.SceneRepository
}

// NewMapService creates a new MapService. When centerOnFirst is set and
// scenes is non-nil, views are centered on the first catalog scene.
func NewMapService(view domain.MapView, centerOnFirst bool, scenes ports.SceneRepository) *MapService {
	return &MapService{view: view, centerOnFirst: centerOnFirst, scenes: scenes}
}

// View returns the map configuration for a new page.
func (s *MapService) View(ctx context.Context) *domain.MapView {
	v := s.view
	v.TileLayer.Subdomains = append([]string(nil), s.view.TileLayer.Subdomains...)
	if !s.centerOnFirst || s.scenes == nil {
		return &v
	}

	scene, err := s.scenes.First(ctx)
	switch {
	case errors.Is(err, domain.ErrSceneNotFound):
		return &v
	case err != nil:
		slog.WarnContext(ctx, "first scene lookup failed, using configured center", "error", err)
		return &v
	}
	if scene.Geo != nil && !scene.Geo.Bounds.IsZero() {
		v.Center = scene.Geo.Bounds.Center()
	}
	return &v
}
