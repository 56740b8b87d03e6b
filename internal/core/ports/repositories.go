package ports

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// WorkspaceRepository holds page-lifetime workspaces. Implementations must
// apply every mutation atomically and hand out copies, never shared state.
type WorkspaceRepository interface {
	Create(ctx context.Context) (*domain.Workspace, error)
	Get(ctx context.Context, id string) (*domain.Workspace, error)
	Delete(ctx context.Context, id string) error

	// AppendShapes adds layers and shapes in one step. It fails with
	// domain.ErrTooManyShapes when the result would exceed limit (0 = no limit).
	AppendShapes(ctx context.Context, id string, limit int, layers []domain.Layer, shapes []domain.Shape) error
	UpdateShape(ctx context.Context, id, shapeID string, geom orb.Geometry, props map[string]any) (*domain.Shape, error)
	RemoveShape(ctx context.Context, id, shapeID string) error
	ClearShapes(ctx context.Context, id string) (int, error)

	AddOverlay(ctx context.Context, id string, o domain.RasterOverlay) error
	RemoveOverlay(ctx context.Context, id, overlayID string) error
}

// SceneRepository persists the scene catalog.
type SceneRepository interface {
	Insert(ctx context.Context, scene *domain.Scene) error
	GetByID(ctx context.Context, id int64) (*domain.Scene, error)
	List(ctx context.Context, offset, limit int) ([]domain.Scene, int, error)
	First(ctx context.Context) (*domain.Scene, error)
	// KnownPaths returns the subset of paths already in the catalog.
	KnownPaths(ctx context.Context, paths []string) (map[string]bool, error)
	Outputs(ctx context.Context, sceneID int64) ([]domain.SceneOutput, error)
	AddOutput(ctx context.Context, out *domain.SceneOutput) error
}
