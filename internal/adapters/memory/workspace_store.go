// Package memory keeps page-lifetime workspaces in process memory.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
)

// WorkspaceStore implements ports.WorkspaceRepository. All reads return deep
// copies; all writes happen under one lock.
type WorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]*domain.Workspace
	now        func() time.Time
}

// NewWorkspaceStore creates an empty store.
func NewWorkspaceStore() *WorkspaceStore {
	return &WorkspaceStore{
		workspaces: make(map[string]*domain.Workspace),
		now:        time.Now,
	}
}

func (s *WorkspaceStore) Create(ctx context.Context) (*domain.Workspace, error) {
	now := s.now().UTC()
	w := &domain.Workspace{
		ID:        uuid.NewString(),
		Shapes:    []domain.Shape{},
		Layers:    []domain.Layer{},
		Overlays:  []domain.RasterOverlay{},
		CreatedAt: now,
		LastSeen:  now,
	}

	s.mu.Lock()
	s.workspaces[w.ID] = w
	metrics.ActiveWorkspaces.Set(float64(len(s.workspaces)))
	s.mu.Unlock()

	return copyWorkspace(w), nil
}

func (s *WorkspaceStore) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	w.LastSeen = s.now().UTC()
	return copyWorkspace(w), nil
}

func (s *WorkspaceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workspaces[id]; !ok {
		return domain.ErrWorkspaceNotFound
	}
	delete(s.workspaces, id)
	metrics.ActiveWorkspaces.Set(float64(len(s.workspaces)))
	return nil
}

func (s *WorkspaceStore) AppendShapes(ctx context.Context, id string, limit int, layers []domain.Layer, shapes []domain.Shape) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return err
	}
	if limit > 0 && len(w.Shapes)+len(shapes) > limit {
		return domain.ErrTooManyShapes
	}
	w.Layers = append(w.Layers, layers...)
	for _, sh := range shapes {
		w.Shapes = append(w.Shapes, sh.Clone())
	}
	return nil
}

func (s *WorkspaceStore) UpdateShape(ctx context.Context, id, shapeID string, geom orb.Geometry, props map[string]any) (*domain.Shape, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	for i := range w.Shapes {
		if w.Shapes[i].ID != shapeID {
			continue
		}
		if geom != nil {
			w.Shapes[i].Geometry = orb.Clone(geom)
		}
		if props != nil {
			if w.Shapes[i].Properties == nil {
				w.Shapes[i].Properties = make(map[string]any, len(props))
			}
			for k, v := range props {
				w.Shapes[i].Properties[k] = v
			}
		}
		out := w.Shapes[i].Clone()
		return &out, nil
	}
	return nil, domain.ErrShapeNotFound
}

func (s *WorkspaceStore) RemoveShape(ctx context.Context, id, shapeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return err
	}
	for i := range w.Shapes {
		if w.Shapes[i].ID == shapeID {
			w.Shapes = append(w.Shapes[:i], w.Shapes[i+1:]...)
			return nil
		}
	}
	return domain.ErrShapeNotFound
}

func (s *WorkspaceStore) ClearShapes(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return 0, err
	}
	n := len(w.Shapes)
	w.Shapes = []domain.Shape{}
	w.Layers = []domain.Layer{}
	return n, nil
}

func (s *WorkspaceStore) AddOverlay(ctx context.Context, id string, o domain.RasterOverlay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return err
	}
	w.Overlays = append(w.Overlays, copyOverlay(o))
	return nil
}

func (s *WorkspaceStore) RemoveOverlay(ctx context.Context, id, overlayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.touch(id)
	if err != nil {
		return err
	}
	for i := range w.Overlays {
		if w.Overlays[i].ID == overlayID {
			w.Overlays = append(w.Overlays[:i], w.Overlays[i+1:]...)
			return nil
		}
	}
	return domain.ErrOverlayNotFound
}

// Len returns the number of live workspaces.
func (s *WorkspaceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}

// EvictIdle drops workspaces not seen since before cutoff and returns how
// many were removed.
func (s *WorkspaceStore) EvictIdle(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, w := range s.workspaces {
		if w.LastSeen.Before(cutoff) {
			delete(s.workspaces, id)
			n++
		}
	}
	metrics.ActiveWorkspaces.Set(float64(len(s.workspaces)))
	return n
}

// StartJanitor evicts idle workspaces every interval until ctx is done.
func (s *WorkspaceStore) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.EvictIdle(s.now().UTC().Add(-ttl)); n > 0 {
					slog.Info("evicted idle workspaces", "count", n, "remaining", s.Len())
				}
			}
		}
	}()
}

// touch must be called with mu held.
func (s *WorkspaceStore) touch(id string) (*domain.Workspace, error) {
	w, ok := s.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	w.LastSeen = s.now().UTC()
	return w, nil
}

func copyWorkspace(w *domain.Workspace) *domain.Workspace {
	c := *w
	c.Shapes = make([]domain.Shape, len(w.Shapes))
	for i, sh := range w.Shapes {
		c.Shapes[i] = sh.Clone()
	}
	c.Layers = append([]domain.Layer{}, w.Layers...)
	c.Overlays = make([]domain.RasterOverlay, len(w.Overlays))
	for i, o := range w.Overlays {
		c.Overlays[i] = copyOverlay(o)
	}
	return &c
}

func copyOverlay(o domain.RasterOverlay) domain.RasterOverlay {
	if o.Bounds != nil {
		b := *o.Bounds
		o.Bounds = &b
	}
	return o
}
