package usecases

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
)

// OverlayService manages raster overlay references of a workspace. It never
// decodes rasters; Open streams the raw bytes to the page.
type OverlayService struct {
	workspaces ports.WorkspaceRepository
	dataDir    string
	client     *http.Client
	events     ports.EventPublisher
	now        func() time.Time
}

// NewOverlayService creates a new OverlayService. Local sources resolve
// inside dataDir. client and events may be nil.
func NewOverlayService(workspaces ports.WorkspaceRepository, dataDir string, client *http.Client, events ports.EventPublisher) *OverlayService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OverlayService{
		workspaces: workspaces,
		dataDir:    dataDir,
		client:     client,
		events:     events,
		now:        time.Now,
	}
}

// Add validates o and attaches it to the workspace with defaults applied.
func (s *OverlayService) Add(ctx context.Context, workspaceID string, o domain.RasterOverlay) (*domain.RasterOverlay, error) {
	if _, err := s.resolve(o.Source); err != nil {
		return nil, err
	}
	if o.Bounds != nil && !o.Bounds.Valid() {
		return nil, fmt.Errorf("%w: bounds out of range", domain.ErrInvalidSource)
	}
	if o.Opacity == 0 {
		o.Opacity = domain.DefaultOverlayOpacity
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return nil, fmt.Errorf("%w: opacity must be within 0..1", domain.ErrInvalidSource)
	}
	if o.Resolution == 0 {
		o.Resolution = domain.DefaultOverlayResolution
	}
	if o.Resolution < 0 {
		return nil, fmt.Errorf("%w: resolution must be positive", domain.ErrInvalidSource)
	}
	if o.Name == "" {
		o.Name = path.Base(o.Source)
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}
	o.ID = id
	o.CreatedAt = s.now().UTC()

	if err := s.workspaces.AddOverlay(ctx, workspaceID, o); err != nil {
		return nil, err
	}
	s.publish(ctx, domain.EventOverlayAdded, workspaceID)
	return &o, nil
}

// List returns the overlays of a workspace.
func (s *OverlayService) List(ctx context.Context, workspaceID string) ([]domain.RasterOverlay, error) {
	w, err := s.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return w.Overlays, nil
}

// Remove detaches an overlay.
func (s *OverlayService) Remove(ctx context.Context, workspaceID, overlayID string) error {
	if err := s.workspaces.RemoveOverlay(ctx, workspaceID, overlayID); err != nil {
		return err
	}
	s.publish(ctx, domain.EventOverlayRemoved, workspaceID)
	return nil
}

// Open streams the raster bytes of an overlay. The caller closes the reader.
func (s *OverlayService) Open(ctx context.Context, workspaceID, overlayID string) (io.ReadCloser, error) {
	overlays, err := s.List(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for _, o := range overlays {
		if o.ID != overlayID {
			continue
		}
		src, err := s.resolve(o.Source)
		if err != nil {
			return nil, err
		}
		if src.remote {
			return s.fetch(ctx, src.location)
		}
		f, err := os.Open(src.location)
		if err != nil {
			return nil, fmt.Errorf("open overlay %s: %w", o.ID, err)
		}
		return f, nil
	}
	return nil, domain.ErrOverlayNotFound
}

type overlaySource struct {
	location string
	remote   bool
}

// resolve maps a source to a URL or to an existing file under dataDir.
func (s *OverlayService) resolve(source string) (overlaySource, error) {
	if source == "" {
		return overlaySource{}, fmt.Errorf("%w: empty source", domain.ErrInvalidSource)
	}
	if u, err := url.Parse(source); err == nil && u.Scheme != "" {
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return overlaySource{}, fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidSource, u.Scheme)
		}
		return overlaySource{location: source, remote: true}, nil
	}

	rel := filepath.Clean(filepath.FromSlash(source))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return overlaySource{}, fmt.Errorf("%w: %q escapes the data directory", domain.ErrInvalidSource, source)
	}
	full := filepath.Join(s.dataDir, rel)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return overlaySource{}, fmt.Errorf("%w: %q is not a file", domain.ErrInvalidSource, source)
	}
	return overlaySource{location: full}, nil
}

func (s *OverlayService) fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch overlay: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch overlay: upstream status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *OverlayService) publish(ctx context.Context, typ, workspaceID string) {
	if s.events == nil {
		return
	}
	ev := &domain.WorkspaceEvent{Type: typ, WorkspaceID: workspaceID, Time: s.now().UTC()}
	if err := s.events.PublishWorkspaceEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publish overlay event", "type", typ, "workspace_id", workspaceID, "error", err)
	}
}
