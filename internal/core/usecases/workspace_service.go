package usecases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/pkg/geoexport"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
	"github.com/samirrijal/s1webapp/internal/pkg/telemetry"
)

// WorkspaceOptions carries the configured limits and enabled draw tools.
type WorkspaceOptions struct {
	Draw           domain.DrawOptions
	MaxShapes      int
	MaxImportBytes int64
}

// WorkspaceService owns the editable-geometry collection of each map page:
// drawing, editing, removing, exporting and importing shapes.
type WorkspaceService struct {
	workspaces ports.WorkspaceRepository
	decoder    ports.ArchiveDecoder
	events     ports.EventPublisher
	opts       WorkspaceOptions
	now        func() time.Time
}

// NewWorkspaceService creates a new WorkspaceService. events may be nil.
func NewWorkspaceService(workspaces ports.WorkspaceRepository, decoder ports.ArchiveDecoder, events ports.EventPublisher, opts WorkspaceOptions) *WorkspaceService {
	return &WorkspaceService{
		workspaces: workspaces,
		decoder:    decoder,
		events:     events,
		opts:       opts,
		now:        time.Now,
	}
}

// Create starts an empty workspace for a freshly loaded page.
func (s *WorkspaceService) Create(ctx context.Context) (*domain.Workspace, error) {
	return s.workspaces.Create(ctx)
}

// Get returns a workspace snapshot.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	return s.workspaces.Get(ctx, id)
}

// Close discards a workspace when its page unloads.
func (s *WorkspaceService) Close(ctx context.Context, id string) error {
	return s.workspaces.Delete(ctx, id)
}

// Shapes returns the shapes of a workspace in insertion order.
func (s *WorkspaceService) Shapes(ctx context.Context, id string) ([]domain.Shape, error) {
	w, err := s.workspaces.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.Shapes, nil
}

// Draw adds a shape produced by one of the enabled draw tools.
func (s *WorkspaceService) Draw(ctx context.Context, id, kind string, geom orb.Geometry, props map[string]any) (*domain.Shape, error) {
	k, err := domain.ParseShapeKind(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, kind)
	}
	if !s.opts.Draw.Enabled(k) {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolDisabled, k)
	}
	if err := validateDrawn(k, geom, props); err != nil {
		return nil, err
	}

	shapeID, err := newID()
	if err != nil {
		return nil, err
	}
	shape := domain.Shape{
		ID:         shapeID,
		Kind:       k,
		Geometry:   geom,
		Properties: props,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.workspaces.AppendShapes(ctx, id, s.opts.MaxShapes, nil, []domain.Shape{shape}); err != nil {
		return nil, err
	}

	metrics.ShapesDrawn.WithLabelValues(string(k)).Inc()
	s.publish(ctx, &domain.WorkspaceEvent{Type: domain.EventShapeCreated, WorkspaceID: id, ShapeID: shapeID})
	return &shape, nil
}

// Edit replaces the geometry of a shape and merges props into its
// properties. The new geometry must still fit the shape's kind.
func (s *WorkspaceService) Edit(ctx context.Context, id, shapeID string, geom orb.Geometry, props map[string]any) (*domain.Shape, error) {
	w, err := s.workspaces.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var current *domain.Shape
	for i := range w.Shapes {
		if w.Shapes[i].ID == shapeID {
			current = &w.Shapes[i]
			break
		}
	}
	if current == nil {
		return nil, domain.ErrShapeNotFound
	}

	if geom == nil {
		geom = current.Geometry
	}
	if current.Kind != domain.KindFeature {
		merged := make(map[string]any, len(current.Properties)+len(props))
		for k, v := range current.Properties {
			merged[k] = v
		}
		for k, v := range props {
			merged[k] = v
		}
		if err := validateDrawn(current.Kind, geom, merged); err != nil {
			return nil, err
		}
	} else if !domain.BoundsFromOrb(geom.Bound()).Valid() {
		return nil, fmt.Errorf("%w: coordinates outside WGS 84 range", domain.ErrInvalidGeometry)
	}

	updated, err := s.workspaces.UpdateShape(ctx, id, shapeID, geom, props)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &domain.WorkspaceEvent{Type: domain.EventShapeUpdated, WorkspaceID: id, ShapeID: shapeID})
	return updated, nil
}

// Remove deletes one shape.
func (s *WorkspaceService) Remove(ctx context.Context, id, shapeID string) error {
	if !s.opts.Draw.Remove {
		return fmt.Errorf("%w: remove", domain.ErrToolDisabled)
	}
	if err := s.workspaces.RemoveShape(ctx, id, shapeID); err != nil {
		return err
	}
	s.publish(ctx, &domain.WorkspaceEvent{Type: domain.EventShapeDeleted, WorkspaceID: id, ShapeID: shapeID})
	return nil
}

// Clear deletes every shape and imported layer and returns how many shapes
// were removed.
func (s *WorkspaceService) Clear(ctx context.Context, id string) (int, error) {
	if !s.opts.Draw.Remove {
		return 0, fmt.Errorf("%w: remove", domain.ErrToolDisabled)
	}
	n, err := s.workspaces.ClearShapes(ctx, id)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, &domain.WorkspaceEvent{Type: domain.EventWorkspaceCleared, WorkspaceID: id, Count: n})
	return n, nil
}

// Export serializes the workspace as a GeoJSON FeatureCollection with one
// feature per shape. An empty workspace yields domain.ErrNothingToExport.
func (s *WorkspaceService) Export(ctx context.Context, id string) (*domain.Export, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanWorkspaceExport)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrWorkspaceID, id))

	w, err := s.workspaces.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(w.Shapes) == 0 {
		metrics.Exports.WithLabelValues("empty").Inc()
		return nil, domain.ErrNothingToExport
	}

	doc, err := json.Marshal(geoexport.FeatureCollection(w.Shapes))
	if err != nil {
		metrics.Exports.WithLabelValues("error").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("marshal feature collection: %w", err)
	}

	span.SetAttributes(attribute.Int(telemetry.AttrShapeCount, len(w.Shapes)))
	metrics.Exports.WithLabelValues("ok").Inc()
	slog.DebugContext(ctx, "workspace exported", "workspace_id", id, "shapes", len(w.Shapes), "bytes", len(doc))

	return &domain.Export{
		Document:   doc,
		FileName:   geoexport.FileName,
		DataURI:    geoexport.DataURI(doc),
		ShapeCount: len(w.Shapes),
	}, nil
}

// Import adds every feature of a zipped shapefile bundle to the workspace.
// fileName must end in .zip; otherwise r is never read. size is the
// declared upload size, or -1 when unknown. Nothing is added unless the
// whole archive decodes.
func (s *WorkspaceService) Import(ctx context.Context, id, fileName string, r io.Reader, size int64) (*domain.ImportResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanWorkspaceImport)
	defer span.End()
	span.SetAttributes(
		attribute.String(telemetry.AttrWorkspaceID, id),
		attribute.String(telemetry.AttrFileName, fileName),
		attribute.Int64(telemetry.AttrFileSize, size),
	)

	res, err := s.importArchive(ctx, id, fileName, r, size)
	if err != nil {
		metrics.Imports.WithLabelValues(importResultLabel(err)).Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	metrics.Imports.WithLabelValues("ok").Inc()
	metrics.ImportedFeatures.Add(float64(len(res.Shapes)))
	span.SetAttributes(attribute.Int(telemetry.AttrLayerCount, len(res.Layers)))
	return res, nil
}

func (s *WorkspaceService) importArchive(ctx context.Context, id, fileName string, r io.Reader, size int64) (*domain.ImportResult, error) {
	if !domain.IsZipName(fileName) {
		return nil, domain.ErrNotZipArchive
	}
	if _, err := s.workspaces.Get(ctx, id); err != nil {
		return nil, err
	}

	limit := s.opts.MaxImportBytes
	if limit > 0 && size > limit {
		return nil, domain.ErrArchiveTooLarge
	}

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableFile, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, domain.ErrArchiveTooLarge
	}
	if size >= 0 && int64(len(data)) != size {
		return nil, fmt.Errorf("%w: read %d of %d bytes", domain.ErrUnreadableFile, len(data), size)
	}
	metrics.ImportSize.Observe(float64(len(data)))

	_, decodeSpan := telemetry.Tracer().Start(ctx, telemetry.SpanArchiveDecode)
	decoded, err := s.decoder.Decode(bytes.NewReader(data), int64(len(data)))
	decodeSpan.End()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableFile, err)
	}

	now := s.now().UTC()
	res := &domain.ImportResult{Layers: []domain.Layer{}, Shapes: []domain.Shape{}}
	var bound orb.Bound
	for _, l := range decoded {
		layerID, err := newID()
		if err != nil {
			return nil, err
		}
		layer := domain.Layer{
			ID:           layerID,
			Name:         l.Name,
			Source:       domain.LayerSourceShapefile,
			Projection:   l.Projection,
			FeatureCount: len(l.Features.Features),
			CreatedAt:    now,
		}
		if layer.FeatureCount > 0 {
			lb := l.Bound()
			layer.Bounds = domain.BoundsFromOrb(lb)
			if len(res.Shapes) == 0 {
				bound = lb
			} else {
				bound = bound.Union(lb)
			}
		}

		for _, f := range l.Features.Features {
			shapeID, err := newID()
			if err != nil {
				return nil, err
			}
			res.Shapes = append(res.Shapes, domain.Shape{
				ID:         shapeID,
				Kind:       domain.KindFeature,
				Geometry:   f.Geometry,
				Properties: f.Properties,
				LayerID:    layerID,
				CreatedAt:  now,
			})
		}
		res.Layers = append(res.Layers, layer)
	}
	if len(res.Shapes) > 0 {
		res.Bounds = domain.BoundsFromOrb(bound)
	}

	if err := s.workspaces.AppendShapes(ctx, id, s.opts.MaxShapes, res.Layers, res.Shapes); err != nil {
		return nil, err
	}

	for _, l := range res.Layers {
		s.publish(ctx, &domain.WorkspaceEvent{Type: domain.EventLayerImported, WorkspaceID: id, LayerID: l.ID, Count: l.FeatureCount})
	}
	slog.InfoContext(ctx, "shapefile imported",
		"workspace_id", id, "file", fileName, "layers", len(res.Layers), "features", len(res.Shapes))
	return res, nil
}

// publish sends a workspace event. Failures are logged and never returned.
func (s *WorkspaceService) publish(ctx context.Context, ev *domain.WorkspaceEvent) {
	if s.events == nil {
		return
	}
	ev.Time = s.now().UTC()
	if err := s.events.PublishWorkspaceEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publish workspace event", "type", ev.Type, "workspace_id", ev.WorkspaceID, "error", err)
	}
}

func importResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotZipArchive):
		return "not_zip"
	case errors.Is(err, domain.ErrArchiveTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrUnreadableFile):
		return "unreadable"
	}
	return "error"
}
