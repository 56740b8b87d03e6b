package ports

import (
	"context"
	"io"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/pkg/shapefile"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishWorkspaceEvent(ctx context.Context, ev *domain.WorkspaceEvent) error
	PublishSceneRegistered(ctx context.Context, scene *domain.Scene) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// ArchiveDecoder turns a zipped shapefile bundle into feature layers.
type ArchiveDecoder interface {
	Decode(r io.ReaderAt, size int64) ([]shapefile.Layer, error)
}
