package http

import (
	"github.com/nats-io/nats.go"
	"github.com/samirrijal/s1webapp/internal/adapters/postgres"
	"github.com/samirrijal/s1webapp/internal/adapters/valkey"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Workspaces *usecases.WorkspaceService
	Overlays   *usecases.OverlayService
	Maps       *usecases.MapService
	Tiles      *usecases.TileService  // nil unless tiles.proxy is set
	Scenes     *usecases.SceneService // nil without a database
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache

	// MaxImportBytes bounds shapefile uploads; 0 disables the check.
	MaxImportBytes int64

	// OpenAPIPath is served at /docs/openapi.yaml; empty means api/openapi.yaml.
	OpenAPIPath string
}
