package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
)

const (
	requestTimeout = 15 * time.Second
	importTimeout  = 60 * time.Second
)

// SetupRoutes registers all REST, GraphQL, WebSocket and page routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP. A single map pan loads
	// dozens of tiles, so tiles and static assets are exempt.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return strings.HasPrefix(p, "/tiles/") || strings.HasPrefix(p, "/static/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(DeprecationMiddleware(legacyRoutes))

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/map", timeout.NewWithContext(MapConfigHandler(deps), requestTimeout))

	// Workspaces: the page's editable-layer group
	v1.Post("/workspaces", timeout.NewWithContext(CreateWorkspaceHandler(deps), requestTimeout))
	v1.Get("/workspaces/:id", timeout.NewWithContext(GetWorkspaceHandler(deps), requestTimeout))
	v1.Delete("/workspaces/:id", timeout.NewWithContext(DeleteWorkspaceHandler(deps), requestTimeout))
	v1.Get("/workspaces/:id/shapes", timeout.NewWithContext(ListShapesHandler(deps), requestTimeout))
	v1.Post("/workspaces/:id/shapes", timeout.NewWithContext(DrawShapeHandler(deps), requestTimeout))
	v1.Delete("/workspaces/:id/shapes", timeout.NewWithContext(ClearShapesHandler(deps), requestTimeout))
	v1.Patch("/workspaces/:id/shapes/:sid", timeout.NewWithContext(EditShapeHandler(deps), requestTimeout))
	v1.Delete("/workspaces/:id/shapes/:sid", timeout.NewWithContext(DeleteShapeHandler(deps), requestTimeout))
	v1.Get("/workspaces/:id/export", timeout.NewWithContext(ExportHandler(deps), requestTimeout))
	v1.Post("/workspaces/:id/import", timeout.NewWithContext(ImportHandler(deps), importTimeout))

	// Raster overlays
	v1.Get("/workspaces/:id/overlays", timeout.NewWithContext(ListOverlaysHandler(deps), requestTimeout))
	v1.Post("/workspaces/:id/overlays", timeout.NewWithContext(AddOverlayHandler(deps), requestTimeout))
	v1.Delete("/workspaces/:id/overlays/:oid", timeout.NewWithContext(DeleteOverlayHandler(deps), requestTimeout))
	v1.Get("/workspaces/:id/overlays/:oid/data", OverlayDataHandler(deps))

	// Scene catalog
	v1.Get("/scenes", timeout.NewWithContext(ListScenesHandler(deps), requestTimeout))
	v1.Get("/scenes/:id", timeout.NewWithContext(GetSceneHandler(deps), requestTimeout))
	v1.Get("/scenes/:id/meta", timeout.NewWithContext(SceneMetaHandler(deps), requestTimeout))
	v1.Get("/scenes/:id/outputs", timeout.NewWithContext(SceneOutputsHandler(deps), requestTimeout))
	v1.Post("/scenes/:id/outputs", timeout.NewWithContext(AddSceneOutputHandler(deps), requestTimeout))

	// Background tile proxy
	app.Get("/tiles/:z/:x/:y", timeout.NewWithContext(TileHandler(deps), requestTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app, deps.OpenAPIPath)

	// HTML pages
	SetupPages(app, deps)
	app.Get("/map", HomePageHandler())

	// WebSocket
	if deps.NATS != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
	}
}
