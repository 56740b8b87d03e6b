package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/s1webapp/internal/adapters/http"
	"github.com/samirrijal/s1webapp/internal/adapters/memory"
	natsadapter "github.com/samirrijal/s1webapp/internal/adapters/nats"
	"github.com/samirrijal/s1webapp/internal/adapters/postgres"
	"github.com/samirrijal/s1webapp/internal/adapters/valkey"
	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
	"github.com/samirrijal/s1webapp/internal/pkg/config"
	"github.com/samirrijal/s1webapp/internal/pkg/logging"
	"github.com/samirrijal/s1webapp/internal/pkg/shapefile"
	"github.com/samirrijal/s1webapp/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("s1webapp-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup("s1webapp-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database: optional, the scene catalog is disabled without it
	var sceneRepo ports.SceneRepository
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("database unavailable, scene catalog disabled", "error", err)
		db = nil
	} else {
		defer db.Close()
		db.ReportPoolStats(ctx, 15*time.Second)
		sceneRepo = postgres.NewSceneRepo(db)
	}

	// Cache
	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
		vc = nil
	} else {
		defer vc.Close()
		cache = vc
	}

	// NATS
	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
		natsConn = nil
	} else {
		defer natsConn.Close()
	}

	// Workspaces live in memory for the lifetime of their page
	store := memory.NewWorkspaceStore()
	store.StartJanitor(ctx, cfg.Workspace.JanitorEvery, cfg.Workspace.IdleTTL)

	view := mapView(cfg)

	// Use cases
	deps := &http.Dependencies{
		Workspaces: usecases.NewWorkspaceService(store, shapefile.Decoder{}, events, usecases.WorkspaceOptions{
			Draw:           view.Draw,
			MaxShapes:      cfg.Workspace.MaxShapes,
			MaxImportBytes: cfg.Import.MaxBytes,
		}),
		Overlays:       usecases.NewOverlayService(store, cfg.Data.Dir, nil, events),
		Maps:           usecases.NewMapService(view, cfg.Map.CenterOnFirstScene, sceneRepo),
		NATS:           natsConn,
		DB:             db,
		Cache:          vc,
		MaxImportBytes: cfg.Import.MaxBytes,
		OpenAPIPath:    cfg.Server.OpenAPIPath,
	}
	if sceneRepo != nil {
		deps.Scenes = usecases.NewSceneService(sceneRepo, cache)
	}
	if cfg.Tiles.Proxy {
		client := &nethttp.Client{Timeout: cfg.Tiles.FetchTimeout}
		deps.Tiles = usecases.NewTileService(view.TileLayer, cache, client, cfg.Tiles.CacheTTL, cfg.Tiles.UserAgent)
	}

	// Drop cached scenes whenever the scanner registers a new one
	if deps.Scenes != nil && cache != nil {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("scene subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			err = sub.SubscribeSceneRegistered(ctx, "s1webapp-api", func(ctx context.Context, scene *domain.Scene) error {
				return deps.Scenes.Forget(ctx, scene.ID)
			})
			if err != nil {
				slog.Warn("subscribe scene registrations", "error", err)
			}
		}
	}

	// Fiber
	bodyLimit := 4 * 1024 * 1024
	if n := int(cfg.Import.MaxBytes) + 1024*1024; n > bodyLimit {
		bodyLimit = n
	}
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    bodyLimit,
		AppName:      "S1 WebApp",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("web app starting", "addr", addr, "scenes", deps.Scenes != nil, "tile_proxy", deps.Tiles != nil)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// mapView builds the initial map view from configuration.
func mapView(cfg *config.Config) domain.MapView {
	return domain.MapView{
		Center: domain.GeoPoint{Lat: cfg.Map.CenterLat, Lon: cfg.Map.CenterLon},
		Zoom:   cfg.Map.Zoom,
		TileLayer: domain.TileLayer{
			URLTemplate: cfg.Map.TileURL,
			Attribution: cfg.Map.TileAttribution,
			MaxZoom:     cfg.Map.MaxZoom,
			Subdomains:  cfg.Map.TileSubdomains,
		},
		Draw: domain.DrawOptions{
			Polygon:      cfg.Draw.Polygon,
			Rectangle:    cfg.Draw.Rectangle,
			Circle:       cfg.Draw.Circle,
			Polyline:     cfg.Draw.Polyline,
			Marker:       cfg.Draw.Marker,
			CircleMarker: cfg.Draw.CircleMarker,
			Remove:       cfg.Draw.Remove,
		},
	}
}
