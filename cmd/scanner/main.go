package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/s1webapp/internal/adapters/nats"
	"github.com/samirrijal/s1webapp/internal/adapters/postgres"
	"github.com/samirrijal/s1webapp/internal/adapters/valkey"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/core/usecases"
	"github.com/samirrijal/s1webapp/internal/pkg/config"
	"github.com/samirrijal/s1webapp/internal/pkg/logging"
	"github.com/samirrijal/s1webapp/internal/pkg/telemetry"
	"github.com/samirrijal/s1webapp/internal/workflows"
)

const usage = "usage: scanner <worker|run [dir]|cron <schedule> [dir]>"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load("s1webapp-scanner")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("s1webapp-scanner", cfg.Log.Level, cfg.Log.Format)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	switch os.Args[1] {
	case "worker":
		runWorker(cfg, c)
	case "run":
		startScan(c, cfg.Temporal.TaskQueue, scanDir(cfg, 2), "")
	case "cron":
		if len(os.Args) < 3 {
			log.Fatal(usage)
		}
		startScan(c, cfg.Temporal.TaskQueue, scanDir(cfg, 3), os.Args[2])
	default:
		log.Fatalf("unknown command: %s\n%s", os.Args[1], usage)
	}
}

func scanDir(cfg *config.Config, arg int) string {
	if len(os.Args) > arg {
		return os.Args[arg]
	}
	return cfg.Data.ScanDir
}

// runWorker hosts the scan workflow and its activities until interrupted.
func runWorker(cfg *config.Config, c client.Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	var events ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, scene events disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	scanner := usecases.NewScanService(postgres.NewSceneRepo(db), events, cache)

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SceneScanWorkflow)
	w.RegisterActivity(&workflows.ScanActivities{Scanner: scanner})

	slog.Info("scanner worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// startScan starts a scan of dir. With a cron schedule the workflow repeats
// and startScan returns right away; otherwise it waits for the result.
func startScan(c client.Client, taskQueue, dir, schedule string) {
	ctx := context.Background()
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("scene-scan-%d", time.Now().Unix()),
		TaskQueue: taskQueue,
	}
	if schedule != "" {
		opts.ID = "scene-scan-cron"
		opts.CronSchedule = schedule
	}

	run, err := c.ExecuteWorkflow(ctx, opts, workflows.SceneScanWorkflow, workflows.ScanInput{Dir: dir})
	if err != nil {
		log.Fatalf("start scan: %v", err)
	}
	slog.Info("scan started", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "dir", dir, "schedule", schedule)
	if schedule != "" {
		return
	}

	var res workflows.ScanResult
	if err := run.Get(ctx, &res); err != nil {
		log.Fatalf("scan failed: %v", err)
	}
	fmt.Printf("found %d new files: %d registered, %d skipped, %d failed\n",
		res.Found, len(res.Registered), len(res.Skipped), len(res.Failed))
}
