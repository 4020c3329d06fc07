package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/api"
	"github.com/ozrentals/drivenow-scraper/internal/browser"
	"github.com/ozrentals/drivenow-scraper/internal/config"
	"github.com/ozrentals/drivenow-scraper/internal/database"
	"github.com/ozrentals/drivenow-scraper/internal/events"
	"github.com/ozrentals/drivenow-scraper/internal/scraper"
	"github.com/ozrentals/drivenow-scraper/internal/screenshot"
	"github.com/ozrentals/drivenow-scraper/internal/storage"
	"github.com/ozrentals/drivenow-scraper/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		backfill   = flag.Bool("backfill", true, "Run the screenshot backfill pass after scraping")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slogger.Info("starting drivenow scraper", "cities", len(cfg.Cities), "return_days", cfg.DateConfig.ReturnDays)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slogger.Info("shutdown requested, finishing current combinations")
		cancel()
	}()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.InitSchema(ctx); err != nil {
		slogger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	var archiver scraper.Archiver
	if cfg.CloudStorage.Enabled && cfg.Scraper.Screenshot.Enabled {
		r2, err := storage.NewR2(cfg.Storage)
		if err != nil {
			slogger.Warn("cloud storage unavailable, keeping screenshots local", "error", err)
		} else {
			archiver = screenshot.NewProcessor(cfg.Scraper.Screenshot, r2, cfg.Scraper.Parallel.Workers)
		}
	} else if cfg.Scraper.Screenshot.Enabled {
		archiver = screenshot.NewProcessor(cfg.Scraper.Screenshot, nil, cfg.Scraper.Parallel.Workers)
	}

	pool, err := browser.NewPool(cfg.Scraper)
	if err != nil {
		slogger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer pool.ReleaseAll()

	// Phase 1 (collection) gets its own, larger context pool; the
	// screenshot phase later shrinks it to the general worker count.
	phase1 := cfg.Scraper.Parallel.Phase1Workers
	if !cfg.Scraper.Parallel.Enabled {
		phase1 = 1
	}
	if err := pool.Acquire(phase1); err != nil {
		slogger.Error("failed to open browser contexts", "error", err)
		os.Exit(1)
	}

	progress := api.NewProgress()
	reporters := []scraper.ProgressReporter{progress}

	if cfg.Redis.Addr != "" {
		publisher, err := events.NewPublisher(cfg.Redis.Addr, cfg.Redis.Stream)
		if err != nil {
			slogger.Warn("redis unavailable, progress events disabled", "error", err)
		} else {
			defer publisher.Close()
			reporters = append(reporters, publisher)
		}
	}

	if cfg.Status.Enabled {
		go api.Serve(ctx, cfg.Status.Addr, progress)
	}

	scrapedAt := time.Now()
	pickup, returns := cfg.PlanDates(scrapedAt)
	combos := scraper.Combinations(cfg.Cities, pickup, returns)
	slogger.Info("planned run",
		"pickup", pickup.Format("2006-01-02 15:04"),
		"combinations", len(combos))

	collector := scraper.NewCollector(cfg.Scraper, archiver)
	writer := scraper.NewWriter(db)
	orchestrator := scraper.NewOrchestrator(*cfg, pool, collector, writer, reporters...)

	summary := orchestrator.Run(ctx, combos, scrapedAt)

	if *backfill && ctx.Err() == nil && cfg.Scraper.Screenshot.Enabled {
		phase2 := cfg.Scraper.Parallel.Workers
		if !cfg.Scraper.Parallel.Enabled {
			phase2 = 1
		}
		pool.Shrink(phase2)
		backfiller := scraper.NewBackfiller(db, pool, collector, cfg.Scraper.Parallel.BatchSize)
		filled, err := backfiller.Run(ctx, scrapedAt, cfg.Cities)
		if err != nil {
			slogger.Warn("backfill pass incomplete", "filled", filled, "error", err)
		} else if filled > 0 {
			slogger.Info("backfill pass done", "combinations", filled)
		}
	}

	if ctx.Err() != nil {
		slogger.Info("run interrupted", "succeeded", summary.Succeeded, "failed", summary.Failed)
		return
	}
	if summary.Failed > 0 && summary.Succeeded == 0 {
		slogger.Error("every combination failed", "combinations", summary.Combinations)
		os.Exit(1)
	}
}
