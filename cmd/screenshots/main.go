package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/browser"
	"github.com/ozrentals/drivenow-scraper/internal/config"
	"github.com/ozrentals/drivenow-scraper/internal/database"
	"github.com/ozrentals/drivenow-scraper/internal/scraper"
	"github.com/ozrentals/drivenow-scraper/internal/screenshot"
	"github.com/ozrentals/drivenow-scraper/internal/storage"
	"github.com/ozrentals/drivenow-scraper/pkg/logger"
)

// Standalone screenshot backfill: revisits today's combinations whose rows
// have no screenshot reference, without re-scraping vehicle data.
func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		dateStr    = flag.String("date", "", "Scrape day to backfill (YYYY-MM-DD, default today)")
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

	day := time.Now()
	if *dateStr != "" {
		day, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			log.Fatalf("Invalid -date value %q: %v", *dateStr, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	workers := cfg.Scraper.Parallel.Workers
	if !cfg.Scraper.Parallel.Enabled {
		workers = 1
	}

	var archiver scraper.Archiver
	if cfg.CloudStorage.Enabled {
		r2, err := storage.NewR2(cfg.Storage)
		if err != nil {
			slogger.Warn("cloud storage unavailable, keeping screenshots local", "error", err)
			archiver = screenshot.NewProcessor(cfg.Scraper.Screenshot, nil, workers)
		} else {
			archiver = screenshot.NewProcessor(cfg.Scraper.Screenshot, r2, workers)
		}
	} else {
		archiver = screenshot.NewProcessor(cfg.Scraper.Screenshot, nil, workers)
	}

	pool, err := browser.NewPool(cfg.Scraper)
	if err != nil {
		slogger.Error("failed to start browser", "error", err)
		os.Exit(1)
	}
	defer pool.ReleaseAll()

	if err := pool.Acquire(workers); err != nil {
		slogger.Error("failed to open browser contexts", "error", err)
		os.Exit(1)
	}

	collector := scraper.NewCollector(cfg.Scraper, archiver)
	backfiller := scraper.NewBackfiller(db, pool, collector, cfg.Scraper.Parallel.BatchSize)

	filled, err := backfiller.Run(ctx, day, cfg.Cities)
	if err != nil {
		slogger.Error("backfill failed", "filled", filled, "error", err)
		os.Exit(1)
	}
	slogger.Info("backfill complete", "day", day.Format("2006-01-02"), "combinations", filled)
}
