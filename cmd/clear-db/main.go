package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/config"
	"github.com/ozrentals/drivenow-scraper/internal/database"
	"github.com/ozrentals/drivenow-scraper/internal/storage"
	"github.com/ozrentals/drivenow-scraper/pkg/logger"
)

// Wipes the vehicles table after an interactive confirmation. With
// -screenshots the archived page shots referenced by the table are purged
// from R2 as well.
func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		screenshots = flag.Bool("screenshots", false, "Also delete archived screenshots from cloud storage")
		pickupDate  = flag.String("pickup-date", "", "Only delete rows with this pickup day (YYYY-MM-DD) instead of everything")
		yes         = flag.Bool("yes", false, "Skip the confirmation prompt")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	slogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if !*yes && !confirm(*screenshots, *pickupDate) {
		fmt.Println("Aborted.")
		return
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		slogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *pickupDate != "" {
		day, err := time.Parse("2006-01-02", *pickupDate)
		if err != nil {
			log.Fatalf("Invalid -pickup-date value %q: %v", *pickupDate, err)
		}
		count, refs, err := db.DeleteForPickupDate(ctx, day)
		if err != nil {
			slogger.Error("failed to delete pickup date rows", "error", err)
			os.Exit(1)
		}
		slogger.Info("pickup date cleared", "day", *pickupDate, "rows_removed", count)
		if *screenshots {
			purgeRefs(ctx, slogger, cfg, refs)
		}
		return
	}

	var refs []string
	if *screenshots {
		refs, err = db.AllScreenshotRefs(ctx)
		if err != nil {
			slogger.Error("failed to list screenshot references", "error", err)
			os.Exit(1)
		}
	}

	count, err := db.ClearAll(ctx)
	if err != nil {
		slogger.Error("failed to clear vehicles table", "error", err)
		os.Exit(1)
	}
	slogger.Info("vehicles table cleared", "rows_removed", count)

	if *screenshots {
		purgeRefs(ctx, slogger, cfg, refs)
	}
}

func purgeRefs(ctx context.Context, slogger *slog.Logger, cfg *config.Config, refs []string) {
	if len(refs) == 0 {
		return
	}
	r2, err := storage.NewR2(cfg.Storage)
	if err != nil {
		slogger.Error("cloud storage unavailable, screenshots not purged", "error", err)
		os.Exit(1)
	}
	purged := 0
	for _, ref := range refs {
		if err := r2.DeleteRef(ctx, ref); err != nil {
			slogger.Warn("failed to delete screenshot", "ref", ref, "error", err)
			continue
		}
		purged++
	}
	slogger.Info("screenshots purged", "deleted", purged, "total", len(refs))
}

func confirm(withScreenshots bool, pickupDate string) bool {
	if pickupDate != "" {
		fmt.Printf("This permanently deletes all rows with pickup day %s.\n", pickupDate)
	} else {
		fmt.Println("This permanently deletes ALL rows from the vehicles table.")
	}
	if withScreenshots {
		fmt.Println("Archived screenshots referenced by those rows will also be deleted.")
	}
	fmt.Print("Type 'yes' to continue: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(line)) == "yes"
}
