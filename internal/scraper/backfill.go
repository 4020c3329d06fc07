package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// BackfillStore is the slice of the database the backfiller needs.
type BackfillStore interface {
	VehiclesWithoutScreenshots(ctx context.Context, day time.Time) ([]*models.Vehicle, error)
	UpdateScreenshotPathForCombination(ctx context.Context, scrapeDay time.Time, city string, pickup, ret time.Time, ref string) (int64, error)
}

// Backfiller revisits combinations whose rows ended up without a screenshot
// reference, usually because the shot or upload failed mid-run, and takes
// one page shot per combination.
type Backfiller struct {
	store     BackfillStore
	pool      ContextProvider
	collector *Collector
	batchSize int
	logger    *slog.Logger
}

func NewBackfiller(store BackfillStore, pool ContextProvider, collector *Collector, batchSize int) *Backfiller {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Backfiller{
		store:     store,
		pool:      pool,
		collector: collector,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "backfill"),
	}
}

// MissingCombinations groups screenshot-less rows from one scrape day into
// unique combinations, resolving each city against the configured list so
// the revisit has coordinates to search with. Rows for unknown cities are
// skipped.
func MissingCombinations(vehicles []*models.Vehicle, cities []models.City) []models.Combination {
	byName := make(map[string]models.City, len(cities))
	for _, c := range cities {
		byName[c.Name] = c
	}

	seen := make(map[string]bool)
	var combos []models.Combination
	for _, v := range vehicles {
		city, ok := byName[v.City]
		if !ok {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s", v.City,
			v.PickupDate.Format("2006-01-02 15:04"), v.ReturnDate.Format("2006-01-02 15:04"))
		if seen[key] {
			continue
		}
		seen[key] = true
		combos = append(combos, models.Combination{City: city, Pickup: v.PickupDate, Return: v.ReturnDate})
	}
	return combos
}

// Run backfills every missing screenshot for the given scrape day.
// Combinations are processed in batches of the configured screenshot batch
// size, fanned out over the pool with one goroutine per batch member. A
// per-slot mutex keeps two members off the same browser context.
func (b *Backfiller) Run(ctx context.Context, day time.Time, cities []models.City) (int, error) {
	vehicles, err := b.store.VehiclesWithoutScreenshots(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("failed to find rows missing screenshots: %w", err)
	}
	combos := MissingCombinations(vehicles, cities)
	if len(combos) == 0 {
		b.logger.Info("no screenshots to backfill")
		return 0, nil
	}
	b.logger.Info("backfilling screenshots", "combinations", len(combos), "rows", len(vehicles))

	slots := b.pool.Size()
	if slots < 1 {
		slots = 1
	}
	slotLocks := make([]sync.Mutex, slots)

	filled := 0
	var mu sync.Mutex
	for start := 0; start < len(combos); start += b.batchSize {
		if ctx.Err() != nil {
			return filled, ctx.Err()
		}

		batch := combos[start:min(start+b.batchSize, len(combos))]
		var wg sync.WaitGroup
		for i, combo := range batch {
			wg.Add(1)
			go func(slot int, combo models.Combination) {
				defer wg.Done()
				if b.fillOne(ctx, slotLocks, slot, combo, day) {
					mu.Lock()
					filled++
					mu.Unlock()
				}
			}(i%slots, combo)
		}
		wg.Wait()
	}
	return filled, nil
}

func (b *Backfiller) fillOne(ctx context.Context, slotLocks []sync.Mutex, slot int, combo models.Combination, day time.Time) bool {
	slotLocks[slot].Lock()
	ref, err := b.collector.ScreenshotOnly(ctx, b.pool.Context(slot), combo, day)
	slotLocks[slot].Unlock()
	if err != nil {
		b.logger.Warn("backfill shot failed", "city", combo.City.Name, "error", err)
		return false
	}

	updated, err := b.store.UpdateScreenshotPathForCombination(ctx, day, combo.City.Name, combo.Pickup, combo.Return, ref)
	if err != nil {
		b.logger.Warn("failed to record backfilled screenshot", "city", combo.City.Name, "error", err)
		return false
	}
	b.logger.Info("backfilled combination", "city", combo.City.Name, "rows", updated)
	return true
}
