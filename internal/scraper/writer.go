package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// VehicleStore is the slice of the database layer the writer needs.
type VehicleStore interface {
	DeleteForCombination(ctx context.Context, scrapeDay time.Time, city string, pickup, ret time.Time) (int64, error)
	InsertVehicle(ctx context.Context, v *models.Vehicle) error
}

// Writer serializes all database writes for a run. Collection fans out
// across goroutines but persistence happens one combination at a time:
// stale rows for the combination are removed first so re-runs within the
// same day replace rather than duplicate.
type Writer struct {
	store  VehicleStore
	mu     sync.Mutex
	logger *slog.Logger
}

func NewWriter(store VehicleStore) *Writer {
	return &Writer{
		store:  store,
		logger: slog.Default().With("component", "writer"),
	}
}

// WriteCombination persists one combination's vehicles. Individual insert
// failures skip that record and keep going; only the delete failing aborts,
// since inserting after a failed delete would duplicate rows.
func (w *Writer) WriteCombination(ctx context.Context, combo models.Combination, scrapedAt time.Time, vehicles []*models.Vehicle) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	deleted, err := w.store.DeleteForCombination(ctx, scrapedAt, combo.City.Name, combo.Pickup, combo.Return)
	if err != nil {
		return 0, fmt.Errorf("failed to clear previous rows for %s: %w", combo.City.Name, err)
	}
	if deleted > 0 {
		w.logger.Info("replaced earlier attempt",
			"city", combo.City.Name,
			"pickup", combo.Pickup.Format("2006-01-02"),
			"return", combo.Return.Format("2006-01-02"),
			"deleted", deleted)
	}

	inserted := 0
	for _, v := range vehicles {
		if err := w.store.InsertVehicle(ctx, v); err != nil {
			w.logger.Warn("failed to insert vehicle",
				"city", combo.City.Name, "vehicle", stringOrEmpty(v.VehicleName), "error", err)
			continue
		}
		inserted++
	}
	return inserted, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
