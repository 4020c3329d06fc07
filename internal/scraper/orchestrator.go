package scraper

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/ozrentals/drivenow-scraper/internal/config"
	"github.com/ozrentals/drivenow-scraper/internal/models"
	"github.com/ozrentals/drivenow-scraper/internal/ratelimit"
)

// CombinationCollector abstracts page collection so orchestration can be
// tested without a browser.
type CombinationCollector interface {
	Collect(ctx context.Context, browserCtx playwright.BrowserContext, combo models.Combination, scrapedAt time.Time) (*CollectResult, error)
}

// ContextProvider is the slice of the browser pool the orchestrator uses.
type ContextProvider interface {
	Size() int
	Context(i int) playwright.BrowserContext
}

// ProgressReporter receives run milestones. Implementations must be safe
// for concurrent use.
type ProgressReporter interface {
	RunStarted(runID string, total int)
	CombinationDone(runID string, combo models.Combination, vehicles int, err error)
	RunFinished(runID string, summary Summary)
}

// Summary is what one full run produced.
type Summary struct {
	RunID          string
	Combinations   int
	Succeeded      int
	Failed         int
	Inserted       int
	PerCity        map[string]int
	WithDetailURL  int
	WithScreenshot int
	Duration       time.Duration
}

// Orchestrator fans combinations out over the browser pool in waves. Every
// city maps to one pool slot by name hash, and a per-slot mutex guarantees
// a browser context is never driven by two goroutines at once. One failing
// combination never stops the run.
type Orchestrator struct {
	cfg       config.Config
	pool      ContextProvider
	collector CombinationCollector
	writer    *Writer
	limiter   *ratelimit.Limiter
	reporters []ProgressReporter
	logger    *slog.Logger

	sleep func(time.Duration)
	randf func() float64
}

func NewOrchestrator(cfg config.Config, pool ContextProvider, collector CombinationCollector, writer *Writer, reporters ...ProgressReporter) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		pool:      pool,
		collector: collector,
		writer:    writer,
		limiter:   ratelimit.New(cfg.Scraper.RateLimiting),
		reporters: reporters,
		logger:    slog.Default().With("component", "orchestrator"),
		sleep:     time.Sleep,
		randf:     rand.Float64,
	}
}

// Combinations builds the full cross product of cities and return dates for
// one pickup timestamp, cities outermost so neighbouring combinations hit
// different slots.
func Combinations(cities []models.City, pickup time.Time, returns []time.Time) []models.Combination {
	combos := make([]models.Combination, 0, len(cities)*len(returns))
	for _, ret := range returns {
		for _, city := range cities {
			combos = append(combos, models.Combination{City: city, Pickup: pickup, Return: ret})
		}
	}
	return combos
}

// SlotFor maps a city to a pool slot. The mapping is stable within a run so
// a city always reuses the same browser context and its warmed-up session.
func SlotFor(cityName string, slots int) int {
	if slots <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(cityName))
	return int(h.Sum32() % uint32(slots))
}

// Run scrapes every combination and returns the run summary. The context
// cancels between combinations, not mid-page.
func (o *Orchestrator) Run(ctx context.Context, combos []models.Combination, scrapedAt time.Time) Summary {
	runID := uuid.New().String()
	start := time.Now()
	summary := Summary{RunID: runID, Combinations: len(combos), PerCity: make(map[string]int)}

	for _, r := range o.reporters {
		r.RunStarted(runID, len(combos))
	}

	slots := o.pool.Size()
	if slots < 1 {
		slots = 1
	}
	slotLocks := make([]sync.Mutex, slots)

	// Collection waves are sized by the phase-1 worker count, which also
	// sized the pool; batch_size belongs to the screenshot phase.
	batch := o.cfg.Scraper.Parallel.Phase1Workers
	if !o.cfg.Scraper.Parallel.Enabled || batch < 1 {
		batch = 1
	}

	var mu sync.Mutex
	for waveStart := 0; waveStart < len(combos); waveStart += batch {
		if ctx.Err() != nil {
			o.logger.Warn("run cancelled", "remaining", len(combos)-waveStart)
			break
		}

		wave := combos[waveStart:min(waveStart+batch, len(combos))]
		var wg sync.WaitGroup
		for i, combo := range wave {
			wg.Add(1)
			go func(idx int, combo models.Combination) {
				defer wg.Done()

				// Stagger starts so a wave does not stampede the site.
				o.sleep(time.Duration(o.randf() * 2 * float64(idx) * float64(time.Second)))

				inserted, coverage, err := o.runOne(ctx, slotLocks, slots, combo, scrapedAt)

				mu.Lock()
				if err != nil {
					summary.Failed++
				} else {
					summary.Succeeded++
					summary.Inserted += inserted
					summary.PerCity[combo.City.Name] += inserted
					summary.WithDetailURL += coverage.detailURLs
					summary.WithScreenshot += coverage.screenshots
				}
				mu.Unlock()

				for _, r := range o.reporters {
					r.CombinationDone(runID, combo, inserted, err)
				}
			}(i, combo)
		}
		wg.Wait()

		if waveStart+batch < len(combos) {
			o.sleep(o.cooldown())
		}
	}

	summary.Duration = time.Since(start)
	for _, r := range o.reporters {
		r.RunFinished(runID, summary)
	}
	o.logger.Info("run finished",
		"run_id", runID,
		"combinations", summary.Combinations,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"inserted", summary.Inserted,
		"detail_urls", summary.WithDetailURL,
		"screenshots", summary.WithScreenshot,
		"per_city", summary.PerCity,
		"duration", summary.Duration.Round(time.Second))
	return summary
}

type coverage struct {
	detailURLs  int
	screenshots int
}

func (o *Orchestrator) runOne(ctx context.Context, slotLocks []sync.Mutex, slots int, combo models.Combination, scrapedAt time.Time) (int, coverage, error) {
	slot := SlotFor(combo.City.Name, slots)

	if err := o.limiter.Wait(ctx); err != nil {
		return 0, coverage{}, err
	}

	slotLocks[slot].Lock()
	result, err := o.collector.Collect(ctx, o.pool.Context(slot), combo, scrapedAt)
	slotLocks[slot].Unlock()

	if err != nil {
		o.logger.Error("combination failed",
			"city", combo.City.Name,
			"pickup", combo.Pickup.Format("2006-01-02"),
			"return", combo.Return.Format("2006-01-02"),
			"error", err)
		return 0, coverage{}, err
	}

	var cov coverage
	for _, v := range result.Vehicles {
		if v.DetailURL != nil {
			cov.detailURLs++
		}
		if v.ScreenshotPath != nil {
			cov.screenshots++
		}
	}

	inserted, err := o.writer.WriteCombination(ctx, combo, scrapedAt, result.Vehicles)
	return inserted, cov, err
}

func (o *Orchestrator) cooldown() time.Duration {
	rl := o.cfg.Scraper.RateLimiting
	jitter := rl.RandomDelayMin + o.randf()*(rl.RandomDelayMax-rl.RandomDelayMin)
	return time.Duration((rl.DelayBetweenBatches + jitter) * float64(time.Second))
}
