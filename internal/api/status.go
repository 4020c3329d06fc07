package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ozrentals/drivenow-scraper/internal/models"
	"github.com/ozrentals/drivenow-scraper/internal/scraper"
)

// Progress tracks a running scrape for the status endpoint. It implements
// the orchestrator's reporter contract.
type Progress struct {
	mu        sync.RWMutex
	runID     string
	startedAt time.Time
	total     int
	done      int
	failed    int
	inserted  int
	finished  bool
	lastCity  string
}

func NewProgress() *Progress {
	return &Progress{}
}

func (p *Progress) RunStarted(runID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
	p.startedAt = time.Now()
	p.total = total
	p.done = 0
	p.failed = 0
	p.inserted = 0
	p.finished = false
}

func (p *Progress) CombinationDone(_ string, combo models.Combination, vehicles int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.lastCity = combo.City.Name
	if err != nil {
		p.failed++
	} else {
		p.inserted += vehicles
	}
}

func (p *Progress) RunFinished(_ string, _ scraper.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = true
}

// Snapshot is the JSON shape served at /status.
type Snapshot struct {
	RunID       string  `json:"run_id"`
	State       string  `json:"state"`
	StartedAt   string  `json:"started_at,omitempty"`
	Total       int     `json:"total"`
	Done        int     `json:"done"`
	Failed      int     `json:"failed"`
	Inserted    int     `json:"inserted"`
	PercentDone float64 `json:"percent_done"`
	LastCity    string  `json:"last_city,omitempty"`
}

func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Snapshot{
		RunID:    p.runID,
		State:    "idle",
		Total:    p.total,
		Done:     p.done,
		Failed:   p.failed,
		Inserted: p.inserted,
		LastCity: p.lastCity,
	}
	if p.runID != "" {
		s.State = "running"
		s.StartedAt = p.startedAt.Format(time.RFC3339)
	}
	if p.finished {
		s.State = "finished"
	}
	if p.total > 0 {
		s.PercentDone = float64(p.done) / float64(p.total) * 100
	}
	return s
}

// Router serves the in-run status endpoints.
func Router(progress *Progress) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(progress.Snapshot())
	})

	return r
}

// Serve runs the status server until ctx is cancelled. Errors are logged,
// never fatal; the endpoint is a convenience next to the real work.
func Serve(ctx context.Context, addr string, progress *Progress) {
	logger := slog.Default().With("component", "api")
	server := &http.Server{
		Addr:         addr,
		Handler:      Router(progress),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("status server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("status server stopped", "error", err)
	}
}
