package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ozrentals/drivenow-scraper/internal/config"
)

// Limiter paces page requests across the whole run. Every caller waits
// until at least the base delay plus jitter has passed since the previous
// request, whichever goroutine made it.
type Limiter struct {
	mu         sync.Mutex
	baseDelay  time.Duration
	jitterMin  time.Duration
	jitterMax  time.Duration
	lastAction time.Time
}

func New(cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		baseDelay: time.Duration(cfg.DelayBetweenRequests * float64(time.Second)),
		jitterMin: time.Duration(cfg.RandomDelayMin * float64(time.Second)),
		jitterMax: time.Duration(cfg.RandomDelayMax * float64(time.Second)),
	}
}

// Wait blocks until the next request is due or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	delay := l.baseDelay + l.jitter()
	elapsed := time.Since(l.lastAction)
	var wait time.Duration
	if elapsed < delay {
		wait = delay - elapsed
	}
	l.lastAction = time.Now().Add(wait)
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (l *Limiter) jitter() time.Duration {
	if l.jitterMax <= l.jitterMin {
		return l.jitterMin
	}
	return l.jitterMin + time.Duration(rand.Int63n(int64(l.jitterMax-l.jitterMin)))
}
