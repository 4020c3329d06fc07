package browser

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ozrentals/drivenow-scraper/internal/config"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// stealthScript hides the webdriver flag and fills in properties headless
// Chromium normally leaves empty.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-AU', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// Pool owns one Chromium process and a set of isolated browser contexts.
// Each context carries its own user agent and viewport so parallel searches
// do not share an obvious fingerprint. Contexts are not safe for concurrent
// use; callers serialize access per slot.
type Pool struct {
	pw       *playwright.Playwright
	browser  playwright.Browser
	contexts []playwright.BrowserContext
	cfg      config.ScraperConfig
	logger   *slog.Logger
	newCtx   func() (playwright.BrowserContext, error)
}

func NewPool(cfg config.ScraperConfig) (*Pool, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", cfg.WindowWidth, cfg.WindowHeight),
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	p := &Pool{
		pw:      pw,
		browser: browser,
		cfg:     cfg,
		logger:  slog.Default().With("component", "browser_pool"),
	}
	p.newCtx = p.newContext
	return p, nil
}

// Acquire grows the pool to n contexts. Each missing slot is attempted
// once; a slot whose context fails to open is given up and the pool stays
// one smaller. An error is reported only if not a single context could be
// created.
func (p *Pool) Acquire(n int) error {
	var firstErr error
	for missing := n - len(p.contexts); missing > 0; missing-- {
		ctx, err := p.newCtx()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			p.logger.Warn("failed to open browser context", "have", len(p.contexts), "want", n, "error", err)
			continue
		}
		p.contexts = append(p.contexts, ctx)
	}
	if len(p.contexts) == 0 && firstErr != nil {
		return fmt.Errorf("could not open any browser context: %w", firstErr)
	}
	p.logger.Info("browser contexts ready", "count", len(p.contexts))
	return nil
}

func (p *Pool) newContext() (playwright.BrowserContext, error) {
	ua := PickUserAgent(p.cfg.AntiDetection.RotateUserAgents, rand.Intn)

	width, height := p.cfg.WindowWidth, p.cfg.WindowHeight
	if p.cfg.AntiDetection.RandomizeViewport {
		width, height = JitterViewport(width, height, rand.Intn)
	}

	ctx, err := p.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:  &ua,
		Locale:     playwright.String("en-AU"),
		TimezoneId: playwright.String(config.SiteTimezone),
		Viewport:   &playwright.Size{Width: width, Height: height},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": "en-AU,en;q=0.9",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":             "1",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	if err := ctx.AddInitScript(playwright.Script{Content: playwright.String(stealthScript)}); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to install init script: %w", err)
	}
	return ctx, nil
}

// Shrink closes contexts beyond n, newest first. Close errors are logged
// and otherwise ignored.
func (p *Pool) Shrink(n int) {
	if n < 0 {
		n = 0
	}
	for len(p.contexts) > n {
		last := len(p.contexts) - 1
		if err := p.contexts[last].Close(); err != nil {
			p.logger.Warn("failed to close browser context", "error", err)
		}
		p.contexts = p.contexts[:last]
	}
}

func (p *Pool) Size() int {
	return len(p.contexts)
}

// Context returns the i-th context. Callers own serialization; two
// goroutines must never drive the same context at once.
func (p *Pool) Context(i int) playwright.BrowserContext {
	return p.contexts[i%len(p.contexts)]
}

// ReleaseAll tears everything down. Each step gets a short deadline and
// failures are swallowed: teardown runs on exit paths where a hung browser
// must not block the process.
func (p *Pool) ReleaseAll() {
	p.withTimeout(10*time.Second, "close contexts", func() error {
		for _, ctx := range p.contexts {
			ctx.Close()
		}
		return nil
	})
	p.contexts = nil

	if p.browser != nil {
		p.withTimeout(10*time.Second, "close browser", func() error {
			return p.browser.Close()
		})
		p.browser = nil
	}
	if p.pw != nil {
		p.withTimeout(5*time.Second, "stop playwright", func() error {
			return p.pw.Stop()
		})
		p.pw = nil
	}
}

func (p *Pool) withTimeout(d time.Duration, step string, fn func() error) {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			p.logger.Warn("teardown step failed", "step", step, "error", err)
		}
	case <-time.After(d):
		p.logger.Warn("teardown step timed out", "step", step)
	}
}

// PickUserAgent and JitterViewport exist so the rotation policy is testable
// without a running browser.
func PickUserAgent(rotate bool, pick func(n int) int) string {
	if !rotate {
		return userAgents[0]
	}
	return userAgents[pick(len(userAgents))]
}

func JitterViewport(width, height int, jitter func(n int) int) (int, int) {
	return width + jitter(101) - 50, height + jitter(101) - 50
}
