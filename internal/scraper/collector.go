package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ozrentals/drivenow-scraper/internal/config"
	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// NavResult says how a navigation attempt ended. StayedOnPage means the
// browser accepted the request but never left the current document, which
// the site does when it silently rejects a search; it is retried like a
// failure but logged differently.
type NavResult int

const (
	NavFailed NavResult = iota
	NavNavigated
	NavStayedOnPage
)

func (r NavResult) String() string {
	switch r {
	case NavNavigated:
		return "navigated"
	case NavStayedOnPage:
		return "stayed_on_page"
	default:
		return "failed"
	}
}

const (
	maxScrollRounds    = 15
	maxNoChangeRounds  = 3
	maxLoadMoreClicks  = 20
	scrollStepPixels   = 800
	navRetries         = 3
	screenshotTimeout  = 30 * time.Second
	resultsEmptySignal = "no vehicles"
)

// Archiver turns a raw screenshot file into a stored reference.
type Archiver interface {
	Archive(ctx context.Context, localPath, objectDir string) (string, error)
}

// CollectResult is everything one combination's page visit produced.
type CollectResult struct {
	Vehicles      []*models.Vehicle
	ScreenshotRef *string
}

// Collector drives one results page end to end: navigate, wait for cards,
// scroll everything into the DOM, screenshot, and parse.
type Collector struct {
	cfg      config.ScraperConfig
	parser   *CardParser
	archiver Archiver
	logger   *slog.Logger
}

func NewCollector(cfg config.ScraperConfig, archiver Archiver) *Collector {
	return &Collector{
		cfg:      cfg,
		parser:   NewCardParser(),
		archiver: archiver,
		logger:   slog.Default().With("component", "collector"),
	}
}

// Collect scrapes one combination inside the given browser context. The
// caller guarantees exclusive use of the context for the duration.
func (c *Collector) Collect(ctx context.Context, browserCtx playwright.BrowserContext, combo models.Combination, scrapedAt time.Time) (*CollectResult, error) {
	url, err := BuildResultsURL(c.cfg.ResultsBaseURL, combo)
	if err != nil {
		return nil, err
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	nav, err := c.navigate(page, url)
	if nav != NavNavigated {
		return nil, fmt.Errorf("navigation %s for %s %s->%s: %w",
			nav, combo.City.Name,
			combo.Pickup.Format("2006-01-02"), combo.Return.Format("2006-01-02"), err)
	}

	if err := c.waitForResults(page); err != nil {
		c.logger.Warn("results never appeared", "city", combo.City.Name, "error", err)
		return &CollectResult{}, nil
	}

	c.loadAllResults(page)

	result := &CollectResult{}
	if ref := c.captureScreenshot(ctx, page, combo, scrapedAt); ref != "" {
		result.ScreenshotRef = &ref
	}

	vehicles, err := c.extractVehicles(page, combo, scrapedAt, result.ScreenshotRef)
	if err != nil {
		return nil, err
	}
	result.Vehicles = vehicles

	c.logger.Info("collected combination",
		"city", combo.City.Name,
		"pickup", combo.Pickup.Format("2006-01-02"),
		"return", combo.Return.Format("2006-01-02"),
		"vehicles", len(vehicles))
	return result, nil
}

// ScreenshotOnly revisits a combination purely to capture its page shot,
// used by the backfill pass. Returns the stored reference.
func (c *Collector) ScreenshotOnly(ctx context.Context, browserCtx playwright.BrowserContext, combo models.Combination, scrapedAt time.Time) (string, error) {
	url, err := BuildResultsURL(c.cfg.ResultsBaseURL, combo)
	if err != nil {
		return "", err
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if nav, err := c.navigate(page, url); nav != NavNavigated {
		return "", fmt.Errorf("navigation %s: %w", nav, err)
	}
	if err := c.waitForResults(page); err != nil {
		return "", err
	}
	c.loadAllResults(page)

	ref := c.captureScreenshot(ctx, page, combo, scrapedAt)
	if ref == "" {
		return "", fmt.Errorf("screenshot capture failed")
	}
	return ref, nil
}

func (c *Collector) navigate(page playwright.Page, url string) (NavResult, error) {
	var lastErr error
	for attempt := 1; attempt <= navRetries; attempt++ {
		resp, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(c.cfg.PageLoadWait) * 1000),
		})
		if err != nil {
			lastErr = err
			c.logger.Warn("navigation attempt failed", "attempt", attempt, "error", err)
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}
		if resp == nil || page.URL() == "about:blank" {
			lastErr = fmt.Errorf("no document navigation occurred")
			c.logger.Warn("navigation stayed on page", "attempt", attempt)
			if attempt == navRetries {
				return NavStayedOnPage, lastErr
			}
			time.Sleep(time.Duration(attempt) * time.Second)
			continue
		}

		// Network idle is best effort; slow trackers must not fail the run.
		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(float64(c.cfg.PageLoadWait) * 1000),
		}); err != nil {
			c.logger.Debug("network idle wait timed out", "error", err)
		}
		return NavNavigated, nil
	}
	return NavFailed, lastErr
}

// waitForResults applies readiness checks in order: the card selector, then
// an explicit empty-results message, then a last-chance DOM settle.
func (c *Collector) waitForResults(page playwright.Page) error {
	_, err := page.WaitForSelector(vehicleCardSelector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(c.cfg.PageLoadWait) * 1000),
	})
	if err == nil {
		return nil
	}

	body, textErr := page.TextContent("body")
	if textErr == nil && strings.Contains(strings.ToLower(body), resultsEmptySignal) {
		return fmt.Errorf("site reported no vehicles")
	}

	time.Sleep(2 * time.Second)
	count, evalErr := page.Evaluate(fmt.Sprintf(
		`() => document.querySelectorAll('%s').length`, vehicleCardSelector))
	if evalErr == nil {
		if n, ok := count.(int); ok && n > 0 {
			return nil
		}
		if n, ok := count.(float64); ok && n > 0 {
			return nil
		}
	}
	return fmt.Errorf("no result cards after %ds: %w", c.cfg.PageLoadWait, err)
}

// loadAllResults walks the lazy list to the bottom repeatedly, clicking
// load-more controls along the way. Each round re-queries the card count;
// only growth in that count resets the stop counter, because the page
// height can sit still while cards are still materializing inside it.
func (c *Collector) loadAllResults(page playwright.Page) {
	prevCount := c.cardCount(page)
	noChange := 0
	clicks := 0

	for round := 0; round < maxScrollRounds && noChange < maxNoChangeRounds; round++ {
		c.scrollToBottom(page)

		if clicks < maxLoadMoreClicks && c.clickLoadMore(page) {
			clicks++
			time.Sleep(1500 * time.Millisecond)
		}

		prevCount, noChange = progressAfterRound(prevCount, c.cardCount(page), noChange)
	}

	if _, err := page.Evaluate(`() => window.scrollTo(0, 0)`); err != nil {
		c.logger.Debug("scroll to top failed", "error", err)
	}
	time.Sleep(500 * time.Millisecond)
}

// progressAfterRound folds one round's card count into the stall tracker.
// Only growth resets it; the list never shrinks in practice.
func progressAfterRound(prev, current, stall int) (count, nextStall int) {
	if current > prev {
		return current, 0
	}
	return prev, stall + 1
}

// scrollToBottom steps down the page, re-measuring the height so content
// appended below the fold extends the walk.
func (c *Collector) scrollToBottom(page playwright.Page) {
	height := c.pageHeight(page)
	for offset := float64(scrollStepPixels); offset < height; offset += scrollStepPixels {
		if _, err := page.Evaluate(fmt.Sprintf(`() => window.scrollTo(0, %d)`, int(offset))); err != nil {
			c.logger.Debug("scroll step failed", "error", err)
			return
		}
		time.Sleep(500 * time.Millisecond)

		if h := c.pageHeight(page); h > height {
			height = h
		}
	}

	if _, err := page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		c.logger.Debug("scroll to bottom failed", "error", err)
	}
	time.Sleep(700 * time.Millisecond)
}

func (c *Collector) pageHeight(page playwright.Page) float64 {
	h, err := page.Evaluate(`() => document.body.scrollHeight`)
	if err != nil {
		return 0
	}
	switch v := h.(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func (c *Collector) cardCount(page playwright.Page) int {
	n, err := page.Evaluate(fmt.Sprintf(
		`() => document.querySelectorAll('%s').length`, vehicleCardSelector))
	if err != nil {
		return 0
	}
	switch v := n.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func (c *Collector) clickLoadMore(page playwright.Page) bool {
	clicked, err := page.Evaluate(`() => {
		const candidates = document.querySelectorAll('button, a, .load-more, .show-more');
		for (const el of candidates) {
			const text = (el.textContent || '').toLowerCase();
			if (text.includes('load more') || text.includes('show more') || text.includes('more results')) {
				el.scrollIntoView();
				el.click();
				return true;
			}
		}
		return false;
	}`)
	if err != nil {
		return false
	}
	b, ok := clicked.(bool)
	return ok && b
}

// captureScreenshot takes one full-page shot per combination and archives
// it. Failures return an empty ref; the vehicles are stored without one.
func (c *Collector) captureScreenshot(ctx context.Context, page playwright.Page, combo models.Combination, scrapedAt time.Time) string {
	if !c.cfg.Screenshot.Enabled {
		return ""
	}

	dir := c.cfg.Screenshot.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Warn("failed to create screenshot directory", "dir", dir, "error", err)
		return ""
	}

	localPath := filepath.Join(dir, ScreenshotName(combo, scrapedAt))
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(localPath),
		FullPage: playwright.Bool(true),
		Timeout:  playwright.Float(float64(screenshotTimeout.Milliseconds())),
	}); err != nil {
		c.logger.Warn("screenshot failed", "city", combo.City.Name, "error", err)
		return ""
	}

	if c.archiver == nil {
		return localPath
	}
	ref, err := c.archiver.Archive(ctx, localPath, scrapedAt.Format("2006-01-02"))
	if err != nil {
		c.logger.Warn("screenshot archive failed", "path", localPath, "error", err)
		return localPath
	}
	return ref
}

// extractVehicles pulls every card's outer HTML plus a parallel list of
// page-level booking links in two JS round trips, then parses offline.
func (c *Collector) extractVehicles(page playwright.Page, combo models.Combination, scrapedAt time.Time, screenshotRef *string) ([]*models.Vehicle, error) {
	raw, err := page.Evaluate(fmt.Sprintf(
		`() => Array.from(document.querySelectorAll('%s')).map(el => el.outerHTML)`,
		vehicleCardSelector))
	if err != nil {
		return nil, fmt.Errorf("failed to extract cards: %w", err)
	}
	cards := toStringSlice(raw)

	rawLinks, err := page.Evaluate(fmt.Sprintf(`() =>
		Array.from(document.querySelectorAll('%s')).map(el => {
			const a = el.querySelector('a[href]');
			return a ? a.href : '';
		})`, vehicleCardSelector))
	links := []string{}
	if err == nil {
		links = toStringSlice(rawLinks)
	}

	return c.buildVehicles(cards, links, page.URL(), combo, scrapedAt, screenshotRef), nil
}

// buildVehicles turns raw card HTML into records. A card the parser can get
// nothing out of still yields a record carrying the run metadata; dropping
// it would undercount the listing.
func (c *Collector) buildVehicles(cards, links []string, pageURL string, combo models.Combination, scrapedAt time.Time, screenshotRef *string) []*models.Vehicle {
	vehicles := make([]*models.Vehicle, 0, len(cards))
	for i, cardHTML := range cards {
		v := models.NewVehicle(combo, scrapedAt)
		v.ScreenshotPath = screenshotRef

		if err := c.parser.ParseCard(cardHTML, v); err != nil {
			c.logger.Warn("card yielded no fields, keeping bare record", "city", combo.City.Name, "index", i, "error", err)
		}
		fallback := ""
		if i < len(links) {
			fallback = links[i]
		}
		v.DetailURL = c.parser.ExtractDetailURL(cardHTML, pageURL, fallback)
		vehicles = append(vehicles, v)
	}
	return vehicles
}

func toStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
