package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
scraper:
  results_base_url: "https://www.drivenow.com.au/search"
  headless: false
  page_load_wait: 25
  window_width: 1600
  window_height: 900
  screenshot:
    enabled: true
    directory: "shots"
    quality: 80
  rate_limiting:
    delay_between_batches: 5.0
    random_delay_min: 0.1
    random_delay_max: 1.0
  parallel:
    enabled: true
    workers: 3
    batch_size: 4
    phase1_workers: 10
cloud_storage:
  enabled: true
cities:
  - name: "Sydney Airport"
    latitude: -33.9399
    longitude: 151.1753
    location_string: "Sydney Airport, NSW"
    radius: 30
  - name: "Melbourne CBD"
    latitude: -37.8136
    longitude: 144.9631
    location_string: "Melbourne, VIC"
    radius: 30
date_config:
  return_days: [1, 3, 7]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://www.drivenow.com.au/search", cfg.Scraper.ResultsBaseURL)
	assert.False(t, cfg.Scraper.Headless)
	assert.Equal(t, 25, cfg.Scraper.PageLoadWait)
	assert.Equal(t, "shots", cfg.Scraper.Screenshot.Directory)
	assert.Equal(t, 80, cfg.Scraper.Screenshot.Quality)
	// Not set in the file, must keep its default.
	assert.Equal(t, 1920, cfg.Scraper.Screenshot.MaxWidth)
	assert.Equal(t, 3, cfg.Scraper.Parallel.Workers)
	assert.Len(t, cfg.Cities, 2)
	assert.Equal(t, "Melbourne CBD", cfg.Cities[1].Name)
	assert.InDelta(t, -37.8136, cfg.Cities[1].Latitude, 0.0001)
	assert.Equal(t, []int{1, 3, 7}, cfg.DateConfig.ReturnDays)

	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestCIForcesHeadless(t *testing.T) {
	t.Setenv("CI", "true")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.True(t, cfg.Scraper.Headless)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Scraper.ResultsBaseURL = "" }},
		{"no cities", func(c *Config) { c.Cities = nil }},
		{"unnamed city", func(c *Config) { c.Cities[0].Name = "" }},
		{"no return days", func(c *Config) { c.DateConfig.ReturnDays = nil }},
		{"bad workers", func(c *Config) { c.Scraper.Parallel.Workers = 0 }},
		{"inverted jitter", func(c *Config) {
			c.Scraper.RateLimiting.RandomDelayMin = 5
			c.Scraper.RateLimiting.RandomDelayMax = 1
		}},
		{"bad quality", func(c *Config) { c.Scraper.Screenshot.Quality = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.ValidateDatabase())

	cfg.Database = DatabaseConfig{Host: "h", User: "u", Password: "p", DBName: "d"}
	assert.NoError(t, cfg.ValidateDatabase())
}

func TestPlanDates(t *testing.T) {
	cfg := &Config{}
	cfg.DateConfig.ReturnDays = []int{1, 7}

	loc, err := time.LoadLocation(SiteTimezone)
	require.NoError(t, err)

	now := time.Date(2025, 11, 17, 23, 30, 0, 0, loc)
	pickup, returns := cfg.PlanDates(now)

	assert.Equal(t, time.Date(2025, 11, 18, 10, 0, 0, 0, loc), pickup)
	require.Len(t, returns, 2)
	assert.Equal(t, time.Date(2025, 11, 19, 10, 0, 0, 0, loc), returns[0])
	assert.Equal(t, time.Date(2025, 11, 25, 10, 0, 0, 0, loc), returns[1])
}

func TestPlanDatesConvertsCallerTimezone(t *testing.T) {
	cfg := &Config{}
	cfg.DateConfig.ReturnDays = []int{1}

	loc, err := time.LoadLocation(SiteTimezone)
	require.NoError(t, err)

	// 2025-11-17 15:00 UTC is already 2025-11-18 in Sydney, so the next
	// day there is the 19th.
	now := time.Date(2025, 11, 17, 15, 0, 0, 0, time.UTC)
	pickup, _ := cfg.PlanDates(now)
	assert.Equal(t, time.Date(2025, 11, 19, 10, 0, 0, 0, loc), pickup)
}
