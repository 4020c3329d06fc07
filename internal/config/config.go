package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// Config holds everything the pipeline needs for one run. Scraper behaviour,
// cities and date planning come from the YAML file; credentials come from
// the environment so the YAML can be committed.
type Config struct {
	Scraper      ScraperConfig      `yaml:"scraper"`
	CloudStorage CloudStorageConfig `yaml:"cloud_storage"`
	Cities       []models.City      `yaml:"cities"`
	DateConfig   DateConfig         `yaml:"date_config"`
	Status       StatusConfig       `yaml:"status"`

	Database DatabaseConfig `yaml:"-"`
	Storage  StorageConfig  `yaml:"-"`
	Redis    RedisConfig    `yaml:"-"`
	Logging  LoggingConfig  `yaml:"-"`
}

type ScraperConfig struct {
	ResultsBaseURL string           `yaml:"results_base_url"`
	Headless       bool             `yaml:"headless"`
	PageLoadWait   int              `yaml:"page_load_wait"`
	WindowWidth    int              `yaml:"window_width"`
	WindowHeight   int              `yaml:"window_height"`
	Screenshot     ScreenshotConfig `yaml:"screenshot"`
	RateLimiting   RateLimitConfig  `yaml:"rate_limiting"`
	AntiDetection  AntiDetectConfig `yaml:"anti_detection"`
	Parallel       ParallelConfig   `yaml:"parallel"`
}

type ScreenshotConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Quality   int    `yaml:"quality"`
	MaxWidth  int    `yaml:"max_width"`
}

type RateLimitConfig struct {
	DelayBetweenRequests float64 `yaml:"delay_between_requests"`
	DelayBetweenVehicles float64 `yaml:"delay_between_vehicles"`
	DelayBetweenCities   float64 `yaml:"delay_between_cities"`
	DelayBetweenBatches  float64 `yaml:"delay_between_batches"`
	RandomDelayMin       float64 `yaml:"random_delay_min"`
	RandomDelayMax       float64 `yaml:"random_delay_max"`
}

type AntiDetectConfig struct {
	RotateUserAgents  bool `yaml:"rotate_user_agents"`
	RandomizeViewport bool `yaml:"randomize_viewport"`
}

// ParallelConfig sizes the two collection phases. Phase1Workers drives the
// context pool and wave width while vehicle data is collected; Workers and
// BatchSize drive the screenshot backfill phase.
type ParallelConfig struct {
	Enabled       bool `yaml:"enabled"`
	Workers       int  `yaml:"workers"`
	BatchSize     int  `yaml:"batch_size"`
	Phase1Workers int  `yaml:"phase1_workers"`
}

type CloudStorageConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DateConfig struct {
	ReturnDays []int `yaml:"return_days"`
}

type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type RedisConfig struct {
	Addr   string
	Stream string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// SiteTimezone is the timezone the rental site operates in. Pickup and
// return timestamps, and the database session, all use it.
const SiteTimezone = "Australia/Sydney"

// Load reads the YAML config at path and overlays environment credentials.
// A missing file is a configuration error; the caller decides exit behaviour.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	applyDefaults(cfg)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// CI runners have no display server; the configured value is ignored.
	if IsCI() {
		cfg.Scraper.Headless = true
	}

	cfg.Database = DatabaseConfig{
		Host:     getEnvOrDefault("SUPABASE_DB_HOST", ""),
		Port:     getIntOrDefault("SUPABASE_DB_PORT", 5432),
		User:     getEnvOrDefault("SUPABASE_DB_USER", ""),
		Password: getEnvOrDefault("SUPABASE_DB_PASSWORD", ""),
		DBName:   getEnvOrDefault("SUPABASE_DB_NAME", ""),
		SSLMode:  getEnvOrDefault("SUPABASE_DB_SSL_MODE", "require"),
		MaxConns: int32(getIntOrDefault("SUPABASE_DB_MAX_CONNS", 4)),
	}

	cfg.Storage = StorageConfig{
		AccountID:       getEnvOrDefault("CLOUDFLARE_ACCOUNT_ID", ""),
		AccessKeyID:     getEnvOrDefault("CLOUDFLARE_R2_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnvOrDefault("CLOUDFLARE_R2_SECRET_ACCESS_KEY", ""),
		BucketName:      getEnvOrDefault("CLOUDFLARE_R2_BUCKET_NAME", ""),
		PublicURL:       getEnvOrDefault("CLOUDFLARE_R2_PUBLIC_URL", ""),
	}

	cfg.Redis = RedisConfig{
		Addr:   getEnvOrDefault("REDIS_ADDR", ""),
		Stream: getEnvOrDefault("REDIS_PROGRESS_STREAM", "stream:scrape_progress"),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Scraper.Headless = true
	cfg.Scraper.PageLoadWait = 20
	cfg.Scraper.WindowWidth = 1920
	cfg.Scraper.WindowHeight = 1080
	cfg.Scraper.Screenshot = ScreenshotConfig{
		Enabled:   true,
		Directory: "screenshots",
		Quality:   75,
		MaxWidth:  1920,
	}
	cfg.Scraper.RateLimiting = RateLimitConfig{
		DelayBetweenRequests: 1.0,
		DelayBetweenBatches:  10.0,
		RandomDelayMin:       0.5,
		RandomDelayMax:       2.0,
	}
	cfg.Scraper.AntiDetection = AntiDetectConfig{
		RotateUserAgents:  true,
		RandomizeViewport: true,
	}
	cfg.Scraper.Parallel = ParallelConfig{
		Enabled:       true,
		Workers:       5,
		BatchSize:     5,
		Phase1Workers: 25,
	}
	cfg.DateConfig.ReturnDays = []int{1, 7}
	cfg.Status.Addr = "127.0.0.1:8080"
}

func (c *Config) Validate() error {
	if c.Scraper.ResultsBaseURL == "" {
		return fmt.Errorf("scraper.results_base_url is required")
	}
	if len(c.Cities) == 0 {
		return fmt.Errorf("at least one city must be configured")
	}
	for _, city := range c.Cities {
		if city.Name == "" {
			return fmt.Errorf("every city needs a name")
		}
	}
	if len(c.DateConfig.ReturnDays) == 0 {
		return fmt.Errorf("date_config.return_days must not be empty")
	}
	if c.Scraper.Parallel.Workers < 1 || c.Scraper.Parallel.Phase1Workers < 1 {
		return fmt.Errorf("parallel worker counts must be at least 1")
	}
	if c.Scraper.RateLimiting.RandomDelayMin > c.Scraper.RateLimiting.RandomDelayMax {
		return fmt.Errorf("rate_limiting.random_delay_min cannot exceed random_delay_max")
	}
	if c.Scraper.Screenshot.Quality < 1 || c.Scraper.Screenshot.Quality > 100 {
		return fmt.Errorf("screenshot.quality must be between 1 and 100")
	}
	return nil
}

// ValidateDatabase checks credential presence separately so utilities that
// never touch the database can skip it.
func (c *Config) ValidateDatabase() error {
	d := c.Database
	if d.Host == "" || d.User == "" || d.Password == "" || d.DBName == "" {
		return fmt.Errorf("missing database credentials: set SUPABASE_DB_HOST, SUPABASE_DB_NAME, SUPABASE_DB_USER and SUPABASE_DB_PASSWORD")
	}
	return nil
}

// IsCI reports whether we are running under a CI runner.
func IsCI() bool {
	return strings.EqualFold(os.Getenv("CI"), "true") ||
		strings.EqualFold(os.Getenv("GITHUB_ACTIONS"), "true")
}

// PlanDates derives the run's pickup timestamp and return timestamps from
// now. Pickup is always the next day at 10:00 site-local time; returns are
// pickup plus each configured day offset.
func (c *Config) PlanDates(now time.Time) (time.Time, []time.Time) {
	loc, err := time.LoadLocation(SiteTimezone)
	if err != nil {
		loc = time.Local
	}
	local := now.In(loc)
	next := local.AddDate(0, 0, 1)
	pickup := time.Date(next.Year(), next.Month(), next.Day(), 10, 0, 0, 0, loc)

	returns := make([]time.Time, 0, len(c.DateConfig.ReturnDays))
	for _, days := range c.DateConfig.ReturnDays {
		returns = append(returns, pickup.AddDate(0, 0, days))
	}
	return pickup, returns
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
