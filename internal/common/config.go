package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/humus/internal/models"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Catalog     CatalogConfig    `toml:"catalog"`
	Predictor   PredictorConfig  `toml:"predictor"`
	Export      ExportConfig     `toml:"export"`
	Products    []ProductConfig  `toml:"products"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Collector   CollectorConfig  `toml:"collector"`
	Drive       DriveConfig      `toml:"drive"`
	Logging     LoggingConfig    `toml:"logging"`
}

// CatalogConfig configures the read-only asset store client.
type CatalogConfig struct {
	BaseURL   string `toml:"base_url"`
	Token     string `toml:"token"`      // Bearer token; prefer HUMUS_CATALOG_TOKEN
	RateLimit int    `toml:"rate_limit"` // Requests per second
	Timeout   string `toml:"timeout"`    // HTTP timeout as duration string (default: "30s")
}

// TimeoutDuration returns the configured HTTP timeout.
func (c CatalogConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// PredictorConfig configures the model/compute service client.
type PredictorConfig struct {
	BaseURL   string `toml:"base_url"`
	Token     string `toml:"token"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"` // HTTP timeout as duration string (default: "2m")
}

// TimeoutDuration returns the configured HTTP timeout.
func (c PredictorConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 2*time.Minute)
}

// ExportConfig configures the export job API client plus the default
// export options applied when a product does not override them.
type ExportConfig struct {
	BaseURL   string  `toml:"base_url"`
	Token     string  `toml:"token"`
	RateLimit int     `toml:"rate_limit"`
	Timeout   string  `toml:"timeout"`    // HTTP timeout as duration string (default: "60s")
	Scale     int     `toml:"scale"`      // Meters per pixel
	CRS       string  `toml:"crs"`        // e.g. "EPSG:4326"
	MaxPixels float64 `toml:"max_pixels"` // Export size guard
}

// TimeoutDuration returns the configured HTTP timeout for submission
// calls. The export itself runs asynchronously server-side.
func (c ExportConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 60*time.Second)
}

// parseDuration parses a duration string, falling back when the value is
// empty or invalid. Validate rejects invalid values up front, so the
// fallback only matters for configs built in code.
func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ProductConfig describes one raster product the scheduler keeps current.
type ProductConfig struct {
	Name         string  `toml:"name"`
	Granularity  string  `toml:"granularity"`   // "year" or "month"
	AssetFolder  string  `toml:"asset_folder"`  // Catalog folder holding finished outputs
	NameFormat   string  `toml:"name_format"`   // Asset name template with {year}/{month} placeholders
	NamePattern  string  `toml:"name_pattern"`  // Regex extracting year (and month) from existing names
	EpochYear    int     `toml:"epoch_year"`    // Earliest period when the catalog is empty
	Lag          int     `toml:"lag"`           // Trailing whole periods excluded from scheduling
	Versioned    bool    `toml:"versioned"`     // Write _vN suffixed assets instead of overwriting
	ForceCurrent bool    `toml:"force_current"` // Always re-export the period containing "now"
	Region       string  `toml:"region"`        // Export region reference resolved via the predictor
	Scale        int     `toml:"scale"`         // Optional per-product overrides of export defaults
	CRS          string  `toml:"crs"`
	MaxPixels    float64 `toml:"max_pixels"`
}

// GranularityType returns the product granularity as a models value.
func (p *ProductConfig) GranularityType() models.Granularity {
	return models.Granularity(p.Granularity)
}

// AssetName renders the product's asset name for one period.
func (p *ProductConfig) AssetName(period models.Period) string {
	r := strings.NewReplacer(
		"{year}", strconv.Itoa(period.Year),
		"{month}", strconv.Itoa(period.Month),
	)
	return r.Replace(p.NameFormat)
}

// AssetID returns the full unversioned asset id for one period.
func (p *ProductConfig) AssetID(period models.Period) string {
	return strings.TrimSuffix(p.AssetFolder, "/") + "/" + p.AssetName(period)
}

// SchedulerConfig controls the gap-driven submission run.
type SchedulerConfig struct {
	BatchSize  int    `toml:"batch_size"`  // Submissions per batch (quota/bookkeeping control)
	LedgerPath string `toml:"ledger_path"` // Task ledger written after each run
	Schedule   string `toml:"schedule"`    // Cron expression for daemon mode; empty = run once
}

// CollectorConfig controls the decoupled download-and-deliver run.
type CollectorConfig struct {
	Lag        int    `toml:"lag"`         // Trailing whole periods considered too fresh to collect
	FolderName string `toml:"folder_name"` // Blob store folder receiving the rasters
	LedgerPath string `toml:"ledger_path"` // Default ledger path; positional arg overrides
}

// DriveConfig holds the OAuth2 refresh-token credentials for the blob
// store. Secrets belong in the environment, not the config file.
type DriveConfig struct {
	BaseURL      string `toml:"base_url"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RefreshToken string `toml:"refresh_token"`
	TokenURL     string `toml:"token_url"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// deployment-facing settings belong in humus.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Catalog: CatalogConfig{
			RateLimit: 10,
			Timeout:   "30s",
		},
		Predictor: PredictorConfig{
			RateLimit: 5,
			Timeout:   "2m", // Geometry evaluation can be slow
		},
		Export: ExportConfig{
			RateLimit: 5,
			Timeout:   "60s",
			Scale:     1000,
			CRS:       "EPSG:4326",
			MaxPixels: 1e13,
		},
		Scheduler: SchedulerConfig{
			BatchSize:  5,
			LedgerPath: "sm_tasks.json",
		},
		Collector: CollectorConfig{
			Lag:        2,
			FolderName: "Humedad de suelo",
			LedgerPath: "sm_tasks.json",
		},
		Drive: DriveConfig{
			BaseURL:  "https://www.googleapis.com",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files
// override earlier files, environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HUMUS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Catalog
	if v := os.Getenv("HUMUS_CATALOG_BASE_URL"); v != "" {
		config.Catalog.BaseURL = v
	}
	if v := os.Getenv("HUMUS_CATALOG_TOKEN"); v != "" {
		config.Catalog.Token = v
	}
	if v := os.Getenv("HUMUS_CATALOG_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Catalog.RateLimit = n
		}
	}
	if v := os.Getenv("HUMUS_CATALOG_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			config.Catalog.Timeout = v
		}
	}

	// Predictor
	if v := os.Getenv("HUMUS_PREDICTOR_BASE_URL"); v != "" {
		config.Predictor.BaseURL = v
	}
	if v := os.Getenv("HUMUS_PREDICTOR_TOKEN"); v != "" {
		config.Predictor.Token = v
	}
	if v := os.Getenv("HUMUS_PREDICTOR_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			config.Predictor.Timeout = v
		}
	}

	// Export API
	if v := os.Getenv("HUMUS_EXPORT_BASE_URL"); v != "" {
		config.Export.BaseURL = v
	}
	if v := os.Getenv("HUMUS_EXPORT_TOKEN"); v != "" {
		config.Export.Token = v
	}
	if v := os.Getenv("HUMUS_EXPORT_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err == nil {
			config.Export.Timeout = v
		}
	}

	// Scheduler
	if v := os.Getenv("HUMUS_SCHEDULER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Scheduler.BatchSize = n
		}
	}
	if v := os.Getenv("HUMUS_SCHEDULER_LEDGER"); v != "" {
		config.Scheduler.LedgerPath = v
	}
	if v := os.Getenv("HUMUS_SCHEDULER_SCHEDULE"); v != "" {
		config.Scheduler.Schedule = v
	}

	// Collector
	if v := os.Getenv("HUMUS_COLLECTOR_LAG"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			config.Collector.Lag = n
		}
	}
	if v := os.Getenv("HUMUS_COLLECTOR_FOLDER"); v != "" {
		config.Collector.FolderName = v
	}

	// Drive credentials
	if v := os.Getenv("HUMUS_DRIVE_CLIENT_ID"); v != "" {
		config.Drive.ClientID = v
	}
	if v := os.Getenv("HUMUS_DRIVE_CLIENT_SECRET"); v != "" {
		config.Drive.ClientSecret = v
	}
	if v := os.Getenv("HUMUS_DRIVE_REFRESH_TOKEN"); v != "" {
		config.Drive.RefreshToken = v
	}

	// Logging
	if v := os.Getenv("HUMUS_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("HUMUS_LOG_OUTPUT"); v != "" {
		outputs := []string{}
		for _, o := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// Validate checks the parts of the config that would otherwise fail
// halfway through a run.
func (c *Config) Validate() error {
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("scheduler batch_size must be at least 1, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.Schedule != "" {
		if err := ValidateSchedule(c.Scheduler.Schedule); err != nil {
			return fmt.Errorf("scheduler schedule: %w", err)
		}
	}
	if c.Collector.Lag < 0 {
		return fmt.Errorf("collector lag must not be negative, got %d", c.Collector.Lag)
	}

	timeouts := map[string]string{
		"catalog":   c.Catalog.Timeout,
		"predictor": c.Predictor.Timeout,
		"export":    c.Export.Timeout,
	}
	for section, timeout := range timeouts {
		if timeout == "" {
			continue
		}
		if _, err := time.ParseDuration(timeout); err != nil {
			return fmt.Errorf("%s timeout %q: %w", section, timeout, err)
		}
	}

	seen := map[string]bool{}
	for i := range c.Products {
		p := &c.Products[i]
		if p.Name == "" {
			return fmt.Errorf("product %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("product %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
		if !p.GranularityType().Valid() {
			return fmt.Errorf("product %q: granularity must be \"year\" or \"month\", got %q", p.Name, p.Granularity)
		}
		if p.AssetFolder == "" {
			return fmt.Errorf("product %q: asset_folder is required", p.Name)
		}
		if p.NameFormat == "" {
			return fmt.Errorf("product %q: name_format is required", p.Name)
		}
		if p.NamePattern == "" {
			return fmt.Errorf("product %q: name_pattern is required", p.Name)
		}
		if p.EpochYear == 0 {
			return fmt.Errorf("product %q: epoch_year is required", p.Name)
		}
		if p.Lag < 0 {
			return fmt.Errorf("product %q: lag must not be negative", p.Name)
		}
	}

	return nil
}

// ValidateSchedule validates a cron schedule expression and enforces a
// minimum 5-minute interval.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		interval, err := strconv.Atoi(strings.TrimPrefix(minuteField, "*/"))
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
