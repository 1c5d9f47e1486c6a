package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"ledgermatch/internal/fortnox"
	"ledgermatch/internal/logger"
	"ledgermatch/internal/reconciliation"
)

type Config struct {
	// Fortnox API Configuration
	FortnoxBaseURL     string
	FortnoxAccessToken string
	FortnoxTimeout     time.Duration
	FortnoxRateLimit   float64
	FortnoxRateBurst   int

	// Matching Configuration
	MinReferenceScore  float64
	MinHeuristicScore  float64
	BookedWindowDays   int
	UnbookedWindowDays int
	RuntimeBudget      time.Duration
	MaxDetailFetches   int
	MatchWorkers       int
	MaxPagesPerYear    int
	PageLimit          int

	// Batch Configuration
	BatchWorkers int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the configuration from the environment. Malformed numbers are
// reported rather than silently replaced by defaults.
func Load() (*Config, error) {
	p := &parser{}

	config := &Config{
		FortnoxBaseURL:     getEnv("FORTNOX_BASE_URL", fortnox.DefaultBaseURL),
		FortnoxAccessToken: getEnv("FORTNOX_ACCESS_TOKEN", ""),
		FortnoxTimeout:     p.duration("FORTNOX_TIMEOUT", 30*time.Second),
		FortnoxRateLimit:   p.float("FORTNOX_RATE_LIMIT", 4),
		FortnoxRateBurst:   p.int("FORTNOX_RATE_BURST", 4),
		MinReferenceScore:  p.float("MATCH_MIN_REFERENCE_SCORE", 0.68),
		MinHeuristicScore:  p.float("MATCH_MIN_HEURISTIC_SCORE", 0.6),
		BookedWindowDays:   p.int("MATCH_BOOKED_WINDOW_DAYS", 180),
		UnbookedWindowDays: p.int("MATCH_UNBOOKED_WINDOW_DAYS", 45),
		RuntimeBudget:      p.duration("MATCH_RUNTIME_BUDGET", 5000*time.Millisecond),
		MaxDetailFetches:   p.int("MATCH_MAX_DETAIL_FETCHES", 80),
		MatchWorkers:       p.int("MATCH_WORKERS", 6),
		MaxPagesPerYear:    p.int("MATCH_MAX_PAGES_PER_YEAR", 3),
		PageLimit:          p.int("MATCH_PAGE_LIMIT", 100),
		BatchWorkers:       p.int("BATCH_WORKERS", 4),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:      getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:          getEnv("LOG_OUTPUT", "stderr"),
	}
	if p.err != nil {
		return nil, fmt.Errorf("config parsing failed: %w", p.err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate checks ranges of the numeric settings. The access token is not
// required here; commands that call the API check it themselves.
func (c *Config) Validate() error {
	if c.FortnoxBaseURL == "" {
		return fmt.Errorf("FORTNOX_BASE_URL must not be empty")
	}
	if c.FortnoxTimeout <= 0 {
		return fmt.Errorf("FORTNOX_TIMEOUT must be positive")
	}
	if c.FortnoxRateLimit <= 0 {
		return fmt.Errorf("FORTNOX_RATE_LIMIT must be positive")
	}
	if c.FortnoxRateBurst <= 0 {
		return fmt.Errorf("FORTNOX_RATE_BURST must be positive")
	}
	if c.MinReferenceScore <= 0 || c.MinReferenceScore > 1 {
		return fmt.Errorf("MATCH_MIN_REFERENCE_SCORE must be greater than 0 and at most 1")
	}
	if c.MinHeuristicScore <= 0 || c.MinHeuristicScore > 1 {
		return fmt.Errorf("MATCH_MIN_HEURISTIC_SCORE must be greater than 0 and at most 1")
	}

	positive := []struct {
		name  string
		value int
	}{
		{"MATCH_BOOKED_WINDOW_DAYS", c.BookedWindowDays},
		{"MATCH_UNBOOKED_WINDOW_DAYS", c.UnbookedWindowDays},
		{"MATCH_MAX_DETAIL_FETCHES", c.MaxDetailFetches},
		{"MATCH_WORKERS", c.MatchWorkers},
		{"MATCH_MAX_PAGES_PER_YEAR", c.MaxPagesPerYear},
		{"MATCH_PAGE_LIMIT", c.PageLimit},
		{"BATCH_WORKERS", c.BatchWorkers},
	}
	for _, setting := range positive {
		if setting.value <= 0 {
			return fmt.Errorf("%s must be positive", setting.name)
		}
	}
	if c.RuntimeBudget <= 0 {
		return fmt.Errorf("MATCH_RUNTIME_BUDGET must be positive")
	}
	return nil
}

// MatchOptions returns the matching engine tuning
func (c *Config) MatchOptions() reconciliation.Options {
	return reconciliation.Options{
		MinReferenceScore:  c.MinReferenceScore,
		MinHeuristicScore:  c.MinHeuristicScore,
		BookedWindowDays:   c.BookedWindowDays,
		UnbookedWindowDays: c.UnbookedWindowDays,
		RuntimeBudget:      c.RuntimeBudget,
		MaxDetailFetches:   c.MaxDetailFetches,
		Workers:            c.MatchWorkers,
		MaxPagesPerYear:    c.MaxPagesPerYear,
		PageLimit:          c.PageLimit,
	}
}

// FortnoxConfig returns the ledger client configuration
func (c *Config) FortnoxConfig() fortnox.Config {
	cfg := fortnox.DefaultConfig()
	cfg.BaseURL = c.FortnoxBaseURL
	cfg.AccessToken = c.FortnoxAccessToken
	cfg.Timeout = c.FortnoxTimeout
	cfg.RateLimit = c.FortnoxRateLimit
	cfg.RateBurst = c.FortnoxRateBurst
	return cfg
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed environment values and keeps the first error.
type parser struct {
	err error
}

func (p *parser) int(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (p *parser) float(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return f
}

// duration accepts Go duration strings ("5s") and plain milliseconds ("5000").
func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, value, err)
		return defaultValue
	}
	return d
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}
