// Package config loads minet settings from a YAML file and the environment.
//
// Values are layered: built-in defaults, then the config file, then
// MINET_* environment variables. Command line flags are applied on top by
// the caller. The result is checked with Validate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Benny93/minet-go/internal/expansion"
	"github.com/Benny93/minet-go/internal/kegg"
	"github.com/Benny93/minet-go/internal/metrics"
	"github.com/Benny93/minet-go/internal/repository"
)

// FileName is the config file looked up in the working directory when no
// path is given.
const FileName = "minet.yaml"

// Environment variables that override file values.
const (
	EnvMineURL      = "MINET_MINE_URL"
	EnvMineDatabase = "MINET_MINE_DATABASE"
	EnvDataDir      = "MINET_DATA_DIR"
	EnvLogLevel     = "MINET_LOG_LEVEL"
)

// Config is the complete minet configuration.
type Config struct {
	MINE   MINEConfig   `yaml:"mine"`
	KEGG   KEGGConfig   `yaml:"kegg"`
	Limits LimitsConfig `yaml:"limits"`

	// DataDir holds the network store and the record caches.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Cache enables the on-disk MINE record cache.
	Cache bool `yaml:"cache"`

	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string `yaml:"metrics_file"`

	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// MINEConfig configures the MINE JSON-RPC client.
type MINEConfig struct {
	URL      string        `yaml:"url" validate:"required,url"`
	Database string        `yaml:"database" validate:"required"`
	Workers  int           `yaml:"workers" validate:"min=1,max=1024"`
	Timeout  time.Duration `yaml:"timeout" validate:"gte=0"`

	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
}

// RetryConfig is the stepped retry schedule of MINE calls.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" validate:"min=1"`
	ShortDelay    time.Duration `yaml:"short_delay" validate:"gte=0"`
	LongDelay     time.Duration `yaml:"long_delay" validate:"gte=0"`
	ShortAttempts int           `yaml:"short_attempts" validate:"gte=0"`
	NotifyEvery   int           `yaml:"notify_every" validate:"min=1"`
}

// RateLimitConfig paces MINE requests. RPS 0 disables pacing.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker around MINE calls.
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests" validate:"min=1"`
	Interval     time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	FailureRatio float64       `yaml:"failure_ratio" validate:"gt=0,lte=1"`
	MinRequests  uint32        `yaml:"min_requests"`
}

// KEGGConfig configures the KEGG REST client.
type KEGGConfig struct {
	URL      string        `yaml:"url" validate:"required,url"`
	Workers  int           `yaml:"workers" validate:"min=1,max=1024"`
	Attempts int           `yaml:"attempts" validate:"min=1"`
	Delay    time.Duration `yaml:"delay" validate:"gte=0"`
}

// LimitsConfig bounds network expansion.
type LimitsConfig struct {
	Steps     int `yaml:"steps" validate:"gte=0"`
	Compounds int `yaml:"compounds" validate:"min=1"`
	Carbon    int `yaml:"carbon" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	retry := repository.DefaultRetryPolicy()
	breaker := repository.DefaultBreakerSettings()
	limits := expansion.DefaultLimits()
	return &Config{
		MINE: MINEConfig{
			URL:      repository.DefaultURL,
			Database: repository.DefaultDatabase,
			Workers:  repository.DefaultWorkers,
			Timeout:  repository.DefaultOptions().Timeout,
			Retry: RetryConfig{
				MaxAttempts:   retry.MaxAttempts,
				ShortDelay:    retry.ShortDelay,
				LongDelay:     retry.LongDelay,
				ShortAttempts: retry.ShortAttempts,
				NotifyEvery:   retry.NotifyEvery,
			},
			Breaker: BreakerConfig{
				MaxRequests:  breaker.MaxRequests,
				Interval:     breaker.Interval,
				Timeout:      breaker.Timeout,
				FailureRatio: breaker.FailureRatio,
				MinRequests:  breaker.MinRequests,
			},
		},
		KEGG: KEGGConfig{
			URL:      kegg.DefaultURL,
			Workers:  kegg.DefaultWorkers,
			Attempts: kegg.DefaultAttempts,
			Delay:    kegg.DefaultDelay,
		},
		Limits: LimitsConfig{
			Steps:     limits.Steps,
			Compounds: limits.Compounds,
			Carbon:    limits.Carbon,
		},
		DataDir:  ".minet",
		Cache:    true,
		LogLevel: "info",
	}
}

// Load reads the config file at path over the defaults and applies the
// environment. An empty path means FileName in the working directory; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMineURL); ok && v != "" {
		c.MINE.URL = v
	}
	if v, ok := lookup(EnvMineDatabase); ok && v != "" {
		c.MINE.Database = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// Write stores c as YAML at path.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// NetworkDir is the directory of the network store.
func (c *Config) NetworkDir() string {
	return filepath.Join(c.DataDir, "network")
}

// CacheDir is the directory of the MINE record cache.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "mine-cache")
}

// KEGGDir is the default directory of downloaded KEGG records.
func (c *Config) KEGGDir() string {
	return filepath.Join(c.DataDir, "kegg")
}

// RepositoryOptions maps the MINE section to client options.
func (c *Config) RepositoryOptions(log *zap.Logger, m *metrics.Metrics) repository.Options {
	return repository.Options{
		URL:      c.MINE.URL,
		Database: c.MINE.Database,
		Timeout:  c.MINE.Timeout,
		Retry: repository.RetryPolicy{
			MaxAttempts:   c.MINE.Retry.MaxAttempts,
			ShortDelay:    c.MINE.Retry.ShortDelay,
			LongDelay:     c.MINE.Retry.LongDelay,
			ShortAttempts: c.MINE.Retry.ShortAttempts,
			NotifyEvery:   c.MINE.Retry.NotifyEvery,
		},
		Breaker: repository.BreakerSettings{
			MaxRequests:  c.MINE.Breaker.MaxRequests,
			Interval:     c.MINE.Breaker.Interval,
			Timeout:      c.MINE.Breaker.Timeout,
			FailureRatio: c.MINE.Breaker.FailureRatio,
			MinRequests:  c.MINE.Breaker.MinRequests,
		},
		RateLimit: c.MINE.RateLimit.RPS,
		Burst:     c.MINE.RateLimit.Burst,
		Logger:    log,
		Metrics:   m,
	}
}

// KEGGOptions maps the KEGG section to client options.
func (c *Config) KEGGOptions(log *zap.Logger, m *metrics.Metrics) []kegg.ClientOption {
	return []kegg.ClientOption{
		kegg.WithWorkers(c.KEGG.Workers),
		kegg.WithRetry(c.KEGG.Attempts, c.KEGG.Delay),
		kegg.WithLogger(log),
		kegg.WithMetrics(m),
	}
}

// ExpansionLimits maps the limits section.
func (c *Config) ExpansionLimits() expansion.Limits {
	return expansion.Limits{
		Steps:     c.Limits.Steps,
		Compounds: c.Limits.Compounds,
		Carbon:    c.Limits.Carbon,
	}
}
