// Package config loads the tap configuration from a YAML file and the
// environment. Environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/client"
	"github.com/Sternrassler/tap-loopreturns/pkg/logging"
	"github.com/Sternrassler/tap-loopreturns/pkg/state"
	"github.com/Sternrassler/tap-loopreturns/pkg/window"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingAPIKey is returned when no api_key is configured.
	ErrMissingAPIKey = errors.New("api_key is required")

	// ErrInvalidStartDate is returned when start_date cannot be parsed.
	ErrInvalidStartDate = errors.New("invalid start_date")

	// ErrInvalidBackfillInterval is returned for a backfill_interval below one day.
	ErrInvalidBackfillInterval = errors.New("backfill_interval must be a positive number of days")
)

// Environment variables read by Load.
const (
	EnvAPIKey           = "LOOP_API_KEY"
	EnvStartDate        = "LOOP_START_DATE"
	EnvBackfillInterval = "LOOP_BACKFILL_INTERVAL"
	EnvAPIURL           = "LOOP_API_URL"
	EnvStateBackend     = "LOOP_STATE_BACKEND"
	EnvStatePath        = "LOOP_STATE_PATH"
	EnvRedisAddr        = "LOOP_REDIS_ADDR"
	EnvLogLevel         = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultStatePath       = "state.json"
	DefaultSQLiteStatePath = "state.db"
	DefaultRedisAddr       = "localhost:6379"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultLogLevel        = "info"
)

// Config is the complete tap configuration.
type Config struct {
	APIKey    string `yaml:"api_key"`
	StartDate string `yaml:"start_date"`

	// BackfillInterval is the window size in days. Unset means one window
	// reaching up to now.
	BackfillInterval *int   `yaml:"backfill_interval"`
	APIURL           string `yaml:"api_url"`

	State   StateConfig   `yaml:"state"`
	HTTP    HTTPConfig    `yaml:"http"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StateConfig selects the store that persists bookmarks.
type StateConfig struct {
	Backend   string `yaml:"backend"` // "file", "redis" or "sqlite"
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
}

// HTTPConfig tunes the API client.
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"` // attempts per request, 0 keeps the per error class defaults
	UserAgent  string        `yaml:"user_agent"`
}

// LoggingConfig controls log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Load reads the file at path, applies environment overrides and defaults.
// An empty path loads from the environment only. The result is not
// validated; call Validate before use.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(expandPath(path))
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvStartDate); v != "" {
		c.StartDate = v
	}
	if v := os.Getenv(EnvBackfillInterval); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidBackfillInterval, EnvBackfillInterval, v)
		}
		c.BackfillInterval = &days
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvStateBackend); v != "" {
		c.State.Backend = v
	}
	if v := os.Getenv(EnvStatePath); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.State.RedisAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = client.DefaultBaseURL
	}
	if c.State.Backend == "" {
		c.State.Backend = state.BackendFile
	}
	if c.State.Path == "" {
		switch c.State.Backend {
		case state.BackendFile:
			c.State.Path = DefaultStatePath
		case state.BackendSQLite:
			c.State.Path = DefaultSQLiteStatePath
		}
	}
	c.State.Path = expandPath(c.State.Path)
	if c.State.Backend == state.BackendRedis && c.State.RedisAddr == "" {
		c.State.RedisAddr = DefaultRedisAddr
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Validate checks every value needed before the first request is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.BackfillInterval != nil && *c.BackfillInterval <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidBackfillInterval, *c.BackfillInterval)
	}
	switch c.State.Backend {
	case state.BackendFile, state.BackendSQLite, state.BackendRedis:
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0 (got %d)", c.HTTP.MaxRetries)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative (got %s)", c.HTTP.Timeout)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// StartTime returns the parsed start_date, or the zero time when unset.
// Dates without a zone are taken as UTC.
func (c *Config) StartTime() (time.Time, error) {
	if strings.TrimSpace(c.StartDate) == "" {
		return time.Time{}, nil
	}
	ts, err := window.ParseTimestamp(c.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidStartDate, err)
	}
	return ts, nil
}

// Interval returns the window size. Zero means unbounded.
func (c *Config) Interval() time.Duration {
	if c.BackfillInterval == nil {
		return 0
	}
	return window.DaysToInterval(float64(*c.BackfillInterval))
}

// ClientConfig returns the API client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.APIKey)
	cfg.BaseURL = c.APIURL
	cfg.Timeout = c.HTTP.Timeout
	cfg.MaxAttempts = c.HTTP.MaxRetries
	if c.HTTP.UserAgent != "" {
		cfg.UserAgent = c.HTTP.UserAgent
	}
	return cfg
}

// StoreConfig returns the state store configuration.
func (c *Config) StoreConfig() state.Config {
	return state.Config{
		Backend:   c.State.Backend,
		Path:      c.State.Path,
		RedisAddr: c.State.RedisAddr,
		RedisDB:   c.State.RedisDB,
	}
}

// LoggingConfig returns the logger configuration. Output is left to the
// logging default (stderr).
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(strings.ToLower(c.Logging.Level)),
		Pretty: c.Logging.Pretty,
	}
}
