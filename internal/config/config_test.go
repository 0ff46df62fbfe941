package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/tap-loopreturns/pkg/client"
	"github.com/Sternrassler/tap-loopreturns/pkg/state"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func intPtr(v int) *int {
	return &v
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
api_key: secret
start_date: "2024-01-01T00:00:00"
backfill_interval: 7
state:
  backend: sqlite
  path: /tmp/tap/state.db
http:
  timeout: 10s
  max_retries: 4
logging:
  level: debug
  pretty: true
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.APIKey != "secret" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BackfillInterval == nil || *cfg.BackfillInterval != 7 {
		t.Errorf("BackfillInterval = %v, want 7", cfg.BackfillInterval)
	}
	if cfg.Interval() != 7*24*time.Hour {
		t.Errorf("Interval() = %v", cfg.Interval())
	}
	if cfg.APIURL != client.DefaultBaseURL {
		t.Errorf("APIURL = %q, want default", cfg.APIURL)
	}
	if cfg.State.Backend != state.BackendSQLite || cfg.State.Path != "/tmp/tap/state.db" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.HTTP.Timeout != 10*time.Second || cfg.HTTP.MaxRetries != 4 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}

	start, err := cfg.StartTime()
	if err != nil {
		t.Fatalf("StartTime() error = %v", err)
	}
	if !start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("StartTime() = %v", start)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BackfillInterval != nil || cfg.Interval() != 0 {
		t.Errorf("BackfillInterval = %v, want unset", cfg.BackfillInterval)
	}
	if cfg.State.Backend != state.BackendFile || cfg.State.Path != DefaultStatePath {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.HTTP.Timeout != DefaultHTTPTimeout {
		t.Errorf("Timeout = %v", cfg.HTTP.Timeout)
	}
	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}

	start, err := cfg.StartTime()
	if err != nil || !start.IsZero() {
		t.Errorf("StartTime() = %v, %v; want zero", start, err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api_key: file-key
api_url: https://file.example.com
backfill_interval: 7
state:
  backend: file
`)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvAPIURL, "https://env.example.com")
	t.Setenv(EnvBackfillInterval, "2")
	t.Setenv(EnvStateBackend, "redis")
	t.Setenv(EnvRedisAddr, "redis:6379")
	t.Setenv(EnvStartDate, "2024-02-01")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIKey != "env-key" || cfg.APIURL != "https://env.example.com" {
		t.Errorf("APIKey/APIURL = %q/%q", cfg.APIKey, cfg.APIURL)
	}
	if *cfg.BackfillInterval != 2 {
		t.Errorf("BackfillInterval = %d, want 2", *cfg.BackfillInterval)
	}
	if cfg.State.Backend != state.BackendRedis || cfg.State.RedisAddr != "redis:6379" {
		t.Errorf("State = %+v", cfg.State)
	}
	if cfg.StartDate != "2024-02-01" || cfg.Logging.Level != "warn" {
		t.Errorf("StartDate/Level = %q/%q", cfg.StartDate, cfg.Logging.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "api_key: [unterminated")); err == nil {
			t.Error("expected error for invalid yaml")
		}
	})

	t.Run("non-numeric interval env", func(t *testing.T) {
		t.Setenv(EnvBackfillInterval, "weekly")
		_, err := Load("")
		if !errors.Is(err, ErrInvalidBackfillInterval) {
			t.Errorf("error = %v, want ErrInvalidBackfillInterval", err)
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			APIKey:  "secret",
			APIURL:  client.DefaultBaseURL,
			State:   StateConfig{Backend: state.BackendFile, Path: "state.json"},
			HTTP:    HTTPConfig{Timeout: time.Second},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		anyErr  bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: ErrMissingAPIKey},
		{name: "blank api key", mutate: func(c *Config) { c.APIKey = "  " }, wantErr: ErrMissingAPIKey},
		{name: "malformed start date", mutate: func(c *Config) { c.StartDate = "01/02/2024" }, wantErr: ErrInvalidStartDate},
		{name: "rfc3339 start date", mutate: func(c *Config) { c.StartDate = "2024-01-01T00:00:00Z" }},
		{name: "zero interval", mutate: func(c *Config) { c.BackfillInterval = intPtr(0) }, wantErr: ErrInvalidBackfillInterval},
		{name: "negative interval", mutate: func(c *Config) { c.BackfillInterval = intPtr(-1) }, wantErr: ErrInvalidBackfillInterval},
		{name: "one day interval", mutate: func(c *Config) { c.BackfillInterval = intPtr(1) }},
		{name: "unknown backend", mutate: func(c *Config) { c.State.Backend = "etcd" }, anyErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.HTTP.MaxRetries = -1 }, anyErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Error("Validate() expected error")
				}
			default:
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
			}
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	cfg := &Config{
		APIKey: "secret",
		APIURL: "https://api.example.com/v1",
		State:  StateConfig{Backend: state.BackendRedis, RedisAddr: "redis:6379", RedisDB: 3},
		HTTP:   HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 2, UserAgent: "custom/1.0"},
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Pretty: true,
		},
	}

	cc := cfg.ClientConfig()
	if cc.APIKey != "secret" || cc.BaseURL != "https://api.example.com/v1" {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	if cc.Timeout != 5*time.Second || cc.MaxAttempts != 2 || cc.UserAgent != "custom/1.0" {
		t.Errorf("ClientConfig() = %+v", cc)
	}

	sc := cfg.StoreConfig()
	if sc.Backend != state.BackendRedis || sc.RedisAddr != "redis:6379" || sc.RedisDB != 3 {
		t.Errorf("StoreConfig() = %+v", sc)
	}

	lc := cfg.LoggingConfig()
	if lc.Level != "debug" || !lc.Pretty {
		t.Errorf("LoggingConfig() = %+v", lc)
	}
}
