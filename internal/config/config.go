// Package config loads and validates the calsync TOML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that reads and writes as a Go duration string
// ("15m", "120h").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Google    GoogleConfig    `toml:"google"`
	Vault     VaultConfig     `toml:"vault"`
	Sync      SyncConfig      `toml:"sync"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address (e.g. ":8080").
	Addr string `toml:"addr"`

	// PublicBaseURL is the externally reachable base URL the provider
	// delivers webhooks to.
	PublicBaseURL string `toml:"public_base_url"`

	// AdminToken, when set, is required as a bearer token on /v1 routes.
	AdminToken string `toml:"admin_token"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// DSN is memory://, sqlite:///path/to/db or postgres://...
	DSN string `toml:"dsn"`
}

// GoogleConfig holds OAuth client settings and API rate limits.
type GoogleConfig struct {
	ClientID          string  `toml:"client_id"`
	ClientSecret      string  `toml:"client_secret"`
	RedirectURL       string  `toml:"redirect_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// VaultConfig configures the memory vault client.
// An empty BaseURL selects the in-memory sink.
type VaultConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Timeout Duration `toml:"timeout"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	InitialWindow  Duration `toml:"initial_window"`
	FullSyncPast   Duration `toml:"full_sync_past"`
	FullSyncFuture Duration `toml:"full_sync_future"`
	PageSize       int64    `toml:"page_size"`
	MaxAttempts    int      `toml:"max_attempts"`
	BackoffBase    Duration `toml:"backoff_base"`

	// Calendars limits full syncs to a comma-separated list of calendar ids.
	// Empty means every calendar the user can access.
	Calendars string `toml:"calendars"`
}

// SchedulerConfig configures background tasks.
type SchedulerConfig struct {
	Enabled                bool     `toml:"enabled"`
	ChannelRenewalInterval Duration `toml:"channel_renewal_interval"`
	FullSyncSweepInterval  Duration `toml:"full_sync_sweep_interval"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Verbose    bool   `toml:"verbose"`
	JSON       bool   `toml:"json"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
// An empty OTLPEndpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string            `toml:"otlp_endpoint"`
	Insecure     bool              `toml:"insecure"`
	ServiceName  string            `toml:"service_name"`
	Headers      map[string]string `toml:"headers"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 1 << 20,
		},
		Storage: StorageConfig{DSN: "memory://"},
		Google: GoogleConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Vault: VaultConfig{Timeout: Duration{30 * time.Second}},
		Sync: SyncConfig{
			InitialWindow:  Duration{30 * 24 * time.Hour},
			FullSyncPast:   Duration{30 * 24 * time.Hour},
			FullSyncFuture: Duration{365 * 24 * time.Hour},
			PageSize:       250,
			MaxAttempts:    3,
			BackoffBase:    Duration{time.Second},
		},
		Scheduler: SchedulerConfig{
			Enabled:                true,
			ChannelRenewalInterval: Duration{120 * time.Hour},
			FullSyncSweepInterval:  Duration{15 * time.Minute},
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{ServiceName: "calsync"},
	}
}

// DefaultPath returns the default config file path: ~/.calsync/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".calsync", "config.toml"), nil
}

// Load reads the configuration file at path, applies CALSYNC_* environment
// overrides and validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("parsing config file %q: %s", path, strict.String())
			}
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file yet - run on defaults and environment
	default:
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path with restricted permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Addr, "CALSYNC_SERVER_ADDR")
	setString(&c.Server.PublicBaseURL, "CALSYNC_PUBLIC_BASE_URL")
	setString(&c.Server.AdminToken, "CALSYNC_ADMIN_TOKEN")
	setString(&c.Storage.DSN, "CALSYNC_STORAGE_DSN")
	setString(&c.Google.ClientID, "CALSYNC_GOOGLE_CLIENT_ID")
	setString(&c.Google.ClientSecret, "CALSYNC_GOOGLE_CLIENT_SECRET")
	setString(&c.Google.RedirectURL, "CALSYNC_GOOGLE_REDIRECT_URL")
	setString(&c.Vault.BaseURL, "CALSYNC_VAULT_BASE_URL")
	setString(&c.Vault.APIKey, "CALSYNC_VAULT_API_KEY")
	setString(&c.Sync.Calendars, "CALSYNC_CALENDARS")
	setString(&c.Log.File, "CALSYNC_LOG_FILE")
	setString(&c.Telemetry.OTLPEndpoint, "CALSYNC_OTLP_ENDPOINT")

	if raw := strings.TrimSpace(os.Getenv("CALSYNC_VERBOSE")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("CALSYNC_VERBOSE: %w", err)
		}
		c.Log.Verbose = v
	}
	if raw := strings.TrimSpace(os.Getenv("CALSYNC_SCHEDULER_ENABLED")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("CALSYNC_SCHEDULER_ENABLED: %w", err)
		}
		c.Scheduler.Enabled = v
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

// validate checks that all fields are well-formed.
func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.PublicBaseURL != "" {
		u, err := url.ParseRequestURI(c.Server.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("server.public_base_url %q must be a valid http or https URL", c.Server.PublicBaseURL)
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}

	if c.Vault.BaseURL != "" {
		u, err := url.ParseRequestURI(c.Vault.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("vault.base_url %q must be a valid http or https URL", c.Vault.BaseURL)
		}
	}

	if c.Google.RequestsPerSecond <= 0 {
		return fmt.Errorf("google.requests_per_second must be positive")
	}
	if c.Google.Burst <= 0 {
		return fmt.Errorf("google.burst must be positive")
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 2500 {
		return fmt.Errorf("sync.page_size %d must be between 1 and 2500", c.Sync.PageSize)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.InitialWindow.Duration <= 0 {
		return fmt.Errorf("sync.initial_window must be positive")
	}

	if c.Scheduler.ChannelRenewalInterval.Duration < time.Minute {
		return fmt.Errorf("scheduler.channel_renewal_interval %v is too short (minimum 1m)",
			c.Scheduler.ChannelRenewalInterval.Duration)
	}
	if c.Scheduler.FullSyncSweepInterval.Duration < time.Minute {
		return fmt.Errorf("scheduler.full_sync_sweep_interval %v is too short (minimum 1m)",
			c.Scheduler.FullSyncSweepInterval.Duration)
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "calsync"
	}
	return nil
}
