// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
)

// Store drivers
const (
	DriverNone     = "none"
	DriverSupabase = "supabase"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Store     StoreConfig     `yaml:"store"`
	Timer     TimerConfig     `yaml:"timer"`
	Focus     FocusConfig     `yaml:"focus"`
	Breathing BreathingConfig `yaml:"breathing"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr               string `yaml:"addr" default:":8080"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec" default:"10" validate:"gte=1,lte=300"`
}

// SupabaseConfig represents the hosted backend configuration.
// An empty URL disables authentication; every caller is a guest.
type SupabaseConfig struct {
	URL        string `yaml:"url" validate:"omitempty,url"`
	AnonKey    string `yaml:"anon_key" validate:"required_with=URL"`
	ServiceKey string `yaml:"service_key"`
	TimeoutSec int    `yaml:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// StoreConfig represents the persistence collaborator configuration.
type StoreConfig struct {
	Driver   string         `yaml:"driver" default:"none" validate:"oneof=none supabase sqlite postgres"`
	Settings map[string]any `yaml:"settings"`
}

// TimerConfig represents engine timing configuration.
type TimerConfig struct {
	TickIntervalMs   int `yaml:"tick_interval_ms" default:"1000" validate:"gte=10,lte=60000"`
	RecordTimeoutSec int `yaml:"record_timeout_sec" default:"10" validate:"gte=1,lte=300"`
}

// FocusConfig represents the focus mode catalog.
// An empty list uses the built-in modes.
type FocusConfig struct {
	Modes []ModeConfig `yaml:"modes" validate:"dive"`
}

// ModeConfig represents a single focus mode.
type ModeConfig struct {
	Mode        string `yaml:"mode" validate:"required"`
	DurationSec int    `yaml:"duration_sec" validate:"gt=0"`
	Label       string `yaml:"label" validate:"required"`
	Description string `yaml:"description"`
	Color       string `yaml:"color" default:"#3B82F6"`
}

// BreathingConfig represents the breathing pattern and default exercise length.
type BreathingConfig struct {
	InhaleSec   int `yaml:"inhale_sec" default:"4" validate:"gt=0"`
	HoldSec     int `yaml:"hold_sec" default:"4" validate:"gt=0"`
	ExhaleSec   int `yaml:"exhale_sec" default:"6" validate:"gt=0"`
	PauseSec    int `yaml:"pause_sec" default:"1" validate:"gt=0"`
	DurationSec int `yaml:"duration_sec" default:"120" validate:"gt=0"`
}

// SessionConfig represents server-side session registry configuration.
type SessionConfig struct {
	IdleTimeoutSec int `yaml:"idle_timeout_sec" default:"3600" validate:"gte=60"`
	MaxSessions    int `yaml:"max_sessions" default:"1000" validate:"gte=1"`
	EventBuffer    int `yaml:"event_buffer" default:"32" validate:"gte=1,lte=1024"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return parse(data)
}

// LoadOrDefault loads path when it exists and falls back to built-in defaults otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return parse(nil)
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return parse(nil)
	}
	return Load(path)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		c.Supabase.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); v != "" {
		c.Supabase.ServiceKey = v
	}
	if v := os.Getenv("FLOWSHIFT_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("FLOWSHIFT_STORE_DSN"); v != "" {
		if c.Store.Settings == nil {
			c.Store.Settings = map[string]any{}
		}
		c.Store.Settings["dsn"] = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateModes(); err != nil {
		return err
	}

	return c.validateStore()
}

func (c *Config) validateModes() error {
	seen := make(map[string]bool, len(c.Focus.Modes))
	for _, m := range c.Focus.Modes {
		if m.Mode == string(focus.ModeCustom) {
			return errors.Newf("mode %q is reserved", m.Mode)
		}
		if seen[m.Mode] {
			return errors.Newf("duplicate focus mode: %s", m.Mode)
		}
		seen[m.Mode] = true
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSupabase:
		if c.Supabase.URL == "" {
			return errors.New("store driver supabase requires supabase.url")
		}
	case DriverSQLite, DriverPostgres:
		if dsn, _ := c.Store.Settings["dsn"].(string); dsn == "" {
			return errors.Newf("store driver %s requires settings.dsn", c.Store.Driver)
		}
	}
	return nil
}

// FocusModes returns the configured focus modes, or the built-in ones when none are set.
func (c *Config) FocusModes() []focus.SessionConfig {
	if len(c.Focus.Modes) == 0 {
		return focus.DefaultModes()
	}
	modes := make([]focus.SessionConfig, 0, len(c.Focus.Modes))
	for _, m := range c.Focus.Modes {
		modes = append(modes, focus.SessionConfig{
			Mode:        focus.Mode(m.Mode),
			DurationSec: m.DurationSec,
			Label:       m.Label,
			Description: m.Description,
			Color:       m.Color,
		})
	}
	return modes
}

// BreathingPattern returns the configured breathing pattern.
func (c *Config) BreathingPattern() breathing.Pattern {
	return breathing.Pattern{
		InhaleSec: c.Breathing.InhaleSec,
		HoldSec:   c.Breathing.HoldSec,
		ExhaleSec: c.Breathing.ExhaleSec,
		PauseSec:  c.Breathing.PauseSec,
	}
}

// TickInterval returns one engine step.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timer.TickIntervalMs) * time.Millisecond
}

// RecordTimeout returns the upper bound for one persistence call.
func (c *Config) RecordTimeout() time.Duration {
	return time.Duration(c.Timer.RecordTimeoutSec) * time.Second
}

// IdleTimeout returns how long an untouched session is kept.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown limit.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}

// SupabaseTimeout returns the HTTP timeout for backend calls.
func (c *Config) SupabaseTimeout() time.Duration {
	return time.Duration(c.Supabase.TimeoutSec) * time.Second
}

// AuthEnabled reports whether bearer tokens can be verified.
func (c *Config) AuthEnabled() bool {
	return c.Supabase.URL != ""
}
