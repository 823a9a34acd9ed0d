// Package focus provides the focus mode catalog and session configuration.
package focus

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// Mode identifies a focus mode.
type Mode string

const (
	ModePomodoro Mode = "pomodoro"
	ModeDeep     Mode = "deep"
	ModeMindful  Mode = "mindful"
	ModeCustom   Mode = "custom"
)

// ErrUnknownMode is returned when a mode is not in the catalog.
var ErrUnknownMode = errors.New("unknown focus mode")

// SessionConfig describes one focus session. It is immutable once a session starts.
type SessionConfig struct {
	Mode        Mode
	DurationSec int
	Label       string
	Description string
	Color       string // presentation only
}

// Duration returns the session length.
func (c SessionConfig) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

// Validate checks that the configuration can be run.
func (c SessionConfig) Validate() error {
	if c.Mode == "" {
		return errors.New("mode is required")
	}
	if c.DurationSec <= 0 {
		return errors.Newf("duration must be positive: %d", c.DurationSec)
	}
	return nil
}

// DefaultModes returns the built-in focus modes.
func DefaultModes() []SessionConfig {
	return []SessionConfig{
		{
			Mode:        ModePomodoro,
			DurationSec: 1500,
			Label:       "Pomodoro",
			Description: "25 min focus + 5 min break",
			Color:       "#EF4444",
		},
		{
			Mode:        ModeDeep,
			DurationSec: 5400,
			Label:       "Deep Work",
			Description: "90 min of uninterrupted focus",
			Color:       "#8B5CF6",
		},
		{
			Mode:        ModeMindful,
			DurationSec: 600,
			Label:       "Mindful Focus",
			Description: "10 min mindful productivity",
			Color:       "#10B981",
		},
	}
}

// Catalog holds the selectable focus modes in display order.
type Catalog struct {
	modes []SessionConfig
}

// NewCatalog creates a catalog. An empty list falls back to DefaultModes.
func NewCatalog(modes []SessionConfig) *Catalog {
	if len(modes) == 0 {
		modes = DefaultModes()
	}
	copied := make([]SessionConfig, len(modes))
	copy(copied, modes)
	return &Catalog{modes: copied}
}

// All returns a copy of the modes.
func (c *Catalog) All() []SessionConfig {
	result := make([]SessionConfig, len(c.modes))
	copy(result, c.modes)
	return result
}

// Lookup returns the configuration for a mode.
func (c *Catalog) Lookup(mode Mode) (SessionConfig, error) {
	for _, m := range c.modes {
		if m.Mode == mode {
			return m, nil
		}
	}
	return SessionConfig{}, errors.Wrapf(ErrUnknownMode, "mode %q", mode)
}

// Resolve returns the configuration for a mode, applying an explicit duration.
// The custom mode requires durationSec; catalog modes use it as an override when positive.
func (c *Catalog) Resolve(mode Mode, durationSec int) (SessionConfig, error) {
	if mode == ModeCustom {
		cfg := SessionConfig{
			Mode:        ModeCustom,
			DurationSec: durationSec,
			Label:       "Custom",
			Description: fmt.Sprintf("%d min custom focus", durationSec/60),
			Color:       "#3B82F6",
		}
		if err := cfg.Validate(); err != nil {
			return SessionConfig{}, err
		}
		return cfg, nil
	}

	cfg, err := c.Lookup(mode)
	if err != nil {
		return SessionConfig{}, err
	}
	if durationSec > 0 {
		cfg.DurationSec = durationSec
	}
	return cfg, nil
}

// FormatClock renders seconds as MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
