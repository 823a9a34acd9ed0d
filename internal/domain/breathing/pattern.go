// Package breathing provides the breathing phases and patterns.
package breathing

import "github.com/cockroachdb/errors"

// Phase is one stage of a breathing cycle.
type Phase int

const (
	PhaseInhale Phase = iota // Breathe in
	PhaseHold                // Hold after inhaling
	PhaseExhale              // Breathe out
	PhasePause               // Rest before the next inhale
)

// Phases lists the phases in cycle order.
var Phases = []Phase{PhaseInhale, PhaseHold, PhaseExhale, PhasePause}

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInhale:
		return "inhale"
	case PhaseHold:
		return "hold"
	case PhaseExhale:
		return "exhale"
	case PhasePause:
		return "pause"
	default:
		return "unknown"
	}
}

// Next returns the phase that follows p.
func (p Phase) Next() Phase {
	return Phases[(int(p)+1)%len(Phases)]
}

// Message returns the guidance shown during the phase.
func (p Phase) Message() string {
	switch p {
	case PhaseInhale:
		return "Breathe in slowly..."
	case PhaseHold:
		return "Hold your breath..."
	case PhaseExhale:
		return "Breathe out gently..."
	case PhasePause:
		return "Relax..."
	default:
		return ""
	}
}

// Pattern maps each phase to its length in seconds.
type Pattern struct {
	InhaleSec int `yaml:"inhale_sec"`
	HoldSec   int `yaml:"hold_sec"`
	ExhaleSec int `yaml:"exhale_sec"`
	PauseSec  int `yaml:"pause_sec"`
}

// DefaultPattern returns the 4-4-6-1 pattern.
func DefaultPattern() Pattern {
	return Pattern{InhaleSec: 4, HoldSec: 4, ExhaleSec: 6, PauseSec: 1}
}

// Duration returns the length of a phase in seconds.
func (p Pattern) Duration(phase Phase) int {
	switch phase {
	case PhaseInhale:
		return p.InhaleSec
	case PhaseHold:
		return p.HoldSec
	case PhaseExhale:
		return p.ExhaleSec
	case PhasePause:
		return p.PauseSec
	default:
		return 0
	}
}

// CycleSec returns the length of one full cycle.
func (p Pattern) CycleSec() int {
	return p.InhaleSec + p.HoldSec + p.ExhaleSec + p.PauseSec
}

// Validate checks that every phase has a positive length.
func (p Pattern) Validate() error {
	for _, phase := range Phases {
		if p.Duration(phase) <= 0 {
			return errors.Newf("%s duration must be positive: %d", phase, p.Duration(phase))
		}
	}
	return nil
}
