package timer

import (
	"time"

	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
)

// EventType represents an engine event type.
type EventType int

const (
	EventTick         EventType = iota // One second elapsed
	EventStateChanged                  // Start, pause, resume, reset or select
	EventCompleted                     // Countdown reached zero
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTick:
		return "tick"
	case EventStateChanged:
		return "state_changed"
	case EventCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only view of an engine.
// Focus engines fill Mode, Label and SessionsCompleted; breathing engines fill the phase fields.
type Snapshot struct {
	Kind      Kind
	State     State
	Running   bool
	Remaining int // seconds
	Total     int // seconds
	Progress  float64

	Mode              focus.Mode
	Label             string
	SessionsCompleted int

	Phase          breathing.Phase
	PhaseElapsed   int
	PhaseRemaining int
	PhaseProgress  float64
	Cycles         int
	Message        string
}

// Event represents an engine update for observers.
type Event struct {
	Type     EventType
	Snapshot Snapshot
	At       time.Time
}

// Completion is the one-shot notification raised when a countdown finishes.
type Completion struct {
	Kind        Kind
	Focus       focus.SessionConfig // focus only
	Pattern     breathing.Pattern   // breathing only
	TotalSec    int
	Cycles      int // breathing only
	StartedAt   time.Time
	CompletedAt time.Time
}
