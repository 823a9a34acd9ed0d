// Package timer provides the focus countdown and breathing cycle engines.
package timer

// State represents the engine lifecycle state.
type State int

const (
	StateIdle     State = iota // Configured but not started, or reset
	StateRunning               // Ticking
	StatePaused                // Stopped with remaining time kept
	StateComplete              // Countdown reached zero; only Reset leaves this state
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Kind identifies which engine produced a snapshot.
type Kind string

const (
	KindFocus     Kind = "focus"
	KindBreathing Kind = "breathing"
)
