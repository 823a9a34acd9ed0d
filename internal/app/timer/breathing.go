package timer

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/domain/breathing"
)

// BreathingConfig holds breathing cycle configuration.
type BreathingConfig struct {
	Clock        clock.Clock   // Tick source (wall clock when nil)
	TickInterval time.Duration // One step (default 1s)
	Now          func() time.Time
}

// BreathingCycle loops inhale -> hold -> exhale -> pause until the overall duration elapses.
// The overall countdown is checked on every tick, so completion can land mid-phase.
type BreathingCycle struct {
	mu sync.Mutex

	config     BreathingConfig
	pattern    breathing.Pattern
	totalSec   int
	configured bool

	state     State
	phase     breathing.Phase
	elapsed   int // seconds spent in the current phase
	cycles    int
	remaining int
	startedAt time.Time

	ticks  tickSource
	events broadcaster
}

// NewBreathingCycle creates an idle breathing cycle.
func NewBreathingCycle(config BreathingConfig) *BreathingCycle {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &BreathingCycle{
		config: config,
		state:  StateIdle,
		phase:  breathing.PhaseInhale,
		ticks:  newTickSource(config.Clock, config.TickInterval),
	}
}

// Subscribe registers an observer channel. Events are dropped for a full channel.
func (b *BreathingCycle) Subscribe(buffer int) <-chan Event {
	return b.events.subscribe(buffer)
}

// Unsubscribe removes and closes an observer channel.
func (b *BreathingCycle) Unsubscribe(ch <-chan Event) {
	b.events.unsubscribe(ch)
}

// OnComplete registers a hook called once per completed exercise.
func (b *BreathingCycle) OnComplete(fn func(Completion)) {
	b.events.addCompletionHook(fn)
}

// Start begins at inhale with the full overall duration.
// Start is a no-op while an exercise is running or paused.
func (b *BreathingCycle) Start(pattern breathing.Pattern, totalDurationSec int) error {
	if totalDurationSec <= 0 {
		return invalidConfig(errors.Newf("duration must be positive: %d", totalDurationSec))
	}
	if err := pattern.Validate(); err != nil {
		return invalidConfig(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateRunning, StatePaused:
		zlog.Debug().Msgf("breathing: start ignored: state=%s", b.state)
		return nil
	case StateComplete:
		return ErrSessionComplete
	}

	b.pattern = pattern
	b.totalSec = totalDurationSec
	b.configured = true
	b.restoreLocked()
	b.startedAt = b.config.Now()
	b.state = StateRunning
	b.ticks.start(b.onClock)

	zlog.Info().Msgf("breathing: started: duration=%ds cycle=%ds", totalDurationSec, pattern.CycleSec())
	b.emitLocked(EventStateChanged)
	return nil
}

// Pause stops ticking and keeps phase and remaining time.
func (b *BreathingCycle) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateRunning {
		return ErrNotRunning
	}
	b.ticks.cancel()
	b.state = StatePaused
	b.emitLocked(EventStateChanged)
	return nil
}

// Resume continues a paused exercise from the same phase position.
func (b *BreathingCycle) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StatePaused {
		return ErrNotPaused
	}
	b.state = StateRunning
	b.ticks.start(b.onClock)
	b.emitLocked(EventStateChanged)
	return nil
}

// Reset stops ticking and returns to inhale, zero cycles and the configured total.
func (b *BreathingCycle) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ticks.cancel()
	b.state = StateIdle
	b.restoreLocked()
	b.startedAt = time.Time{}
	b.emitLocked(EventStateChanged)
}

// Tick advances the exercise by one second. It is ignored unless the cycle is running.
func (b *BreathingCycle) Tick() {
	b.tick(0, false)
}

func (b *BreathingCycle) onClock(gen uint64) {
	b.tick(gen, true)
}

func (b *BreathingCycle) tick(gen uint64, fromClock bool) {
	b.mu.Lock()
	if fromClock && !b.ticks.current(gen) {
		b.mu.Unlock()
		return
	}
	if b.state != StateRunning {
		b.mu.Unlock()
		return
	}

	b.remaining--
	b.elapsed++
	if b.elapsed >= b.pattern.Duration(b.phase) {
		b.phase = b.phase.Next()
		b.elapsed = 0
		if b.phase == breathing.PhaseInhale {
			b.cycles++
		}
	}

	if b.remaining > 0 {
		b.emitLocked(EventTick)
		b.mu.Unlock()
		return
	}

	b.remaining = 0
	b.state = StateComplete
	b.ticks.cancel()

	completion := Completion{
		Kind:        KindBreathing,
		Pattern:     b.pattern,
		TotalSec:    b.totalSec,
		Cycles:      b.cycles,
		StartedAt:   b.startedAt,
		CompletedAt: b.config.Now(),
	}

	phase := b.phase

	b.emitLocked(EventTick)
	b.emitLocked(EventCompleted)
	b.mu.Unlock()

	zlog.Info().Msgf("breathing: completed: duration=%ds cycles=%d phase=%s", completion.TotalSec, completion.Cycles, phase)
	b.events.complete(completion)
}

// Snapshot returns the current state.
func (b *BreathingCycle) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Close stops ticking and closes observer channels.
func (b *BreathingCycle) Close() {
	b.mu.Lock()
	b.ticks.cancel()
	if b.state == StateRunning {
		b.state = StatePaused
	}
	b.mu.Unlock()

	b.events.close()
}

func (b *BreathingCycle) restoreLocked() {
	b.phase = breathing.PhaseInhale
	b.elapsed = 0
	b.cycles = 0
	b.remaining = b.totalSec
}

func (b *BreathingCycle) snapshotLocked() Snapshot {
	phaseDuration := b.pattern.Duration(b.phase)
	phaseRemaining := phaseDuration - b.elapsed
	if phaseRemaining < 0 {
		phaseRemaining = 0
	}
	return Snapshot{
		Kind:           KindBreathing,
		State:          b.state,
		Running:        b.state == StateRunning,
		Remaining:      b.remaining,
		Total:          b.totalSec,
		Progress:       fraction(b.totalSec-b.remaining, b.totalSec),
		Phase:          b.phase,
		PhaseElapsed:   b.elapsed,
		PhaseRemaining: phaseRemaining,
		PhaseProgress:  fraction(b.elapsed, phaseDuration),
		Cycles:         b.cycles,
		Message:        b.phase.Message(),
	}
}

// emitLocked sends an event to observers.
// Must be called with lock held.
func (b *BreathingCycle) emitLocked(eventType EventType) {
	b.events.emit(Event{
		Type:     eventType,
		Snapshot: b.snapshotLocked(),
		At:       b.config.Now(),
	})
}
