package timer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/domain/record"
)

const defaultRecordTimeout = 10 * time.Second

// FocusConfig holds focus timer configuration.
type FocusConfig struct {
	Clock         clock.Clock       // Tick source (wall clock when nil)
	TickInterval  time.Duration     // One countdown step (default 1s)
	Recorder      Recorder          // Persistence collaborator, optional
	Identity      identity.Identity // Owner; guests are never persisted
	RecordTimeout time.Duration     // Upper bound for one persistence call
	Now           func() time.Time
}

// FocusTimer counts down a focus session.
//
// States: Idle -> Running (Start), Running <-> Paused (Pause/Resume),
// Running -> Complete (remaining reaches zero), any -> Idle (Reset).
type FocusTimer struct {
	mu sync.Mutex

	config     FocusConfig
	session    focus.SessionConfig
	configured bool

	state     State
	remaining int
	startedAt time.Time
	completed int

	ticks   tickSource
	events  broadcaster
	pending sync.WaitGroup
}

// NewFocusTimer creates an idle focus timer.
func NewFocusTimer(config FocusConfig) *FocusTimer {
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = defaultRecordTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &FocusTimer{
		config: config,
		state:  StateIdle,
		ticks:  newTickSource(config.Clock, config.TickInterval),
	}
}

// Subscribe registers an observer channel. Events are dropped for a full channel.
func (t *FocusTimer) Subscribe(buffer int) <-chan Event {
	return t.events.subscribe(buffer)
}

// Unsubscribe removes and closes an observer channel.
func (t *FocusTimer) Unsubscribe(ch <-chan Event) {
	t.events.unsubscribe(ch)
}

// OnComplete registers a hook called once per completed session.
func (t *FocusTimer) OnComplete(fn func(Completion)) {
	t.events.addCompletionHook(fn)
}

// Select sets the session configuration and returns to Idle with the full duration.
// An active countdown is discarded.
func (t *FocusTimer) Select(session focus.SessionConfig) error {
	if err := session.Validate(); err != nil {
		return invalidConfig(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ticks.cancel()
	t.session = session
	t.configured = true
	t.state = StateIdle
	t.remaining = session.DurationSec
	t.startedAt = time.Time{}
	t.emitLocked(EventStateChanged)
	return nil
}

// Start begins counting down from session.DurationSec.
// Start is a no-op while a session is running or paused; the active configuration is kept.
func (t *FocusTimer) Start(session focus.SessionConfig) error {
	if err := session.Validate(); err != nil {
		return invalidConfig(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateRunning, StatePaused:
		zlog.Debug().Msgf("focus: start ignored: state=%s mode=%s", t.state, t.session.Mode)
		return nil
	case StateComplete:
		return ErrSessionComplete
	}

	t.session = session
	t.configured = true
	t.remaining = session.DurationSec
	t.startedAt = t.config.Now()
	t.state = StateRunning
	t.ticks.start(t.onClock)

	zlog.Info().Msgf("focus: started: mode=%s duration=%ds", session.Mode, session.DurationSec)
	t.emitLocked(EventStateChanged)
	return nil
}

// Pause stops ticking and keeps the remaining time.
func (t *FocusTimer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateRunning {
		return ErrNotRunning
	}
	t.ticks.cancel()
	t.state = StatePaused
	t.emitLocked(EventStateChanged)
	return nil
}

// Resume continues a paused countdown.
func (t *FocusTimer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StatePaused {
		return ErrNotPaused
	}
	t.state = StateRunning
	t.ticks.start(t.onClock)
	t.emitLocked(EventStateChanged)
	return nil
}

// Reset stops ticking and restores the full duration of the current configuration.
func (t *FocusTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ticks.cancel()
	t.state = StateIdle
	t.remaining = 0
	if t.configured {
		t.remaining = t.session.DurationSec
	}
	t.startedAt = time.Time{}
	t.completed = 0
	t.emitLocked(EventStateChanged)
}

// Tick advances the countdown by one step. It is ignored unless the timer is running.
func (t *FocusTimer) Tick() {
	t.tick(0, false)
}

func (t *FocusTimer) onClock(gen uint64) {
	t.tick(gen, true)
}

func (t *FocusTimer) tick(gen uint64, fromClock bool) {
	t.mu.Lock()
	if fromClock && !t.ticks.current(gen) {
		t.mu.Unlock()
		return
	}
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}

	t.remaining--
	if t.remaining > 0 {
		t.emitLocked(EventTick)
		t.mu.Unlock()
		return
	}

	t.remaining = 0
	t.state = StateComplete
	t.ticks.cancel()
	t.completed++

	completion := Completion{
		Kind:        KindFocus,
		Focus:       t.session,
		TotalSec:    t.session.DurationSec,
		StartedAt:   t.startedAt,
		CompletedAt: t.config.Now(),
	}
	owner := t.config.Identity
	completed := t.completed

	// Registered under the lock so Close cannot miss it.
	recordIt := t.config.Recorder != nil && owner.IsAuthenticated()
	if recordIt {
		t.pending.Add(1)
	}

	t.emitLocked(EventTick)
	t.emitLocked(EventCompleted)
	t.mu.Unlock()

	zlog.Info().Msgf("focus: completed: mode=%s duration=%ds sessions=%d", completion.Focus.Mode, completion.TotalSec, completed)

	t.events.complete(completion)
	if !recordIt {
		if t.config.Recorder != nil {
			zlog.Debug().Msgf("focus: guest session not recorded: mode=%s", completion.Focus.Mode)
		}
		return
	}
	t.persist(owner, completion)
}

// persist hands the completed session to the recorder without waiting for it.
// The caller has already added it to t.pending.
func (t *FocusTimer) persist(owner identity.Identity, c Completion) {
	session := record.CompletedSession{
		ID:          uuid.New().String(),
		UserID:      owner.UserID,
		Mode:        c.Focus.Mode,
		DurationSec: c.TotalSec,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}

	go func() {
		defer t.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				zlog.Error().Msgf("focus: recorder panicked: %v", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), t.config.RecordTimeout)
		defer cancel()

		if err := t.config.Recorder.RecordCompletedSession(ctx, session); err != nil {
			zlog.Error().Err(err).Msgf("focus: failed to record session: user=%s mode=%s", session.UserID, session.Mode)
			return
		}
		zlog.Debug().Msgf("focus: session recorded: id=%s user=%s", session.ID, session.UserID)
	}()
}

// Snapshot returns the current state.
func (t *FocusTimer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Config returns the active session configuration and whether one is set.
func (t *FocusTimer) Config() (focus.SessionConfig, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session, t.configured
}

// Close stops ticking, waits for in-flight persistence and closes observer channels.
func (t *FocusTimer) Close() {
	t.mu.Lock()
	t.ticks.cancel()
	if t.state == StateRunning {
		t.state = StatePaused
	}
	t.mu.Unlock()

	t.pending.Wait()
	t.events.close()
}

func (t *FocusTimer) snapshotLocked() Snapshot {
	total := t.session.DurationSec
	return Snapshot{
		Kind:              KindFocus,
		State:             t.state,
		Running:           t.state == StateRunning,
		Remaining:         t.remaining,
		Total:             total,
		Progress:          fraction(total-t.remaining, total),
		Mode:              t.session.Mode,
		Label:             t.session.Label,
		SessionsCompleted: t.completed,
	}
}

// emitLocked sends an event to observers.
// Must be called with lock held.
func (t *FocusTimer) emitLocked(eventType EventType) {
	t.events.emit(Event{
		Type:     eventType,
		Snapshot: t.snapshotLocked(),
		At:       t.config.Now(),
	})
}
