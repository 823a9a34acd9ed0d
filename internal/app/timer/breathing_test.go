package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/domain/breathing"
)

func TestBreathingCycle_PhaseProgression(t *testing.T) {
	m := clock.NewManual()
	cycle := NewBreathingCycle(BreathingConfig{Clock: m})
	defer cycle.Close()

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 120))

	tests := []struct {
		advance   int
		phase     breathing.Phase
		elapsed   int
		cycles    int
		remaining int
	}{
		{advance: 0, phase: breathing.PhaseInhale, elapsed: 0, cycles: 0, remaining: 120},
		{advance: 3, phase: breathing.PhaseInhale, elapsed: 3, cycles: 0, remaining: 117},
		{advance: 1, phase: breathing.PhaseHold, elapsed: 0, cycles: 0, remaining: 116},
		{advance: 4, phase: breathing.PhaseExhale, elapsed: 0, cycles: 0, remaining: 112},
		{advance: 6, phase: breathing.PhasePause, elapsed: 0, cycles: 0, remaining: 106},
		{advance: 1, phase: breathing.PhaseInhale, elapsed: 0, cycles: 1, remaining: 105},
	}

	for _, tt := range tests {
		m.Advance(tt.advance)
		snap := cycle.Snapshot()
		assert.Equal(t, tt.phase, snap.Phase)
		assert.Equal(t, tt.elapsed, snap.PhaseElapsed)
		assert.Equal(t, tt.cycles, snap.Cycles)
		assert.Equal(t, tt.remaining, snap.Remaining)
		assert.Equal(t, tt.phase.Message(), snap.Message)
	}
}

func TestBreathingCycle_Completion(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		wantPhase  breathing.Phase
		wantElapse int
		wantCycles int
	}{
		{name: "one full cycle ends on inhale", total: 15, wantPhase: breathing.PhaseInhale, wantElapse: 0, wantCycles: 1},
		{name: "short exercise ends mid-hold", total: 5, wantPhase: breathing.PhaseHold, wantElapse: 1, wantCycles: 0},
		{name: "two minutes", total: 120, wantPhase: breathing.PhaseInhale, wantElapse: 0, wantCycles: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := clock.NewManual()
			cycle := NewBreathingCycle(BreathingConfig{Clock: m})
			defer cycle.Close()

			var completions []Completion
			cycle.OnComplete(func(c Completion) {
				completions = append(completions, c)
			})

			require.NoError(t, cycle.Start(breathing.DefaultPattern(), tt.total))
			m.Advance(tt.total)

			snap := cycle.Snapshot()
			assert.Equal(t, StateComplete, snap.State)
			assert.Equal(t, 0, snap.Remaining)
			assert.Equal(t, tt.wantPhase, snap.Phase)
			assert.Equal(t, tt.wantElapse, snap.PhaseElapsed)
			assert.Equal(t, tt.wantCycles, snap.Cycles)

			m.Advance(10)
			cycle.Tick()
			require.Len(t, completions, 1)
			assert.Equal(t, KindBreathing, completions[0].Kind)
			assert.Equal(t, tt.wantCycles, completions[0].Cycles)
			assert.Equal(t, tt.total, completions[0].TotalSec)
			assert.Equal(t, 0, m.Active())
		})
	}
}

func TestBreathingCycle_PauseResumeKeepsPhasePosition(t *testing.T) {
	m := clock.NewManual()
	cycle := NewBreathingCycle(BreathingConfig{Clock: m})
	defer cycle.Close()

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 60))
	m.Advance(6)
	require.NoError(t, cycle.Pause())

	paused := cycle.Snapshot()
	assert.Equal(t, breathing.PhaseHold, paused.Phase)
	assert.Equal(t, 2, paused.PhaseElapsed)
	assert.Equal(t, 2, paused.PhaseRemaining)
	assert.Equal(t, 0.5, paused.PhaseProgress)

	m.Advance(4)
	cycle.Tick()
	assert.Equal(t, paused, cycle.Snapshot())

	require.NoError(t, cycle.Resume())
	m.Advance(2)
	snap := cycle.Snapshot()
	assert.Equal(t, breathing.PhaseExhale, snap.Phase)
	assert.Equal(t, 52, snap.Remaining)
}

func TestBreathingCycle_ResetRestoresInitialState(t *testing.T) {
	m := clock.NewManual()
	cycle := NewBreathingCycle(BreathingConfig{Clock: m})
	defer cycle.Close()

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 60))
	m.Advance(20)
	cycle.Reset()
	m.Advance(3)

	snap := cycle.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, breathing.PhaseInhale, snap.Phase)
	assert.Equal(t, 0, snap.PhaseElapsed)
	assert.Equal(t, 0, snap.Cycles)
	assert.Equal(t, 60, snap.Remaining)
	assert.Equal(t, 0, m.Active())

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 60))
	m.Advance(1)
	assert.Equal(t, 59, cycle.Snapshot().Remaining)
}

func TestBreathingCycle_DoubleStartKeepsSingleSubscription(t *testing.T) {
	m := clock.NewManual()
	cycle := NewBreathingCycle(BreathingConfig{Clock: m})
	defer cycle.Close()

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 30))
	require.NoError(t, cycle.Start(breathing.Pattern{InhaleSec: 1, HoldSec: 1, ExhaleSec: 1, PauseSec: 1}, 90))
	assert.Equal(t, 1, m.Active())

	m.Advance(1)
	snap := cycle.Snapshot()
	assert.Equal(t, 29, snap.Remaining)
	assert.Equal(t, 30, snap.Total)
	assert.Equal(t, breathing.PhaseInhale, snap.Phase)
}

func TestBreathingCycle_StaleCallbackIsIgnored(t *testing.T) {
	c := &capturingClock{}
	cycle := NewBreathingCycle(BreathingConfig{Clock: c})
	defer cycle.Close()

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 30))
	require.NoError(t, cycle.Pause())
	require.NoError(t, cycle.Resume())
	require.Equal(t, 2, c.count())

	c.callback(0)()
	assert.Equal(t, 30, cycle.Snapshot().Remaining)

	c.callback(1)()
	assert.Equal(t, 29, cycle.Snapshot().Remaining)
}

func TestBreathingCycle_InvalidConfigRejected(t *testing.T) {
	tests := []struct {
		name    string
		pattern breathing.Pattern
		total   int
	}{
		{name: "zero total", pattern: breathing.DefaultPattern(), total: 0},
		{name: "negative total", pattern: breathing.DefaultPattern(), total: -1},
		{name: "zero hold", pattern: breathing.Pattern{InhaleSec: 4, ExhaleSec: 6, PauseSec: 1}, total: 60},
		{name: "empty pattern", pattern: breathing.Pattern{}, total: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := clock.NewManual()
			cycle := NewBreathingCycle(BreathingConfig{Clock: m})
			defer cycle.Close()

			assert.ErrorIs(t, cycle.Start(tt.pattern, tt.total), ErrInvalidConfig)
			assert.Equal(t, StateIdle, cycle.Snapshot().State)
			assert.Equal(t, 0, m.Active())
		})
	}
}

func TestBreathingCycle_EventsDropForSlowObservers(t *testing.T) {
	m := clock.NewManual()
	cycle := NewBreathingCycle(BreathingConfig{Clock: m})
	defer cycle.Close()

	slow := cycle.Subscribe(1)
	fast := cycle.Subscribe(64)

	require.NoError(t, cycle.Start(breathing.DefaultPattern(), 15))
	assert.NotPanics(t, func() { m.Advance(15) })

	assert.Len(t, drain(slow), 1)
	got := drain(fast)
	assert.Equal(t, 1, countType(got, EventCompleted))
	assert.Equal(t, 15, countType(got, EventTick))

	cycle.Unsubscribe(fast)
	_, ok := <-fast
	assert.False(t, ok)
}
