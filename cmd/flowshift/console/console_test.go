package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
)

func newFocusConsole(t *testing.T, durationSec int) (*Console, *FocusController, *clock.Manual, *bytes.Buffer) {
	t.Helper()
	manual := clock.NewManual()
	ctrl := &FocusController{
		FocusTimer: timer.NewFocusTimer(timer.FocusConfig{Clock: manual}),
		Session:    focus.SessionConfig{Mode: focus.ModeCustom, DurationSec: durationSec, Label: "Custom"},
	}
	t.Cleanup(ctrl.Close)
	out := &bytes.Buffer{}
	return New(ctrl, "Focus", out), ctrl, manual, out
}

func TestConsole_Commands(t *testing.T) {
	c, ctrl, manual, out := newFocusConsole(t, 120)

	assert.False(t, c.Execute("start"))
	assert.Equal(t, timer.StateRunning, ctrl.Snapshot().State)

	manual.Advance(10)
	assert.False(t, c.Execute("p"))
	assert.Equal(t, timer.StatePaused, ctrl.Snapshot().State)
	assert.Contains(t, out.String(), "01:50")

	out.Reset()
	c.Execute("pause")
	assert.Contains(t, out.String(), "Error:")

	c.Execute("RESUME")
	assert.Equal(t, timer.StateRunning, ctrl.Snapshot().State)

	c.Execute("reset")
	assert.Equal(t, timer.StateIdle, ctrl.Snapshot().State)
	assert.Equal(t, 120, ctrl.Snapshot().Remaining)

	out.Reset()
	c.Execute("dance")
	assert.Contains(t, out.String(), "Unknown command: dance")

	assert.False(t, c.Execute("   "))
	assert.True(t, c.Execute("quit"))
	assert.True(t, c.Execute("q"))
}

func TestConsole_WatchPrintsCompletion(t *testing.T) {
	c, ctrl, manual, out := newFocusConsole(t, 2)
	events := ctrl.Subscribe(16)

	c.Execute("start")
	manual.Advance(2)
	ctrl.Close()
	c.Watch(events)

	assert.Contains(t, out.String(), "Session complete! Custom finished.")
}

func TestConsole_BreathingPhaseChanges(t *testing.T) {
	manual := clock.NewManual()
	ctrl := &BreathingController{
		BreathingCycle: timer.NewBreathingCycle(timer.BreathingConfig{Clock: manual}),
		Pattern:        breathing.DefaultPattern(),
		DurationSec:    30,
	}
	events := ctrl.Subscribe(64)
	out := &bytes.Buffer{}
	c := New(ctrl, "Breathe", out)

	require.NoError(t, ctrl.Start())
	manual.Advance(5)
	ctrl.Close()
	c.Watch(events)

	assert.Contains(t, out.String(), breathing.PhaseHold.Message())
	assert.NotContains(t, out.String(), breathing.PhaseExhale.Message())
}

func TestRender(t *testing.T) {
	line := Render(timer.Snapshot{
		Kind:      timer.KindFocus,
		State:     timer.StateRunning,
		Remaining: 90,
		Total:     180,
		Progress:  0.5,
		Label:     "Pomodoro",
	})
	assert.Equal(t, "[running] ##########---------- 01:30  Pomodoro  completed=0", line)

	line = Render(timer.Snapshot{
		Kind:           timer.KindBreathing,
		State:          timer.StatePaused,
		Remaining:      100,
		Phase:          breathing.PhaseExhale,
		PhaseRemaining: 3,
		Message:        "Breathe out",
		Cycles:         2,
	})
	assert.Contains(t, line, "[paused]")
	assert.Contains(t, line, "Breathe out (3s left in phase)")
	assert.Contains(t, line, "cycles=2")
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "----", progressBar(-1, 4))
	assert.Equal(t, "##--", progressBar(0.5, 4))
	assert.Equal(t, "####", progressBar(2, 4))
}
