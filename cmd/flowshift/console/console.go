// Package console provides the interactive terminal for a local focus or breathing session.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"

	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
)

// Controller is the engine driven by the console.
type Controller interface {
	Start() error
	Pause() error
	Resume() error
	Reset()
	Snapshot() timer.Snapshot
	Subscribe(buffer int) <-chan timer.Event
	Close()
}

// FocusController drives a focus timer with a fixed mode.
type FocusController struct {
	*timer.FocusTimer
	Session focus.SessionConfig
}

// Start starts the configured focus session.
func (c *FocusController) Start() error {
	return c.FocusTimer.Start(c.Session)
}

// BreathingController drives a breathing cycle with a fixed pattern.
type BreathingController struct {
	*timer.BreathingCycle
	Pattern     breathing.Pattern
	DurationSec int
}

// Start starts the configured breathing exercise.
func (c *BreathingController) Start() error {
	return c.BreathingCycle.Start(c.Pattern, c.DurationSec)
}

// Console reads commands and prints engine events.
type Console struct {
	ctrl  Controller
	title string
	out   io.Writer

	mu        sync.Mutex
	lastPhase breathing.Phase
	lastMin   int
}

// New creates a console writing to out.
func New(ctrl Controller, title string, out io.Writer) *Console {
	return &Console{ctrl: ctrl, title: title, out: out, lastMin: -1}
}

// Run starts the engine and reads commands until quit, EOF or ctx is done.
func Run(ctx context.Context, ctrl Controller, title string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flowshift> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("pause"),
			readline.PcItem("resume"),
			readline.PcItem("reset"),
			readline.PcItem("start"),
			readline.PcItem("status"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create readline")
	}
	defer rl.Close()

	c := New(ctrl, title, rl.Stdout())
	events := ctrl.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Watch(events)
	}()
	defer func() {
		ctrl.Close()
		<-done
	}()

	c.printHelp()
	c.Execute("start")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				readErr <- err
				return
			}
			lines <- line
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "failed to read command")
		case line := <-lines:
			if c.Execute(line) {
				fmt.Fprintln(c.out, "Bye.")
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(line string) bool {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "start", "go":
		c.report(c.ctrl.Start())
	case "pause", "p":
		c.report(c.ctrl.Pause())
	case "resume", "r":
		c.report(c.ctrl.Resume())
	case "reset":
		c.ctrl.Reset()
		c.printStatus()
	case "status", "s":
		c.printStatus()
	case "help", "?":
		c.printHelp()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", fields[0])
	}
	return false
}

// Watch prints engine events until the channel closes.
func (c *Console) Watch(events <-chan timer.Event) {
	for ev := range events {
		c.onEvent(ev)
	}
}

func (c *Console) onEvent(ev timer.Event) {
	snap := ev.Snapshot
	switch ev.Type {
	case timer.EventCompleted:
		if snap.Kind == timer.KindFocus {
			fmt.Fprintf(c.out, "\nSession complete! %s finished. Type 'reset' then 'start' to go again.\n", snap.Label)
		} else {
			fmt.Fprintf(c.out, "\nWell done. %d breathing cycles completed.\n", snap.Cycles)
		}
	case timer.EventTick:
		c.mu.Lock()
		defer c.mu.Unlock()
		if snap.Kind == timer.KindBreathing {
			if snap.Phase != c.lastPhase {
				c.lastPhase = snap.Phase
				fmt.Fprintf(c.out, "%s  (%ds)  %s left\n", snap.Message, snap.PhaseRemaining, focus.FormatClock(snap.Remaining))
			}
			return
		}
		if minute := snap.Remaining / 60; minute != c.lastMin && snap.Remaining%60 == 0 {
			c.lastMin = minute
			fmt.Fprintf(c.out, "%s remaining\n", focus.FormatClock(snap.Remaining))
		}
	case timer.EventStateChanged:
		c.mu.Lock()
		c.lastPhase = snap.Phase
		c.lastMin = -1
		c.mu.Unlock()
	}
}

func (c *Console) report(err error) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.printStatus()
}

func (c *Console) printStatus() {
	fmt.Fprintln(c.out, Render(c.ctrl.Snapshot()))
}

func (c *Console) printHelp() {
	fmt.Fprintf(c.out, `
%s
  start    - Start (after reset or completion)
  pause    - Pause the countdown (p)
  resume   - Resume a paused countdown (r)
  reset    - Stop and restore the full duration
  status   - Show the current state (s)
  help     - Show this help
  quit     - Exit (q)
`, c.title)
}

// Render formats a snapshot as one status line.
func Render(snap timer.Snapshot) string {
	bar := progressBar(snap.Progress, 20)
	if snap.Kind == timer.KindBreathing {
		return fmt.Sprintf("[%s] %s %s  %s (%ds left in phase)  cycles=%d  %s",
			snap.State, bar, focus.FormatClock(snap.Remaining), snap.Message, snap.PhaseRemaining, snap.Cycles, snap.Phase)
	}
	return fmt.Sprintf("[%s] %s %s  %s  completed=%d",
		snap.State, bar, focus.FormatClock(snap.Remaining), snap.Label, snap.SessionsCompleted)
}

func progressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}
