// Package clock provides the repeating tick sources that drive the timing engines.
package clock

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Clock schedules a callback at a fixed interval until the returned stop function is called.
type Clock interface {
	Every(interval time.Duration, fn func()) (stop func())
}

// Ticker is a Clock backed by time.Ticker.
type Ticker struct{}

// New creates a wall clock ticker.
func New() *Ticker {
	return &Ticker{}
}

// Every starts a goroutine that calls fn once per interval.
// Stop is synchronous with respect to scheduling: no new callback starts after it returns,
// but a callback already running may still complete.
func (t *Ticker) Every(interval time.Duration, fn func()) func() {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn()
			}
		}
	}()

	return cancel
}

// Manual is a Clock advanced explicitly. It is used to drive engines deterministically.
type Manual struct {
	mu   sync.Mutex
	next int
	subs map[int]func()
}

// NewManual creates a manual clock.
func NewManual() *Manual {
	return &Manual{subs: make(map[int]func())}
}

// Every registers fn; it fires on each Advance until stopped.
func (m *Manual) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Advance fires every active subscription n times.
func (m *Manual) Advance(n int) {
	for i := 0; i < n; i++ {
		for _, fn := range m.snapshot() {
			fn()
		}
	}
}

// Active returns the number of live subscriptions.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manual) snapshot() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subs[id])
	}
	return fns
}
