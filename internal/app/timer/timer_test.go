package timer

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/osa030/flowshift/internal/domain/record"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordCompletedSession(ctx context.Context, session record.CompletedSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

// capturingClock keeps every callback it was handed so tests can replay stale ones.
type capturingClock struct {
	mu      sync.Mutex
	fns     []func()
	stopped []bool
}

func (c *capturingClock) Every(_ time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.fns)
	c.fns = append(c.fns, fn)
	c.stopped = append(c.stopped, false)
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.stopped[idx] = true
	}
}

func (c *capturingClock) callback(i int) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fns[i]
}

func (c *capturingClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func countType(events []Event, eventType EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
