package timer

import (
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/flowshift/internal/app/clock"
)

// Errors
var (
	ErrInvalidConfig   = errors.New("invalid session configuration")
	ErrNotRunning      = errors.New("not running")
	ErrNotPaused       = errors.New("not paused")
	ErrSessionComplete = errors.New("session complete, reset first")
)

const defaultTickInterval = time.Second

func invalidConfig(err error) error {
	return errors.Wrap(ErrInvalidConfig, err.Error())
}

// tickSource owns the single clock subscription of an engine.
// Every subscription gets a generation; callbacks from older generations are stale.
type tickSource struct {
	clock    clock.Clock
	interval time.Duration
	gen      uint64
	stop     func()
}

func newTickSource(c clock.Clock, interval time.Duration) tickSource {
	if c == nil {
		c = clock.New()
	}
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return tickSource{clock: c, interval: interval}
}

// start cancels any previous subscription and subscribes fn with a fresh generation.
// Must be called with the engine lock held.
func (s *tickSource) start(fn func(gen uint64)) {
	s.cancel()
	gen := s.gen
	s.stop = s.clock.Every(s.interval, func() {
		fn(gen)
	})
}

// cancel stops the current subscription and invalidates its pending callbacks.
// Must be called with the engine lock held.
func (s *tickSource) cancel() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.gen++
}

func (s *tickSource) current(gen uint64) bool {
	return s.stop != nil && gen == s.gen
}

// broadcaster fans engine events out to observer channels without blocking the tick path.
type broadcaster struct {
	mu         sync.Mutex
	subs       []chan Event
	onComplete []func(Completion)
	closed     bool
}

func (b *broadcaster) subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *broadcaster) unsubscribe(target <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *broadcaster) addCompletionHook(fn func(Completion)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onComplete = append(b.onComplete, fn)
}

// emit delivers an event to every subscriber, dropping it for subscribers that are full.
func (b *broadcaster) emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *broadcaster) complete(c Completion) {
	b.mu.Lock()
	hooks := slices.Clone(b.onComplete)
	b.mu.Unlock()

	for _, hook := range hooks {
		hook(c)
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

func fraction(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
