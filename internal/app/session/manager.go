// Package session provides the server-side registry of running focus and breathing sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/app/notification"
	"github.com/osa030/flowshift/internal/app/session/registry"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/infra/store"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrForbidden       = errors.New("session belongs to another user")
	ErrTooManySessions = errors.New("too many sessions")
	ErrClosed          = errors.New("session manager is closed")
)

// Config represents session manager configuration.
type Config struct {
	Clock                clock.Clock
	TickInterval         time.Duration
	RecordTimeout        time.Duration
	IdleTimeout          time.Duration
	JanitorInterval      time.Duration
	MaxSessions          int
	EventBuffer          int
	Catalog              *focus.Catalog
	Pattern              breathing.Pattern
	BreathingDurationSec int
	Store                store.Store // optional
	Now                  func() time.Time
}

// engine is what both timing engines have in common.
type engine interface {
	Pause() error
	Resume() error
	Reset()
	Snapshot() timer.Snapshot
	Subscribe(buffer int) <-chan timer.Event
	Close()
}

// Session is one running engine and its owner.
type Session struct {
	ID        string
	Kind      timer.Kind
	Owner     identity.Identity
	CreatedAt time.Time

	engine    engine
	focus     *timer.FocusTimer
	breathing *timer.BreathingCycle
	pattern   breathing.Pattern
	total     int

	tokens *heldTokens // nil unless an authenticated owner passed tokens

	mu         sync.Mutex
	lastActive time.Time
	forwarded  chan struct{}
}

// heldTokens hands out the owner's most recent token source.
// The recorder reads it at completion, which may be long after the session started.
type heldTokens struct {
	mu     sync.Mutex
	source oauth2.TokenSource
}

func (h *heldTokens) Token() (*oauth2.Token, error) {
	h.mu.Lock()
	source := h.source
	h.mu.Unlock()
	return source.Token()
}

func (h *heldTokens) set(source oauth2.TokenSource) {
	h.mu.Lock()
	h.source = source
	h.mu.Unlock()
}

// Info is a summary of a session for listings.
type Info struct {
	ID        string
	Kind      timer.Kind
	CreatedAt time.Time
	Snapshot  timer.Snapshot
}

// Done is closed once the session has been closed or evicted.
func (s *Session) Done() <-chan struct{} {
	return s.forwarded
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// ownedBy reports whether caller may control the session.
// Guest sessions have no user to match; knowing the session ID is enough.
func (s *Session) ownedBy(caller identity.Identity) bool {
	if !s.Owner.IsAuthenticated() {
		return true
	}
	return caller.IsAuthenticated() && caller.UserID == s.Owner.UserID
}

// Manager manages sessions.
type Manager struct {
	config       Config
	sessions     *registry.Registry[*Session]
	notification *notification.Manager

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new session manager and starts the idle janitor.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = focus.NewCatalog(nil)
	}
	if cfg.Pattern == (breathing.Pattern{}) {
		cfg.Pattern = breathing.DefaultPattern()
	}
	if cfg.BreathingDurationSec <= 0 {
		cfg.BreathingDurationSec = 120
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 32
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.JanitorInterval <= 0 && cfg.IdleTimeout > 0 {
		cfg.JanitorInterval = cfg.IdleTimeout / 4
		if cfg.JanitorInterval < time.Second {
			cfg.JanitorInterval = time.Second
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		sessions:     registry.New[*Session](cfg.MaxSessions),
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
	}

	if cfg.IdleTimeout > 0 {
		m.wg.Add(1)
		go m.janitor()
	}
	return m
}

// Notifications returns the notification manager that receives every session event.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Modes returns the selectable focus modes.
func (m *Manager) Modes() []focus.SessionConfig {
	return m.config.Catalog.All()
}

// StartFocus creates and starts a focus session.
// Completions are recorded through the store scoped to owner and tokens.
func (m *Manager) StartFocus(owner identity.Identity, tokens oauth2.TokenSource, mode focus.Mode, durationSec int) (*Session, error) {
	cfg, err := m.config.Catalog.Resolve(mode, durationSec)
	if err != nil {
		return nil, errors.Mark(err, timer.ErrInvalidConfig)
	}

	var held *heldTokens
	if owner.IsAuthenticated() && tokens != nil {
		held = &heldTokens{source: tokens}
	}

	var recorder timer.Recorder
	if m.config.Store != nil && owner.IsAuthenticated() {
		if held != nil {
			recorder = m.config.Store.Scoped(owner, held)
		} else {
			recorder = m.config.Store.Scoped(owner, nil)
		}
	}

	ft := timer.NewFocusTimer(timer.FocusConfig{
		Clock:         m.config.Clock,
		TickInterval:  m.config.TickInterval,
		Recorder:      recorder,
		Identity:      owner,
		RecordTimeout: m.config.RecordTimeout,
		Now:           m.config.Now,
	})

	s := m.newSession(timer.KindFocus, owner)
	s.engine = ft
	s.focus = ft
	s.tokens = held

	if err := m.register(s); err != nil {
		ft.Close()
		return nil, err
	}
	if err := ft.Start(cfg); err != nil {
		m.remove(s)
		return nil, err
	}

	zlog.Info().Msgf("session: focus started: id=%s user=%s mode=%s duration=%ds", s.ID, owner.DisplayName(), cfg.Mode, cfg.DurationSec)
	return s, nil
}

// StartBreathing creates and starts a breathing session.
// A non-positive durationSec uses the configured default.
func (m *Manager) StartBreathing(owner identity.Identity, durationSec int) (*Session, error) {
	if durationSec <= 0 {
		durationSec = m.config.BreathingDurationSec
	}

	bc := timer.NewBreathingCycle(timer.BreathingConfig{
		Clock:        m.config.Clock,
		TickInterval: m.config.TickInterval,
		Now:          m.config.Now,
	})

	s := m.newSession(timer.KindBreathing, owner)
	s.engine = bc
	s.breathing = bc
	s.pattern = m.config.Pattern
	s.total = durationSec

	if err := m.register(s); err != nil {
		bc.Close()
		return nil, err
	}
	if err := bc.Start(s.pattern, s.total); err != nil {
		m.remove(s)
		return nil, err
	}

	zlog.Info().Msgf("session: breathing started: id=%s user=%s duration=%ds", s.ID, owner.DisplayName(), durationSec)
	return s, nil
}

// Restart resets a session and starts it again with its last configuration.
func (m *Manager) Restart(caller identity.Identity, id string) (timer.Snapshot, error) {
	s, err := m.lookup(caller, id)
	if err != nil {
		return timer.Snapshot{}, err
	}

	s.engine.Reset()
	switch s.Kind {
	case timer.KindFocus:
		cfg, ok := s.focus.Config()
		if !ok {
			return timer.Snapshot{}, timer.ErrInvalidConfig
		}
		err = s.focus.Start(cfg)
	default:
		err = s.breathing.Start(s.pattern, s.total)
	}
	if err != nil {
		return timer.Snapshot{}, err
	}
	return s.engine.Snapshot(), nil
}

// Pause pauses a running session.
func (m *Manager) Pause(caller identity.Identity, id string) (timer.Snapshot, error) {
	s, err := m.lookup(caller, id)
	if err != nil {
		return timer.Snapshot{}, err
	}
	if err := s.engine.Pause(); err != nil {
		return timer.Snapshot{}, err
	}
	return s.engine.Snapshot(), nil
}

// Resume resumes a paused session.
func (m *Manager) Resume(caller identity.Identity, id string) (timer.Snapshot, error) {
	s, err := m.lookup(caller, id)
	if err != nil {
		return timer.Snapshot{}, err
	}
	if err := s.engine.Resume(); err != nil {
		return timer.Snapshot{}, err
	}
	return s.engine.Snapshot(), nil
}

// Reset stops a session and restores its full duration.
func (m *Manager) Reset(caller identity.Identity, id string) (timer.Snapshot, error) {
	s, err := m.lookup(caller, id)
	if err != nil {
		return timer.Snapshot{}, err
	}
	s.engine.Reset()
	return s.engine.Snapshot(), nil
}

// Status returns the current snapshot of a session.
func (m *Manager) Status(caller identity.Identity, id string) (timer.Snapshot, error) {
	s, err := m.lookup(caller, id)
	if err != nil {
		return timer.Snapshot{}, err
	}
	return s.engine.Snapshot(), nil
}

// Get returns a session the caller may observe.
func (m *Manager) Get(caller identity.Identity, id string) (*Session, error) {
	return m.lookup(caller, id)
}

// List returns the caller's sessions. Guests have no listable sessions.
func (m *Manager) List(caller identity.Identity) []Info {
	if !caller.IsAuthenticated() {
		return nil
	}
	var result []Info
	for _, s := range m.sessions.All() {
		if s.Owner.IsAuthenticated() && s.Owner.UserID == caller.UserID {
			result = append(result, Info{ID: s.ID, Kind: s.Kind, CreatedAt: s.CreatedAt, Snapshot: s.engine.Snapshot()})
		}
	}
	return result
}

// CloseSession stops and forgets a session.
func (m *Manager) CloseSession(caller identity.Identity, id string) error {
	s, err := m.lookup(caller, id)
	if err != nil {
		return err
	}
	m.remove(s)
	zlog.Info().Msgf("session: closed: id=%s", id)
	return nil
}

// RefreshTokens hands the caller's current tokens to every focus session they own,
// so completions are recorded with a token that is still valid.
// It returns the number of sessions updated.
func (m *Manager) RefreshTokens(caller identity.Identity, tokens oauth2.TokenSource) int {
	if !caller.IsAuthenticated() || tokens == nil {
		return 0
	}
	updated := 0
	for _, s := range m.sessions.All() {
		if s.tokens == nil || s.Owner.UserID != caller.UserID {
			continue
		}
		s.tokens.set(tokens)
		updated++
	}
	return updated
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.sessions.Count()
}

// Close stops every session and the janitor.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	for _, s := range m.sessions.All() {
		m.remove(s)
	}
	m.wg.Wait()
	m.notification.Close()
}

func (m *Manager) newSession(kind timer.Kind, owner identity.Identity) *Session {
	now := m.config.Now()
	return &Session{
		ID:         uuid.New().String(),
		Kind:       kind,
		Owner:      owner,
		CreatedAt:  now,
		lastActive: now,
		forwarded:  make(chan struct{}),
	}
}

// register adds s and starts forwarding its events to subscribers.
func (m *Manager) register(s *Session) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := m.sessions.Add(s.ID, s); err != nil {
		if errors.Is(err, registry.ErrFull) {
			return ErrTooManySessions
		}
		return err
	}

	events := s.engine.Subscribe(m.config.EventBuffer)
	m.wg.Add(1)
	go m.forward(s, events)
	return nil
}

// remove unregisters s, closes its engine and waits for its forwarder to drain.
func (m *Manager) remove(s *Session) {
	if _, ok := m.sessions.Remove(s.ID); !ok {
		return
	}
	s.engine.Close()
	<-s.forwarded
}

// forward relays engine events to the notification manager until the engine closes.
func (m *Manager) forward(s *Session, events <-chan timer.Event) {
	defer m.wg.Done()
	defer close(s.forwarded)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: forwarder panicked: id=%s err=%v", s.ID, r)
		}
	}()

	for event := range events {
		if event.Type != timer.EventTick {
			zlog.Debug().Msgf("session: event: id=%s type=%s state=%s", s.ID, event.Type, event.Snapshot.State)
		}
		m.notification.Broadcast(&notification.Notification{
			SessionID: s.ID,
			Type:      event.Type,
			Snapshot:  event.Snapshot,
			At:        event.At,
		})
	}
}

func (m *Manager) lookup(caller identity.Identity, id string) (*Session, error) {
	s, err := m.sessions.Get(id)
	if err != nil {
		return nil, errors.Wrapf(ErrSessionNotFound, "id=%s", id)
	}
	if !s.ownedBy(caller) {
		return nil, errors.Wrapf(ErrForbidden, "id=%s", id)
	}
	s.touch(m.config.Now())
	return s, nil
}

// janitor evicts sessions that are not running and have not been touched within the idle timeout.
func (m *Manager) janitor() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// EvictIdle removes idle sessions and returns how many were removed.
func (m *Manager) EvictIdle() int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}
	deadline := m.config.Now().Add(-m.config.IdleTimeout)

	evicted := 0
	for _, s := range m.sessions.All() {
		if s.engine.Snapshot().State == timer.StateRunning {
			continue
		}
		if s.idleSince().After(deadline) {
			continue
		}
		m.remove(s)
		evicted++
		zlog.Info().Msgf("session: evicted idle session: id=%s kind=%s", s.ID, s.Kind)
	}
	return evicted
}
