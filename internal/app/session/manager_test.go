package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/app/notification"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/breathing"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/domain/record"
	"github.com/osa030/flowshift/internal/infra/config"
	"github.com/osa030/flowshift/internal/infra/store"
)

var (
	alice = identity.User("user-alice", "alice@example.com")
	bob   = identity.User("user-bob", "bob@example.com")
)

type fakeNow struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeNow) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, *clock.Manual) {
	t.Helper()
	manual := clock.NewManual()
	cfg := Config{
		Clock:                manual,
		Catalog:              focus.NewCatalog(nil),
		Pattern:              breathing.DefaultPattern(),
		BreathingDurationSec: 30,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m, manual
}

type collector struct {
	mu     sync.Mutex
	events []*notification.Notification
}

func (c *collector) Send(n *notification.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, n)
	return nil
}

func (c *collector) has(eventType timer.EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.events {
		if n.Type == eventType {
			return true
		}
	}
	return false
}

func TestManager_FocusLifecycle(t *testing.T) {
	m, manual := newTestManager(t, nil)

	s, err := m.StartFocus(identity.Guest(), nil, focus.ModeCustom, 3)
	require.NoError(t, err)
	assert.Equal(t, timer.KindFocus, s.Kind)
	assert.Equal(t, 1, m.Count())

	events := &collector{}
	m.Notifications().Subscribe(s.ID, events)

	manual.Advance(1)
	snap, err := m.Pause(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, timer.StatePaused, snap.State)
	assert.Equal(t, 2, snap.Remaining)

	manual.Advance(5)
	snap, err = m.Status(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Remaining)

	_, err = m.Resume(identity.Guest(), s.ID)
	require.NoError(t, err)
	manual.Advance(2)

	snap, err = m.Status(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, timer.StateComplete, snap.State)
	assert.Equal(t, 1, snap.SessionsCompleted)

	assert.Eventually(t, func() bool { return events.has(timer.EventCompleted) }, time.Second, 5*time.Millisecond)

	snap, err = m.Restart(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, timer.StateRunning, snap.State)
	assert.Equal(t, 3, snap.Remaining)
}

func TestManager_BreathingSession(t *testing.T) {
	m, manual := newTestManager(t, nil)

	s, err := m.StartBreathing(identity.Guest(), 0)
	require.NoError(t, err)
	assert.Equal(t, timer.KindBreathing, s.Kind)

	manual.Advance(4)
	snap, err := m.Status(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, breathing.PhaseHold, snap.Phase)
	assert.Equal(t, 30, snap.Total)

	snap, err = m.Reset(identity.Guest(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, timer.StateIdle, snap.State)
	assert.Equal(t, breathing.PhaseInhale, snap.Phase)
}

func TestManager_Ownership(t *testing.T) {
	m, _ := newTestManager(t, nil)

	owned, err := m.StartFocus(alice, nil, focus.ModePomodoro, 0)
	require.NoError(t, err)
	guest, err := m.StartBreathing(identity.Guest(), 60)
	require.NoError(t, err)

	_, err = m.Status(alice, owned.ID)
	assert.NoError(t, err)

	_, err = m.Pause(bob, owned.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = m.Status(identity.Guest(), owned.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = m.Status(bob, guest.ID)
	assert.NoError(t, err)

	_, err = m.Status(alice, "missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	list := m.List(alice)
	require.Len(t, list, 1)
	assert.Equal(t, owned.ID, list[0].ID)
	assert.Equal(t, focus.ModePomodoro, list[0].Snapshot.Mode)
	assert.Empty(t, m.List(bob))
	assert.Empty(t, m.List(identity.Guest()))
}

func TestManager_StartFocusRejectsBadMode(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, err := m.StartFocus(identity.Guest(), nil, focus.Mode("nap"), 0)
	assert.True(t, errors.Is(err, timer.ErrInvalidConfig))
	assert.True(t, errors.Is(err, focus.ErrUnknownMode))

	_, err = m.StartFocus(identity.Guest(), nil, focus.ModeCustom, 0)
	assert.True(t, errors.Is(err, timer.ErrInvalidConfig))
	assert.Equal(t, 0, m.Count())
}

func TestManager_SessionLimit(t *testing.T) {
	m, _ := newTestManager(t, func(c *Config) { c.MaxSessions = 1 })

	first, err := m.StartBreathing(identity.Guest(), 60)
	require.NoError(t, err)

	_, err = m.StartFocus(identity.Guest(), nil, focus.ModeDeep, 0)
	assert.True(t, errors.Is(err, ErrTooManySessions))

	require.NoError(t, m.CloseSession(identity.Guest(), first.ID))
	_, err = m.StartFocus(identity.Guest(), nil, focus.ModeDeep, 0)
	assert.NoError(t, err)
}

func TestManager_CloseSession(t *testing.T) {
	m, manual := newTestManager(t, nil)

	s, err := m.StartFocus(alice, nil, focus.ModeMindful, 0)
	require.NoError(t, err)

	assert.True(t, errors.Is(m.CloseSession(bob, s.ID), ErrForbidden))
	require.NoError(t, m.CloseSession(alice, s.ID))
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, manual.Active())

	_, err = m.Status(alice, s.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestManager_RecordsAuthenticatedCompletion(t *testing.T) {
	st, err := store.Open(&config.Config{Store: config.StoreConfig{
		Driver:   config.DriverSQLite,
		Settings: map[string]any{"dsn": ":memory:"},
	}}, nil)
	require.NoError(t, err)
	defer st.Close()

	m, manual := newTestManager(t, func(c *Config) { c.Store = st })

	_, err = m.StartFocus(alice, nil, focus.ModeCustom, 2)
	require.NoError(t, err)
	_, err = m.StartFocus(identity.Guest(), nil, focus.ModeCustom, 2)
	require.NoError(t, err)
	manual.Advance(2)

	repo := st.Scoped(alice, nil)
	assert.Eventually(t, func() bool {
		sessions, err := repo.CompletedSessions(context.Background(), alice.UserID, 0)
		return err == nil && len(sessions) == 1
	}, time.Second, 10*time.Millisecond)

	sessions, err := repo.CompletedSessions(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

// tokenStore records which access token each completion was written with.
type tokenStore struct {
	mu   sync.Mutex
	used []string
}

func (s *tokenStore) Scoped(_ identity.Identity, tokens oauth2.TokenSource) store.Repository {
	return &tokenRepo{Nop: store.Nop{}, store: s, tokens: tokens}
}

func (s *tokenStore) Driver() string { return "test" }

func (s *tokenStore) Close() error { return nil }

func (s *tokenStore) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.used...)
}

type tokenRepo struct {
	store.Nop
	store  *tokenStore
	tokens oauth2.TokenSource
}

func (r *tokenRepo) RecordCompletedSession(context.Context, record.CompletedSession) error {
	tok, err := r.tokens.Token()
	if err != nil {
		return err
	}
	r.store.mu.Lock()
	r.store.used = append(r.store.used, tok.AccessToken)
	r.store.mu.Unlock()
	return nil
}

func TestManager_RecordsWithLatestOwnerToken(t *testing.T) {
	st := &tokenStore{}
	m, manual := newTestManager(t, func(c *Config) { c.Store = st })

	s, err := m.StartFocus(alice, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "start-token"}), focus.ModeCustom, 3)
	require.NoError(t, err)
	other, err := m.StartFocus(bob, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "bob-token"}), focus.ModeCustom, 60)
	require.NoError(t, err)

	manual.Advance(1)
	assert.Equal(t, 0, m.RefreshTokens(identity.Guest(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "guest"})))
	assert.Equal(t, 1, m.RefreshTokens(alice, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fresh-token"})))
	manual.Advance(2)

	require.NoError(t, m.CloseSession(alice, s.ID))
	assert.Equal(t, []string{"fresh-token"}, st.tokens())

	_, err = m.Status(bob, other.ID)
	assert.NoError(t, err)
}

func TestManager_EvictIdle(t *testing.T) {
	now := &fakeNow{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	m, _ := newTestManager(t, func(c *Config) {
		c.IdleTimeout = time.Hour
		c.JanitorInterval = time.Hour
		c.Now = now.Now
	})

	running, err := m.StartFocus(identity.Guest(), nil, focus.ModeDeep, 0)
	require.NoError(t, err)
	paused, err := m.StartFocus(identity.Guest(), nil, focus.ModeDeep, 0)
	require.NoError(t, err)
	_, err = m.Pause(identity.Guest(), paused.ID)
	require.NoError(t, err)

	now.Add(30 * time.Minute)
	assert.Equal(t, 0, m.EvictIdle())

	now.Add(31 * time.Minute)
	assert.Equal(t, 1, m.EvictIdle())

	_, err = m.Status(identity.Guest(), running.ID)
	assert.NoError(t, err)
	_, err = m.Status(identity.Guest(), paused.ID)
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestManager_CloseStopsEverything(t *testing.T) {
	manual := clock.NewManual()
	m := NewManager(Config{Clock: manual})

	_, err := m.StartFocus(identity.Guest(), nil, focus.ModePomodoro, 0)
	require.NoError(t, err)
	_, err = m.StartBreathing(identity.Guest(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, manual.Active())

	m.Close()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0, manual.Active())

	_, err = m.StartBreathing(identity.Guest(), 0)
	assert.True(t, errors.Is(err, ErrClosed))
	m.Close()
}
