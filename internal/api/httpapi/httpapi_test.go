package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconnect "github.com/osa030/flowshift/internal/api/connect"
	"github.com/osa030/flowshift/internal/app/clock"
	"github.com/osa030/flowshift/internal/app/session"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
)

type resolverFunc func(ctx context.Context, token string) (identity.Identity, error)

func (f resolverFunc) Resolve(ctx context.Context, token string) (identity.Identity, error) {
	return f(ctx, token)
}

var testResolver = resolverFunc(func(_ context.Context, token string) (identity.Identity, error) {
	if token == "alice-token" {
		return identity.User("user-alice", "alice@example.com"), nil
	}
	return identity.Identity{}, errors.New("unknown token")
})

func newTestServer(t *testing.T) (*httptest.Server, *session.Manager, *clock.Manual) {
	t.Helper()
	manual := clock.NewManual()
	sessions := session.NewManager(session.Config{Clock: manual})
	server := httptest.NewServer(NewRouter(NewServer(sessions, testResolver)))
	t.Cleanup(func() {
		server.Close()
		sessions.Close()
	})
	return server, sessions, manual
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHealth(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	_, err := sessions.StartBreathing(identity.Guest(), 0)
	require.NoError(t, err)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["sessions"])
}

func TestStreamEvents(t *testing.T) {
	server, sessions, manual := newTestServer(t)
	sess, err := sessions.StartFocus(identity.Guest(), nil, focus.ModeCustom, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	initial := readEvent(t, reader)
	assert.Equal(t, apiconnect.NotificationInitialState, initial.name)
	var n apiconnect.Notification
	require.NoError(t, json.Unmarshal([]byte(initial.data), &n))
	assert.Equal(t, 2, n.Status.Remaining)

	manual.Advance(2)
	assert.Equal(t, "tick", readEvent(t, reader).name)
	assert.Equal(t, "tick", readEvent(t, reader).name)
	completed := readEvent(t, reader)
	assert.Equal(t, "completed", completed.name)
	require.NoError(t, json.Unmarshal([]byte(completed.data), &n))
	assert.Equal(t, "complete", n.Status.State)

	require.NoError(t, sessions.CloseSession(identity.Guest(), sess.ID))
	assert.Equal(t, "closed", readEvent(t, reader).name)
}

func TestStreamEvents_QueuedEventsPrecedeClosed(t *testing.T) {
	server, sessions, manual := newTestServer(t)
	sess, err := sessions.StartFocus(identity.Guest(), nil, focus.ModeCustom, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+sess.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	require.Equal(t, apiconnect.NotificationInitialState, readEvent(t, reader).name)

	manual.Advance(2)
	require.NoError(t, sessions.CloseSession(identity.Guest(), sess.ID))

	var names []string
	for {
		ev := readEvent(t, reader)
		names = append(names, ev.name)
		if ev.name == "closed" {
			break
		}
	}
	assert.Equal(t, []string{"tick", "tick", "completed", "closed"}, names)
}

func TestStreamEvents_Errors(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	owned, err := sessions.StartFocus(identity.User("user-alice", ""), nil, focus.ModeDeep, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "unknown session", path: "/sessions/missing/events", want: http.StatusNotFound},
		{name: "guest on owned session", path: "/sessions/" + owned.ID + "/events", want: http.StatusForbidden},
		{name: "bad token", path: "/sessions/" + owned.ID + "/events", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bad query token", path: "/sessions/" + owned.ID + "/events?access_token=nope", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL+tt.path, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestStreamEvents_OwnerWithQueryToken(t *testing.T) {
	server, sessions, _ := newTestServer(t)
	owned, err := sessions.StartFocus(identity.User("user-alice", ""), nil, focus.ModeDeep, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sessions/"+owned.ID+"/events?access_token=alice-token", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apiconnect.NotificationInitialState, readEvent(t, bufio.NewReader(resp.Body)).name)
}
