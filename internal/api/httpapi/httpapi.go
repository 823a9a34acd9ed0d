// Package httpapi serves the plain HTTP endpoints: health and server-sent session events.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/flowshift/internal/api/connect"
	"github.com/osa030/flowshift/internal/app/notification"
	"github.com/osa030/flowshift/internal/app/session"
	"github.com/osa030/flowshift/internal/domain/identity"
)

const (
	defaultEventBuffer = 64
	keepAliveInterval  = 15 * time.Second
)

// IdentityResolver resolves an access token to an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (identity.Identity, error)
}

type identityKey struct{}

// IdentityFrom returns the identity stored by the identity middleware.
func IdentityFrom(ctx context.Context) identity.Identity {
	if id, ok := ctx.Value(identityKey{}).(identity.Identity); ok {
		return id
	}
	return identity.Guest()
}

// Server holds the HTTP endpoint dependencies.
type Server struct {
	sessions *session.Manager
	resolver IdentityResolver // optional
}

// NewServer creates a new HTTP endpoint server. resolver may be nil.
func NewServer(sessions *session.Manager, resolver IdentityResolver) *Server {
	return &Server{sessions: sessions, resolver: resolver}
}

// Routes mounts the endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.health)
	r.Group(func(r chi.Router) {
		r.Use(s.extractIdentity)
		r.Get("/sessions/{id}/events", s.streamEvents)
	})
}

// NewRouter creates a router with the standard middleware and the endpoints mounted.
func NewRouter(s *Server) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	s.Routes(r)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	}, http.StatusOK)
}

// extractIdentity resolves the bearer token of the request.
// EventSource cannot set headers, so the access_token query parameter is accepted too.
func (s *Server) extractIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		id := identity.Guest()

		if token != "" && s.resolver != nil {
			resolved, err := s.resolver.Resolve(r.Context(), token)
			if err != nil {
				zlog.Debug().Err(err).Msg("httpapi: authentication failed")
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			id = resolved
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// streamEvents writes the events of one session as server-sent events.
// The first event is the current state; the stream ends when the session closes.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := IdentityFrom(r.Context())

	sess, err := s.sessions.Get(caller, id)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrForbidden):
			respondError(w, "forbidden", http.StatusForbidden)
		default:
			respondError(w, "session not found", http.StatusNotFound)
		}
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events := make(chan *notification.Notification, defaultEventBuffer)
	notifications := s.sessions.Notifications()
	subscriptionID := notifications.Subscribe(sess.ID, notification.StreamFunc(func(n *notification.Notification) error {
		select {
		case events <- n:
		default:
			zlog.Debug().Msgf("httpapi: dropping event for slow client: session=%s seq=%d", sess.ID, n.SequenceNo)
		}
		return nil
	}))
	defer notifications.Unsubscribe(subscriptionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snap, err := s.sessions.Status(caller, sess.ID)
	if err != nil {
		return
	}
	initial := &apiconnect.Notification{
		Type:   apiconnect.NotificationInitialState,
		Status: apiconnect.ToStatus(sess.ID, snap),
		At:     time.Now(),
	}
	if err := writeEvent(w, initial); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case n := <-events:
			if err := writeEvent(w, apiconnect.ToNotification(n)); err != nil {
				zlog.Debug().Err(err).Msgf("httpapi: stream closed: session=%s", sess.ID)
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-sess.Done():
			// Every event was queued before Done closed; send what is left first.
			if err := drainEvents(w, events); err != nil {
				return
			}
			fmt.Fprint(w, "event: closed\ndata: {}\n\n")
			flusher.Flush()
			return
		case <-r.Context().Done():
			return
		}
	}
}

func drainEvents(w http.ResponseWriter, events <-chan *notification.Notification) error {
	for {
		select {
		case n := <-events:
			if err := writeEvent(w, apiconnect.ToNotification(n)); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func writeEvent(w http.ResponseWriter, n *apiconnect.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	if n.SequenceNo > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", n.SequenceNo); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Type, data)
	return err
}

func bearerToken(r *http.Request) string {
	if value := r.Header.Get(apiconnect.AuthorizationHeader); len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return r.URL.Query().Get("access_token")
}

// requestLogger logs each request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("httpapi: %s %s: status=%d duration=%s request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zlog.Error().Err(err).Msg("httpapi: failed to encode response")
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
