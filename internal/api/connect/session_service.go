// Package connect provides the Connect RPC session service, its client and auth interceptors.
package connect

import (
	"context"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/app/insights"
	"github.com/osa030/flowshift/internal/app/notification"
	"github.com/osa030/flowshift/internal/app/session"
	"github.com/osa030/flowshift/internal/app/timer"
	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
)

// SessionService implements the SessionService RPC.
type SessionService struct {
	sessions *session.Manager
	insights *insights.Service
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions *session.Manager, insights *insights.Service) *SessionService {
	return &SessionService{
		sessions: sessions,
		insights: insights,
	}
}

// NewSessionServiceHandler builds an HTTP handler serving every SessionService procedure.
// It returns the path prefix to mount the handler on.
func NewSessionServiceHandler(svc *SessionService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ListModesProcedure, connect.NewUnaryHandler(ListModesProcedure, svc.ListModes, opts...))
	mux.Handle(StartFocusProcedure, connect.NewUnaryHandler(StartFocusProcedure, svc.StartFocus, opts...))
	mux.Handle(StartBreathingProcedure, connect.NewUnaryHandler(StartBreathingProcedure, svc.StartBreathing, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, svc.Reset, opts...))
	mux.Handle(RestartProcedure, connect.NewUnaryHandler(RestartProcedure, svc.Restart, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(ListSessionsProcedure, connect.NewUnaryHandler(ListSessionsProcedure, svc.ListSessions, opts...))
	mux.Handle(CloseProcedure, connect.NewUnaryHandler(CloseProcedure, svc.Close, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	mux.Handle(GetInsightsProcedure, connect.NewUnaryHandler(GetInsightsProcedure, svc.GetInsights, opts...))

	return "/" + ServiceName + "/", mux
}

// ListModes returns the selectable focus modes.
func (s *SessionService) ListModes(
	ctx context.Context,
	req *connect.Request[ListModesRequest],
) (*connect.Response[ListModesResponse], error) {
	modes := s.sessions.Modes()
	resp := &ListModesResponse{Modes: make([]Mode, len(modes))}
	for i, m := range modes {
		resp.Modes[i] = toMode(m)
	}
	return connect.NewResponse(resp), nil
}

// StartFocus starts a focus session for the caller.
func (s *SessionService) StartFocus(
	ctx context.Context,
	req *connect.Request[StartFocusRequest],
) (*connect.Response[StatusResponse], error) {
	owner, tokens := s.currentCaller(ctx)
	sess, err := s.sessions.StartFocus(owner, tokens, focus.Mode(req.Msg.Mode), req.Msg.DurationSec)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.statusOf(ctx, sess.ID)
}

// StartBreathing starts a breathing session for the caller.
func (s *SessionService) StartBreathing(
	ctx context.Context,
	req *connect.Request[StartBreathingRequest],
) (*connect.Response[StatusResponse], error) {
	owner, _ := s.currentCaller(ctx)
	if req.Msg.DurationSec < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("durationSec must not be negative"))
	}
	sess, err := s.sessions.StartBreathing(owner, req.Msg.DurationSec)
	if err != nil {
		return nil, toConnectError(err)
	}
	return s.statusOf(ctx, sess.ID)
}

// Pause pauses a session.
func (s *SessionService) Pause(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, req.Msg.SessionID, s.sessions.Pause)
}

// Resume resumes a session.
func (s *SessionService) Resume(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, req.Msg.SessionID, s.sessions.Resume)
}

// Reset resets a session.
func (s *SessionService) Reset(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, req.Msg.SessionID, s.sessions.Reset)
}

// Restart resets a session and starts it again.
func (s *SessionService) Restart(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, req.Msg.SessionID, s.sessions.Restart)
}

// GetStatus returns the current status of a session.
func (s *SessionService) GetStatus(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, req.Msg.SessionID, s.sessions.Status)
}

// ListSessions lists the caller's sessions.
func (s *SessionService) ListSessions(
	ctx context.Context,
	req *connect.Request[ListSessionsRequest],
) (*connect.Response[ListSessionsResponse], error) {
	owner, _ := s.currentCaller(ctx)
	infos := s.sessions.List(owner)
	resp := &ListSessionsResponse{Sessions: make([]SessionInfo, len(infos))}
	for i, info := range infos {
		resp.Sessions[i] = toSessionInfo(info)
	}
	return connect.NewResponse(resp), nil
}

// Close stops and removes a session.
func (s *SessionService) Close(
	ctx context.Context,
	req *connect.Request[SessionRequest],
) (*connect.Response[CloseResponse], error) {
	owner, _ := s.currentCaller(ctx)
	if err := s.sessions.CloseSession(owner, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CloseResponse{}), nil
}

// Subscribe streams the events of one session.
// The current status is sent first; the stream ends when the session is closed or the client leaves.
func (s *SessionService) Subscribe(
	ctx context.Context,
	req *connect.Request[SessionRequest],
	stream *connect.ServerStream[Notification],
) error {
	owner, _ := s.currentCaller(ctx)
	sess, err := s.sessions.Get(owner, req.Msg.SessionID)
	if err != nil {
		return toConnectError(err)
	}

	adapter := &notificationStreamAdapter{stream: stream}
	notifications := s.sessions.Notifications()

	// Hold the adapter until the initial state is out so no event overtakes it.
	adapter.mu.Lock()
	subscriptionID := notifications.Subscribe(sess.ID, adapter)
	defer notifications.Unsubscribe(subscriptionID)

	snap, err := s.sessions.Status(owner, sess.ID)
	if err != nil {
		adapter.mu.Unlock()
		return toConnectError(err)
	}
	err = stream.Send(&Notification{
		Type:   NotificationInitialState,
		Status: ToStatus(sess.ID, snap),
		At:     time.Now(),
	})
	adapter.mu.Unlock()
	if err != nil {
		return err
	}

	zlog.Debug().Msgf("connect: subscribed: session=%s subscription=%s", sess.ID, subscriptionID)

	select {
	case <-ctx.Done():
	case <-sess.Done():
	}
	return nil
}

// GetInsights returns the caller's stats and insights.
func (s *SessionService) GetInsights(
	ctx context.Context,
	req *connect.Request[GetInsightsRequest],
) (*connect.Response[GetInsightsResponse], error) {
	owner, tokens := s.currentCaller(ctx)
	report, err := s.insights.Report(ctx, owner, tokens)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(toInsightsResponse(report)), nil
}

// currentCaller returns the authenticated caller and passes their current tokens on to
// the sessions they own.
func (s *SessionService) currentCaller(ctx context.Context) (identity.Identity, oauth2.TokenSource) {
	owner, tokens := CallerFrom(ctx)
	s.sessions.RefreshTokens(owner, tokens)
	return owner, tokens
}

func (s *SessionService) statusOf(ctx context.Context, id string) (*connect.Response[StatusResponse], error) {
	return s.control(ctx, id, s.sessions.Status)
}

func (s *SessionService) control(
	ctx context.Context,
	id string,
	op func(caller identity.Identity, id string) (timer.Snapshot, error),
) (*connect.Response[StatusResponse], error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("sessionId is required"))
	}
	owner, _ := s.currentCaller(ctx)
	snap, err := op(owner, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StatusResponse{Status: ToStatus(id, snap)}), nil
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Sends are serialized; the notification manager may overlap them after a timeout.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[Notification]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(ToNotification(n))
}

// toConnectError maps domain errors to connect codes.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, session.ErrForbidden):
		code = connect.CodePermissionDenied
	case errors.Is(err, session.ErrTooManySessions):
		code = connect.CodeResourceExhausted
	case errors.Is(err, session.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, timer.ErrInvalidConfig), errors.Is(err, focus.ErrUnknownMode):
		code = connect.CodeInvalidArgument
	case errors.Is(err, timer.ErrNotRunning), errors.Is(err, timer.ErrNotPaused), errors.Is(err, timer.ErrSessionComplete):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		zlog.Error().Err(err).Msg("connect: internal error")
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
