package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed SessionService client.
type Client struct {
	listModes      *connect.Client[ListModesRequest, ListModesResponse]
	startFocus     *connect.Client[StartFocusRequest, StatusResponse]
	startBreathing *connect.Client[StartBreathingRequest, StatusResponse]
	pause          *connect.Client[SessionRequest, StatusResponse]
	resume         *connect.Client[SessionRequest, StatusResponse]
	reset          *connect.Client[SessionRequest, StatusResponse]
	restart        *connect.Client[SessionRequest, StatusResponse]
	getStatus      *connect.Client[SessionRequest, StatusResponse]
	listSessions   *connect.Client[ListSessionsRequest, ListSessionsResponse]
	close          *connect.Client[SessionRequest, CloseResponse]
	subscribe      *connect.Client[SessionRequest, Notification]
	getInsights    *connect.Client[GetInsightsRequest, GetInsightsResponse]
}

// NewClient creates a client for the server at baseURL, e.g. http://localhost:8080.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)

	return &Client{
		listModes:      connect.NewClient[ListModesRequest, ListModesResponse](httpClient, baseURL+ListModesProcedure, opts...),
		startFocus:     connect.NewClient[StartFocusRequest, StatusResponse](httpClient, baseURL+StartFocusProcedure, opts...),
		startBreathing: connect.NewClient[StartBreathingRequest, StatusResponse](httpClient, baseURL+StartBreathingProcedure, opts...),
		pause:          connect.NewClient[SessionRequest, StatusResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:         connect.NewClient[SessionRequest, StatusResponse](httpClient, baseURL+ResumeProcedure, opts...),
		reset:          connect.NewClient[SessionRequest, StatusResponse](httpClient, baseURL+ResetProcedure, opts...),
		restart:        connect.NewClient[SessionRequest, StatusResponse](httpClient, baseURL+RestartProcedure, opts...),
		getStatus:      connect.NewClient[SessionRequest, StatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		listSessions:   connect.NewClient[ListSessionsRequest, ListSessionsResponse](httpClient, baseURL+ListSessionsProcedure, opts...),
		close:          connect.NewClient[SessionRequest, CloseResponse](httpClient, baseURL+CloseProcedure, opts...),
		subscribe:      connect.NewClient[SessionRequest, Notification](httpClient, baseURL+SubscribeProcedure, opts...),
		getInsights:    connect.NewClient[GetInsightsRequest, GetInsightsResponse](httpClient, baseURL+GetInsightsProcedure, opts...),
	}
}

// ListModes returns the selectable focus modes.
func (c *Client) ListModes(ctx context.Context) ([]Mode, error) {
	resp, err := c.listModes.CallUnary(ctx, connect.NewRequest(&ListModesRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Modes, nil
}

// StartFocus starts a focus session. durationSec is required for the custom mode.
func (c *Client) StartFocus(ctx context.Context, mode string, durationSec int) (Status, error) {
	return unwrapStatus(c.startFocus.CallUnary(ctx, connect.NewRequest(&StartFocusRequest{Mode: mode, DurationSec: durationSec})))
}

// StartBreathing starts a breathing session. Zero uses the server default duration.
func (c *Client) StartBreathing(ctx context.Context, durationSec int) (Status, error) {
	return unwrapStatus(c.startBreathing.CallUnary(ctx, connect.NewRequest(&StartBreathingRequest{DurationSec: durationSec})))
}

// Pause pauses a session.
func (c *Client) Pause(ctx context.Context, sessionID string) (Status, error) {
	return unwrapStatus(c.pause.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID})))
}

// Resume resumes a session.
func (c *Client) Resume(ctx context.Context, sessionID string) (Status, error) {
	return unwrapStatus(c.resume.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID})))
}

// Reset resets a session.
func (c *Client) Reset(ctx context.Context, sessionID string) (Status, error) {
	return unwrapStatus(c.reset.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID})))
}

// Restart resets a session and starts it again.
func (c *Client) Restart(ctx context.Context, sessionID string) (Status, error) {
	return unwrapStatus(c.restart.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID})))
}

// GetStatus returns the current status of a session.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (Status, error) {
	return unwrapStatus(c.getStatus.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID})))
}

// ListSessions lists the caller's sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	resp, err := c.listSessions.CallUnary(ctx, connect.NewRequest(&ListSessionsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Sessions, nil
}

// Close stops and removes a session.
func (c *Client) Close(ctx context.Context, sessionID string) error {
	_, err := c.close.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID}))
	return err
}

// Subscribe opens the event stream of a session. The caller must close the stream.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (*connect.ServerStreamForClient[Notification], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&SessionRequest{SessionID: sessionID}))
}

// GetInsights returns the caller's stats and insights.
func (c *Client) GetInsights(ctx context.Context) (*GetInsightsResponse, error) {
	resp, err := c.getInsights.CallUnary(ctx, connect.NewRequest(&GetInsightsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func unwrapStatus(resp *connect.Response[StatusResponse], err error) (Status, error) {
	if err != nil {
		return Status{}, err
	}
	return resp.Msg.Status, nil
}
