package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/record"
)

// focusSessionRow is a row of the focus_sessions table.
type focusSessionRow struct {
	ID                string     `json:"id,omitempty"`
	UserID            string     `json:"user_id"`
	Mode              string     `json:"mode"`
	Duration          int        `json:"duration"`
	CompletedDuration int        `json:"completed_duration"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	IsCompleted       bool       `json:"is_completed"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

func (r focusSessionRow) toRecord() record.CompletedSession {
	s := record.CompletedSession{
		ID:          r.ID,
		UserID:      r.UserID,
		Mode:        focus.Mode(r.Mode),
		DurationSec: r.CompletedDuration,
		StartedAt:   r.StartedAt,
	}
	if s.DurationSec == 0 {
		s.DurationSec = r.Duration
	}
	switch {
	case r.CompletedAt != nil:
		s.CompletedAt = *r.CompletedAt
	case r.CreatedAt != nil:
		s.CompletedAt = *r.CreatedAt
	}
	return s
}

// Repository reads and writes a user's rows with that user's access token,
// so row level security applies.
type Repository struct {
	client     *Client
	httpClient *http.Client
}

// Repository returns a repository authorised by tokens.
func (c *Client) Repository(tokens oauth2.TokenSource) *Repository {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &Repository{
		client: c,
		httpClient: &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: &oauth2.Transport{Source: tokens, Base: base},
		},
	}
}

// RecordCompletedSession inserts a completed focus session.
// The insert is sent once; a row with the same id is ignored.
func (r *Repository) RecordCompletedSession(ctx context.Context, session record.CompletedSession) error {
	if session.UserID == "" {
		return errors.New("user id is required")
	}
	completedAt := session.CompletedAt
	row := focusSessionRow{
		ID:                session.ID,
		UserID:            session.UserID,
		Mode:              string(session.Mode),
		Duration:          session.DurationSec,
		CompletedDuration: session.DurationSec,
		StartedAt:         session.StartedAt.UTC(),
		CompletedAt:       &completedAt,
		IsCompleted:       true,
	}

	err := r.client.do(ctx, r.httpClient, request{
		method:  http.MethodPost,
		path:    "/rest/v1/focus_sessions",
		body:    row,
		headers: map[string]string{"Prefer": "return=minimal,resolution=ignore-duplicates"},
	}, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to insert focus session: user=%s", session.UserID)
	}
	return nil
}

// CompletedSessions returns the user's completed sessions, newest first.
// A limit of zero or less returns all of them.
func (r *Repository) CompletedSessions(ctx context.Context, userID string, limit int) ([]record.CompletedSession, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("is_completed", "eq.true")
	query.Set("order", "created_at.desc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var rows []focusSessionRow
	err := r.client.do(ctx, r.httpClient, request{
		method: http.MethodGet,
		path:   "/rest/v1/focus_sessions",
		query:  query,
	}, &rows)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list focus sessions: user=%s", userID)
	}

	sessions := make([]record.CompletedSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toRecord())
	}
	return sessions, nil
}

// Insights returns the user's latest insights.
func (r *Repository) Insights(ctx context.Context, userID string, limit int) ([]record.Insight, error) {
	query := url.Values{}
	query.Set("select", "*")
	query.Set("user_id", "eq."+userID)
	query.Set("order", "created_at.desc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var insights []record.Insight
	err := r.client.do(ctx, r.httpClient, request{
		method: http.MethodGet,
		path:   "/rest/v1/insights",
		query:  query,
	}, &insights)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list insights: user=%s", userID)
	}
	return insights, nil
}

// Close releases nothing; the HTTP client is shared.
func (r *Repository) Close() error {
	return nil
}
