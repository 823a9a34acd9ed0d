// Package store provides the persistence backends for completed sessions and insights.
package store

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/domain/record"
)

// Repository persists a user's completed sessions and reads back their history.
// It satisfies timer.Recorder.
type Repository interface {
	RecordCompletedSession(ctx context.Context, session record.CompletedSession) error

	// CompletedSessions returns completed sessions newest first; limit <= 0 means all.
	CompletedSessions(ctx context.Context, userID string, limit int) ([]record.CompletedSession, error)

	// Insights returns the latest insights newest first.
	Insights(ctx context.Context, userID string, limit int) ([]record.Insight, error)

	Close() error
}

// Store hands out repositories scoped to a caller.
// Local SQL stores ignore the tokens; the hosted backend needs them for row level security.
type Store interface {
	Scoped(owner identity.Identity, tokens oauth2.TokenSource) Repository
	Driver() string
	Close() error
}

// shared is a Store whose repository serves every caller.
type shared struct {
	driver string
	repo   Repository
}

func (s *shared) Scoped(identity.Identity, oauth2.TokenSource) Repository {
	return s.repo
}

func (s *shared) Driver() string {
	return s.driver
}

func (s *shared) Close() error {
	return s.repo.Close()
}

// Nop discards records and has no history.
type Nop struct{}

func (Nop) RecordCompletedSession(context.Context, record.CompletedSession) error { return nil }

func (Nop) CompletedSessions(context.Context, string, int) ([]record.CompletedSession, error) {
	return nil, nil
}

func (Nop) Insights(context.Context, string, int) ([]record.Insight, error) { return nil, nil }

func (Nop) Close() error { return nil }
