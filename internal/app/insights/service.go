package insights

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/domain/record"
	"github.com/osa030/flowshift/internal/infra/store"
)

const defaultInsightLimit = 10

// Report is what the insights screen shows.
type Report struct {
	Stats    record.Stats
	Insights []record.Insight
	Sample   bool // Insights are placeholders, not the user's own data
}

// Service builds reports from a store.
type Service struct {
	store store.Store
	limit int
	now   func() time.Time
	loc   *time.Location
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the current time and the zone used for day boundaries.
func WithClock(now func() time.Time, loc *time.Location) Option {
	return func(s *Service) {
		s.now = now
		s.loc = loc
	}
}

// NewService creates a new insights service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		limit: defaultInsightLimit,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report returns stats and insights for owner. Guests get sample insights and empty stats.
// Backend failures while reading insights fall back to samples; failures reading sessions are returned.
func (s *Service) Report(ctx context.Context, owner identity.Identity, tokens oauth2.TokenSource) (*Report, error) {
	if !owner.IsAuthenticated() {
		return &Report{Insights: SampleInsights(), Sample: true}, nil
	}

	repo := s.store.Scoped(owner, tokens)
	now := s.now()

	sessions, err := repo.CompletedSessions(ctx, owner.UserID, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load sessions")
	}
	stats := ComputeStats(sessions, now, s.loc)

	report := &Report{Stats: stats}

	stored, err := repo.Insights(ctx, owner.UserID, s.limit)
	switch {
	case err != nil:
		zlog.Warn().Err(err).Msgf("insights: falling back to samples: user=%s", owner.UserID)
		report.Insights = SampleInsights()
		report.Sample = true
	case len(stored) > 0:
		report.Insights = stored
	default:
		report.Insights = Derive(owner.UserID, sessions, stats, now, s.loc)
		if len(report.Insights) == 0 {
			report.Insights = SampleInsights()
			report.Sample = true
		}
	}

	zlog.Debug().Msgf("insights: report built: user=%s sessions=%d insights=%d sample=%t",
		owner.UserID, stats.SessionsCompleted, len(report.Insights), report.Sample)
	return report, nil
}
