package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/record"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name      string
	driver    string
	schema    string
	numbered  bool // $1 placeholders instead of ?
	singleCon bool
}

// SQLRepository stores sessions and insights in a local SQL database.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

// PoolSettings tunes the connection pool.
type PoolSettings struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func openSQL(d dialect, dsn string, pool PoolSettings) (*SQLRepository, error) {
	if dsn == "" {
		return nil, errors.Newf("%s dsn is required", d.name)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", d.name)
	}

	switch {
	case d.singleCon:
		db.SetMaxOpenConns(1)
	case pool.MaxOpenConns > 0:
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, dialect: d}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	zlog.Info().Msgf("store: opened: driver=%s", d.name)
	return repo, nil
}

func (r *SQLRepository) createTables() error {
	if _, err := r.db.Exec(r.dialect.schema); err != nil {
		return errors.Wrapf(err, "failed to create %s schema", r.dialect.name)
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that number them.
func (r *SQLRepository) rebind(query string) string {
	if !r.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// RecordCompletedSession inserts a completed focus session.
func (r *SQLRepository) RecordCompletedSession(ctx context.Context, session record.CompletedSession) error {
	if session.ID == "" || session.UserID == "" {
		return errors.New("session id and user id are required")
	}

	query := r.rebind(`
		INSERT INTO focus_sessions (id, user_id, mode, duration, completed_duration, started_at, completed_at, is_completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		string(session.Mode),
		session.DurationSec,
		session.DurationSec,
		session.StartedAt.UTC(),
		session.CompletedAt.UTC(),
		true,
		session.CompletedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert focus session: id=%s", session.ID)
	}
	return nil
}

// CompletedSessions returns completed sessions newest first.
func (r *SQLRepository) CompletedSessions(ctx context.Context, userID string, limit int) ([]record.CompletedSession, error) {
	query := `
		SELECT id, user_id, mode, completed_duration, started_at, completed_at
		FROM focus_sessions
		WHERE user_id = ? AND is_completed = ?
		ORDER BY created_at DESC
	`
	args := []any{userID, true}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query focus sessions: user=%s", userID)
	}
	defer rows.Close()

	var sessions []record.CompletedSession
	for rows.Next() {
		var s record.CompletedSession
		var mode string
		if err := rows.Scan(&s.ID, &s.UserID, &mode, &s.DurationSec, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan focus session")
		}
		s.Mode = focus.Mode(mode)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Insights returns the latest insights newest first.
func (r *SQLRepository) Insights(ctx context.Context, userID string, limit int) ([]record.Insight, error) {
	query := `
		SELECT id, user_id, type, title, description, value, trend, color, created_at
		FROM insights
		WHERE user_id = ?
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query insights: user=%s", userID)
	}
	defer rows.Close()

	var insights []record.Insight
	for rows.Next() {
		var in record.Insight
		var kind string
		var value, trend sql.NullString
		if err := rows.Scan(&in.ID, &in.UserID, &kind, &in.Title, &in.Description, &value, &trend, &in.Color, &in.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan insight")
		}
		in.Type = record.InsightType(kind)
		in.Value = value.String
		in.Trend = trend.String
		insights = append(insights, in)
	}
	return insights, rows.Err()
}

// Close closes the database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
