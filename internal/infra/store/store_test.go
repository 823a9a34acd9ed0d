package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/flowshift/internal/domain/focus"
	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/domain/record"
	"github.com/osa030/flowshift/internal/infra/config"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

func newMemoryRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLRepository_CompletedSessions(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sessions := []record.CompletedSession{
		{ID: "s1", UserID: "user-1", Mode: focus.ModePomodoro, DurationSec: 1500, StartedAt: base, CompletedAt: base.Add(25 * time.Minute)},
		{ID: "s2", UserID: "user-1", Mode: focus.ModeDeep, DurationSec: 5400, StartedAt: base.Add(24 * time.Hour), CompletedAt: base.Add(24*time.Hour + 90*time.Minute)},
		{ID: "s3", UserID: "user-2", Mode: focus.ModeMindful, DurationSec: 600, StartedAt: base, CompletedAt: base.Add(10 * time.Minute)},
	}
	for _, s := range sessions {
		require.NoError(t, repo.RecordCompletedSession(ctx, s))
	}

	got, err := repo.CompletedSessions(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s2", got[0].ID)
	assert.Equal(t, focus.ModeDeep, got[0].Mode)
	assert.Equal(t, 5400, got[0].DurationSec)
	assert.True(t, got[0].CompletedAt.Equal(sessions[1].CompletedAt))
	assert.Equal(t, "s1", got[1].ID)

	limited, err := repo.CompletedSessions(ctx, "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := repo.CompletedSessions(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLRepository_RejectsIncompleteRecord(t *testing.T) {
	repo := newMemoryRepo(t)
	err := repo.RecordCompletedSession(context.Background(), record.CompletedSession{ID: "s1"})
	assert.Error(t, err)
}

func TestSQLRepository_DuplicateIDFails(t *testing.T) {
	repo := newMemoryRepo(t)
	s := record.CompletedSession{ID: "s1", UserID: "u", Mode: focus.ModeDeep, DurationSec: 60, StartedAt: time.Now(), CompletedAt: time.Now()}
	require.NoError(t, repo.RecordCompletedSession(context.Background(), s))
	assert.Error(t, repo.RecordCompletedSession(context.Background(), s))
}

func TestSQLRepository_Insights(t *testing.T) {
	repo := newMemoryRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	insert := `INSERT INTO insights (id, user_id, type, title, description, value, trend, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, insert, "i1", "user-1", "suggestion", "Break Reminder", "Take breaks", nil, nil, "#F59E0B", base)
	require.NoError(t, err)
	_, err = repo.db.ExecContext(ctx, insert, "i2", "user-1", "achievement", "Focus Streak!", "3 days", "3 days", "up", "#10B981", base.Add(time.Hour))
	require.NoError(t, err)

	got, err := repo.Insights(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "i2", got[0].ID)
	assert.Equal(t, "up", got[0].Trend)
	assert.Equal(t, record.InsightSuggestion, got[1].Type)
	assert.Empty(t, got[1].Value)
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{dialect: postgresDialect}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLRepository{dialect: sqliteDialect}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpen(t *testing.T) {
	client, err := supabase.New(supabase.Config{URL: "https://example.supabase.co", AnonKey: "anon"})
	require.NoError(t, err)
	user := identity.User("user-1", "")

	tests := []struct {
		name       string
		store      config.StoreConfig
		client     *supabase.Client
		wantDriver string
		wantErr    bool
	}{
		{name: "none", store: config.StoreConfig{Driver: "none"}, wantDriver: "none"},
		{name: "empty driver", store: config.StoreConfig{}, wantDriver: "none"},
		{
			name:       "sqlite",
			store:      config.StoreConfig{Driver: "sqlite", Settings: map[string]any{"dsn": filepath.Join(t.TempDir(), "flowshift.db")}},
			wantDriver: "sqlite",
		},
		{name: "sqlite without dsn", store: config.StoreConfig{Driver: "sqlite"}, wantErr: true},
		{name: "supabase", store: config.StoreConfig{Driver: "supabase"}, client: client, wantDriver: "supabase"},
		{name: "supabase without client", store: config.StoreConfig{Driver: "supabase"}, wantErr: true},
		{name: "unknown", store: config.StoreConfig{Driver: "redis"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := Open(&config.Config{Store: tt.store}, tt.client)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer st.Close()

			assert.Equal(t, tt.wantDriver, st.Driver())
			assert.NotNil(t, st.Scoped(user, supabase.StaticTokenSource("t")))
		})
	}
}

func TestOpen_SupabaseGuestGetsNop(t *testing.T) {
	client, err := supabase.New(supabase.Config{URL: "https://example.supabase.co", AnonKey: "anon"})
	require.NoError(t, err)

	st, err := Open(&config.Config{Store: config.StoreConfig{Driver: "supabase"}}, client)
	require.NoError(t, err)

	assert.Equal(t, Nop{}, st.Scoped(identity.Guest(), nil))
	assert.Equal(t, Nop{}, st.Scoped(identity.User("user-1", ""), nil))
}

func TestOpen_SupabaseServiceKeyRecordsForUser(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, err := supabase.New(supabase.Config{URL: server.URL, AnonKey: "anon", ServiceKey: "service-key"})
	require.NoError(t, err)
	st, err := Open(&config.Config{Store: config.StoreConfig{Driver: "supabase"}}, client)
	require.NoError(t, err)

	assert.Equal(t, Nop{}, st.Scoped(identity.Guest(), nil))

	repo := st.Scoped(identity.User("user-1", ""), supabase.StaticTokenSource("expired-user-token"))
	require.NoError(t, repo.RecordCompletedSession(context.Background(), record.CompletedSession{
		ID:          "s1",
		UserID:      "user-1",
		Mode:        focus.ModeDeep,
		DurationSec: 5400,
	}))
	assert.Equal(t, "Bearer service-key", authorization)
}

func TestDecodeSQLSettings(t *testing.T) {
	settings, err := decodeSQLSettings(map[string]any{"dsn": "postgres://localhost/flowshift", "max_open_conns": "4"})
	require.NoError(t, err)
	assert.Equal(t, 4, settings.MaxOpenConns)
	assert.Equal(t, 300, settings.ConnMaxLifetimeSec)
}
