package store

import (
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name:      "sqlite",
	driver:    "sqlite3",
	singleCon: true,
	schema: `
	CREATE TABLE IF NOT EXISTS focus_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		duration INTEGER NOT NULL,
		completed_duration INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		is_completed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_focus_sessions_user ON focus_sessions(user_id, created_at);

	CREATE TABLE IF NOT EXISTS insights (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		value TEXT,
		trend TEXT,
		color TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_insights_user ON insights(user_id, created_at);
	`,
}

// NewSQLiteRepository opens (and migrates) a SQLite database.
func NewSQLiteRepository(dsn string) (*SQLRepository, error) {
	return openSQL(sqliteDialect, dsn, PoolSettings{})
}
