package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS reviews (
    app_id TEXT NOT NULL,
    review_id TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    rating INTEGER NOT NULL DEFAULT 0,
    reviewed_at TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    helpful_count INTEGER NOT NULL DEFAULT 0,
    app_version TEXT,
    reply_content TEXT,
    replied_at TEXT,
    PRIMARY KEY (app_id, review_id)
);

CREATE TABLE IF NOT EXISTS taxonomies (
    app_id TEXT PRIMARY KEY,
    last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS topics (
    app_id TEXT NOT NULL REFERENCES taxonomies(app_id),
    topic_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    topic_name TEXT NOT NULL,
    category TEXT NOT NULL CHECK(category IN ('issue', 'request')),
    variations TEXT NOT NULL DEFAULT '[]',
    description TEXT NOT NULL DEFAULT '',
    added_date TEXT NOT NULL,
    is_seed INTEGER NOT NULL DEFAULT 0,
    app_specific INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (app_id, topic_id)
);

CREATE TABLE IF NOT EXISTS daily_batches (
    app_id TEXT NOT NULL,
    date TEXT NOT NULL,
    document TEXT NOT NULL,
    processed_at TEXT NOT NULL,
    PRIMARY KEY (app_id, date)
);

CREATE TABLE IF NOT EXISTS detailed_batches (
    app_id TEXT NOT NULL,
    date TEXT NOT NULL,
    document TEXT NOT NULL,
    generated_at TEXT NOT NULL,
    PRIMARY KEY (app_id, date)
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT UNIQUE NOT NULL,
    app_id TEXT NOT NULL,
    target_date TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    days_processed INTEGER DEFAULT 0,
    days_failed INTEGER DEFAULT 0,
    report_path TEXT
);

CREATE TABLE IF NOT EXISTS apps (
    app_id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_locks (
    app_id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    acquired_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reviews_app_time ON reviews(app_id, reviewed_at);
CREATE INDEX IF NOT EXISTS idx_topics_app_position ON topics(app_id, position);
CREATE INDEX IF NOT EXISTS idx_run_reports_app ON run_reports(app_id, target_date);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
