package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAppLocked is returned when another run already holds an app's lock.
var ErrAppLocked = errors.New("app is locked by another run")

// AcquireAppLock takes the single-writer lock for an app. A lock older than
// ttl is considered abandoned and is taken over.
func (db *DB) AcquireAppLock(appID, owner string, ttl time.Duration, now time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin lock: %w", err)
	}
	defer tx.Rollback()

	var holder, acquired string
	err = tx.QueryRow(
		"SELECT owner, acquired_at FROM app_locks WHERE app_id = ?", appID,
	).Scan(&holder, &acquired)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		at, perr := parseTime(acquired)
		if perr == nil && now.Sub(at) < ttl && holder != owner {
			return fmt.Errorf("%s held by run %s since %s: %w", appID, holder, acquired, ErrAppLocked)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO app_locks (app_id, owner, acquired_at) VALUES (?, ?, ?)",
		appID, owner, formatTime(now),
	); err != nil {
		return fmt.Errorf("writing lock: %w", err)
	}
	return tx.Commit()
}

// ReleaseAppLock drops the lock if the owner still holds it.
func (db *DB) ReleaseAppLock(appID, owner string) error {
	_, err := db.conn.Exec("DELETE FROM app_locks WHERE app_id = ? AND owner = ?", appID, owner)
	return err
}

// InsertRun records the start of a pipeline run.
func (db *DB) InsertRun(runID, appID, targetDate string, startedAt time.Time) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO run_reports (run_id, app_id, target_date, started_at) VALUES (?, ?, ?, ?)`,
		runID, appID, targetDate, formatTime(startedAt),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishRun records the outcome of a pipeline run.
func (db *DB) FinishRun(runID string, finishedAt time.Time, processed, failed int, reportPath *string) error {
	_, err := db.conn.Exec(
		`UPDATE run_reports SET finished_at = ?, days_processed = ?, days_failed = ?, report_path = ?
		WHERE run_id = ?`,
		formatTime(finishedAt), processed, failed, reportPath, runID,
	)
	return err
}

// GetRecentRuns returns the latest runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, app_id, target_date, started_at, finished_at, days_processed, days_failed, report_path
		FROM run_reports ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunReport
	for rows.Next() {
		var r RunReport
		var started string
		var finished *string
		if err := rows.Scan(&r.ID, &r.RunID, &r.AppID, &r.TargetDate, &started, &finished,
			&r.DaysProcessed, &r.DaysFailed, &r.ReportPath); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished != nil {
			t, err := parseTime(*finished)
			if err != nil {
				return nil, err
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastTargetDate returns the latest target date analysed for an app.
// Returns empty string if the app was never run.
func (db *DB) GetLastTargetDate(appID string) (string, error) {
	var date string
	err := db.conn.QueryRow(
		"SELECT target_date FROM run_reports WHERE app_id = ? ORDER BY target_date DESC LIMIT 1", appID,
	).Scan(&date)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return date, err
}

// UpsertAppInfo caches the listing metadata for an app.
func (db *DB) UpsertAppInfo(info AppInfo) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO apps (app_id, display_name, updated_at) VALUES (?, ?, ?)",
		info.AppID, info.DisplayName, formatTime(info.UpdatedAt),
	)
	return err
}

// GetAppInfo returns cached listing metadata, or nil when unknown.
func (db *DB) GetAppInfo(appID string) (*AppInfo, error) {
	var info AppInfo
	var updated string
	err := db.conn.QueryRow(
		"SELECT app_id, display_name, updated_at FROM apps WHERE app_id = ?", appID,
	).Scan(&info.AppID, &info.DisplayName, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(DISTINCT app_id) FROM reviews", &s.Apps},
		{"SELECT COUNT(*) FROM reviews", &s.TotalReviews},
		{"SELECT COUNT(*) FROM daily_batches", &s.DailyBatches},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var err error
	s.Topics, s.LearnedTopics, err = db.CountTopics()
	if err != nil {
		return nil, err
	}
	return s, nil
}
