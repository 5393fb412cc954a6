package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SaveDailyBatch stores the batch for (app, date), replacing any earlier run.
func (db *DB) SaveDailyBatch(b *DailyBatch) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding daily batch: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO daily_batches (app_id, date, document, processed_at)
		VALUES (?, ?, ?, ?)`,
		b.AppID, b.Date, string(doc), formatTime(b.ProcessedAt),
	)
	return err
}

// GetDailyBatch returns the batch for (app, date), or nil if none exists.
func (db *DB) GetDailyBatch(appID, date string) (*DailyBatch, error) {
	var doc string
	err := db.conn.QueryRow(
		"SELECT document FROM daily_batches WHERE app_id = ? AND date = ?", appID, date,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var b DailyBatch
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("decoding daily batch %s/%s: %w", appID, date, err)
	}
	if b.TopicFrequencies == nil {
		b.TopicFrequencies = map[string]int{}
	}
	return &b, nil
}

// SaveDetailedBatch stores the detailed batch for (app, date), replacing any earlier run.
func (db *DB) SaveDetailedBatch(b *DetailedBatch) error {
	doc, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding detailed batch: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO detailed_batches (app_id, date, document, generated_at)
		VALUES (?, ?, ?, ?)`,
		b.AppID, b.Date, string(doc), formatTime(b.GeneratedAt),
	)
	return err
}

// GetDetailedBatch returns the detailed batch for (app, date), or nil if none exists.
func (db *DB) GetDetailedBatch(appID, date string) (*DetailedBatch, error) {
	var doc string
	err := db.conn.QueryRow(
		"SELECT document FROM detailed_batches WHERE app_id = ? AND date = ?", appID, date,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var b DetailedBatch
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return nil, fmt.Errorf("decoding detailed batch %s/%s: %w", appID, date, err)
	}
	return &b, nil
}

// ListApps returns every app with at least one daily batch, by app id.
func (db *DB) ListApps() ([]AppSummary, error) {
	rows, err := db.conn.Query(`
		SELECT b.app_id, COALESCE(a.display_name, ''), COUNT(*), MIN(b.date), MAX(b.date)
		FROM daily_batches b
		LEFT JOIN apps a ON a.app_id = b.app_id
		GROUP BY b.app_id
		ORDER BY b.app_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []AppSummary
	for rows.Next() {
		var s AppSummary
		if err := rows.Scan(&s.AppID, &s.DisplayName, &s.Days, &s.FirstDate, &s.LastDate); err != nil {
			return nil, err
		}
		apps = append(apps, s)
	}
	return apps, rows.Err()
}
