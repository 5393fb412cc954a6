package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetTaxonomy returns the stored taxonomy for an app, or nil if none exists.
func (db *DB) GetTaxonomy(appID string) (*Taxonomy, error) {
	var lastUpdated string
	err := db.conn.QueryRow(
		"SELECT last_updated FROM taxonomies WHERE app_id = ?", appID,
	).Scan(&lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updated, err := parseTime(lastUpdated)
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(
		`SELECT topic_id, topic_name, category, variations, description, added_date, is_seed, app_specific
		FROM topics WHERE app_id = ? ORDER BY position`, appID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tax := &Taxonomy{AppID: appID, LastUpdated: updated}
	for rows.Next() {
		var t TopicDefinition
		var variations string
		var isSeed, appSpecific int
		if err := rows.Scan(&t.TopicID, &t.TopicName, &t.Category, &variations,
			&t.Description, &t.AddedDate, &isSeed, &appSpecific); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(variations), &t.Variations); err != nil {
			t.Variations = nil
		}
		t.IsSeed = isSeed != 0
		t.AppSpecific = appSpecific != 0
		tax.Topics = append(tax.Topics, t)
	}
	return tax, rows.Err()
}

// AppendTopics creates the app's taxonomy if needed and appends every topic
// whose id is not yet registered, in order. Existing entries are never
// touched. Returns the ids that were actually added.
func (db *DB) AppendTopics(appID string, topics []TopicDefinition, now time.Time) ([]string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin topic append: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO taxonomies (app_id, last_updated) VALUES (?, ?)
		ON CONFLICT(app_id) DO UPDATE SET last_updated = excluded.last_updated`,
		appID, formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("touching taxonomy: %w", err)
	}

	var next int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(position), -1) + 1 FROM topics WHERE app_id = ?", appID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("reading topic position: %w", err)
	}

	var added []string
	for _, t := range topics {
		variations, err := json.Marshal(nonNil(t.Variations))
		if err != nil {
			return nil, err
		}
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO topics
			(app_id, topic_id, position, topic_name, category, variations, description, added_date, is_seed, app_specific)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			appID, t.TopicID, next, t.TopicName, t.Category, string(variations),
			t.Description, t.AddedDate, boolInt(t.IsSeed), boolInt(t.AppSpecific),
		)
		if err != nil {
			return nil, fmt.Errorf("inserting topic %s: %w", t.TopicID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			added = append(added, t.TopicID)
			next++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit topic append: %w", err)
	}
	return added, nil
}

// CountTopics returns total and learned (non-seed) topic counts across all apps.
func (db *DB) CountTopics() (total, learned int, err error) {
	err = db.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_seed = 0 THEN 1 ELSE 0 END), 0) FROM topics",
	).Scan(&total, &learned)
	return total, learned, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
