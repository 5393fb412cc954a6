package database

import (
	"database/sql"
	"fmt"
)

// HasReviews reports whether any review is stored for the app.
func (db *DB) HasReviews(appID string) (bool, error) {
	var n int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM (SELECT 1 FROM reviews WHERE app_id = ? LIMIT 1)", appID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetReviews returns all stored reviews for an app, newest first.
func (db *DB) GetReviews(appID string) ([]Review, error) {
	rows, err := db.conn.Query(
		`SELECT review_id, author, rating, reviewed_at, content, helpful_count,
		app_version, reply_content, replied_at
		FROM reviews WHERE app_id = ? ORDER BY reviewed_at DESC, review_id`, appID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

// ReplaceReviews overwrites the app's stored reviews with the given set in a
// single transaction. Callers pass the already-merged set.
func (db *DB) ReplaceReviews(appID string, reviews []Review) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin review replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM reviews WHERE app_id = ?", appID); err != nil {
		return fmt.Errorf("clearing reviews: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO reviews
		(app_id, review_id, author, rating, reviewed_at, content, helpful_count,
		app_version, reply_content, replied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing review insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range reviews {
		if _, err := stmt.Exec(appID, r.ID, r.Author, r.Rating, formatTime(r.At), r.Content,
			r.HelpfulCount, r.AppVersion, r.ReplyContent, nullableTime(r.RepliedAt)); err != nil {
			return fmt.Errorf("inserting review %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// CountReviews returns the number of stored reviews for an app.
func (db *DB) CountReviews(appID string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM reviews WHERE app_id = ?", appID).Scan(&n)
	return n, err
}

func scanReviews(rows *sql.Rows) ([]Review, error) {
	var reviews []Review
	for rows.Next() {
		var r Review
		var at string
		var repliedAt *string
		if err := rows.Scan(&r.ID, &r.Author, &r.Rating, &at, &r.Content, &r.HelpfulCount,
			&r.AppVersion, &r.ReplyContent, &repliedAt); err != nil {
			return nil, err
		}
		t, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		r.At = t
		if repliedAt != nil {
			rt, err := parseTime(*repliedAt)
			if err != nil {
				return nil, err
			}
			r.RepliedAt = &rt
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
