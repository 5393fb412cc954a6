// Package reviews manages the per-app review store: the deduplicated,
// newest-first set of every review fetched so far.
package reviews

import (
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
)

// Review is the stored review record.
type Review = database.Review

// Store persists review sets per app.
type Store struct {
	db *database.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Exists reports whether the app has a non-empty store.
func (s *Store) Exists(appID string) (bool, error) {
	return s.db.HasReviews(appID)
}

// Load returns every stored review for the app, newest first. An app without
// a store yields an empty slice.
func (s *Store) Load(appID string) ([]Review, error) {
	rs, err := s.db.GetReviews(appID)
	if err != nil {
		return nil, fmt.Errorf("loading reviews for %s: %w", appID, err)
	}
	if rs == nil {
		rs = []Review{}
	}
	return rs, nil
}

// Save overwrites the app's store with reviews.
func (s *Store) Save(appID string, reviews []Review) error {
	if err := s.db.ReplaceReviews(appID, reviews); err != nil {
		return fmt.Errorf("saving reviews for %s: %w", appID, err)
	}
	return nil
}

// Merge combines the stored set with freshly fetched reviews. On an id
// collision the incoming copy wins. The result is sorted newest first, ties
// broken by id.
func Merge(existing, incoming []Review) []Review {
	index := make(map[string]int, len(existing)+len(incoming))
	merged := make([]Review, 0, len(existing)+len(incoming))

	add := func(r Review) {
		if i, ok := index[r.ID]; ok {
			merged[i] = r
			return
		}
		index[r.ID] = len(merged)
		merged = append(merged, r)
	}
	for _, r := range existing {
		add(r)
	}
	for _, r := range incoming {
		add(r)
	}

	SortNewestFirst(merged)
	return merged
}

// SortNewestFirst orders reviews by timestamp descending, then id ascending.
func SortNewestFirst(rs []Review) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].At.Equal(rs[j].At) {
			return rs[i].At.After(rs[j].At)
		}
		return rs[i].ID < rs[j].ID
	})
}

// FilterByDate keeps the reviews whose UTC calendar date lies in
// [start, end]. Order is preserved.
func FilterByDate(rs []Review, start, end time.Time) []Review {
	lo, hi := dates.Day(start), dates.Day(end)
	out := []Review{}
	for _, r := range rs {
		d := dates.Day(r.At)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ForDate keeps the reviews written on day.
func ForDate(rs []Review, day time.Time) []Review {
	return FilterByDate(rs, day, day)
}

// CoveredRange returns the oldest and newest review dates in rs.
func CoveredRange(rs []Review) (min, max time.Time, ok bool) {
	if len(rs) == 0 {
		return time.Time{}, time.Time{}, false
	}
	min, max = dates.Day(rs[0].At), dates.Day(rs[0].At)
	for _, r := range rs[1:] {
		d := dates.Day(r.At)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return min, max, true
}
