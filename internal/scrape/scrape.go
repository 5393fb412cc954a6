// Package scrape decides, per run, whether the review window can be served
// from the local store or needs a (full or incremental) fetch.
package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/reviews"
)

// Fetcher retrieves reviews dated within [cutoff, reference], newest first.
type Fetcher interface {
	Fetch(ctx context.Context, appID string, reference, cutoff time.Time) ([]database.Review, error)
}

// Store is the review store the scraper reads and grows.
type Store interface {
	Load(appID string) ([]database.Review, error)
	Save(appID string, reviews []database.Review) error
}

// Decision records which branch served a window.
type Decision string

const (
	Full           Decision = "full"
	Cached         Decision = "cached"
	Incremental    Decision = "incremental"
	PartialHistory Decision = "partial_history"
	Fallback       Decision = "fallback"
)

// Result is the outcome of a smart scrape.
type Result struct {
	Reviews  []database.Review
	Decision Decision
	// Incomplete is set when the store cannot cover the start of the window
	// or the first fetch failed.
	Incomplete bool
	Fetched    int
	Start      time.Time
	End        time.Time
}

// Scraper implements the cache-aware scrape policy.
type Scraper struct {
	store   Store
	fetcher Fetcher
}

// New creates a Scraper.
func New(store Store, fetcher Fetcher) *Scraper {
	return &Scraper{store: store, fetcher: fetcher}
}

// Scrape returns the reviews for the window ending at target, fetching only
// what the store is missing.
func (s *Scraper) Scrape(ctx context.Context, appID string, target time.Time, lookbackDays int) (*Result, error) {
	start, end := dates.WindowFor(target, lookbackDays)
	res := &Result{Start: start, End: end}

	stored, err := s.store.Load(appID)
	if err != nil {
		return nil, err
	}

	storeMin, storeMax, ok := reviews.CoveredRange(stored)
	if !ok {
		logging.Infof("no stored reviews for %s, fetching %s..%s", appID, dates.FormatDate(start), dates.FormatDate(end))
		fetched, err := s.fetcher.Fetch(ctx, appID, end, start)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetching reviews for %s: %w", appID, err)
			}
			logging.Warnf("fetching reviews for %s failed, continuing with %d reviews: %v", appID, len(fetched), err)
			res.Incomplete = true
		}
		merged := reviews.Merge(nil, fetched)
		if len(merged) > 0 {
			if err := s.store.Save(appID, merged); err != nil {
				return nil, err
			}
		}
		res.Decision = Full
		res.Fetched = len(fetched)
		res.Reviews = reviews.FilterByDate(merged, start, end)
		return res, nil
	}

	logging.Debugf("store for %s covers %s..%s", appID, dates.FormatDate(storeMin), dates.FormatDate(storeMax))

	switch {
	case !start.Before(storeMin) && !end.After(storeMax):
		res.Decision = Cached
		res.Reviews = reviews.FilterByDate(stored, start, end)
		logging.Infof("serving %s..%s for %s from store (%d reviews)",
			dates.FormatDate(start), dates.FormatDate(end), appID, len(res.Reviews))

	case end.After(storeMax):
		res.Decision = Incremental
		logging.Infof("fetching new reviews for %s from %s to %s",
			appID, dates.FormatDate(storeMax), dates.FormatDate(end))
		fetched, err := s.fetcher.Fetch(ctx, appID, end, storeMax)
		if err != nil {
			logging.Warnf("incremental fetch for %s failed, serving stored reviews: %v", appID, err)
			res.Reviews = reviews.FilterByDate(stored, start, end)
			break
		}
		merged := reviews.Merge(stored, fetched)
		if err := s.store.Save(appID, merged); err != nil {
			return nil, err
		}
		res.Fetched = len(fetched)
		res.Reviews = reviews.FilterByDate(merged, start, end)
		if start.Before(storeMin) {
			res.Incomplete = true
			logging.Warnf("window for %s starts at %s, before stored history (%s)",
				appID, dates.FormatDate(start), dates.FormatDate(storeMin))
		}

	case start.Before(storeMin):
		res.Decision = PartialHistory
		res.Incomplete = true
		res.Reviews = reviews.FilterByDate(stored, start, end)
		logging.Warnf("window for %s starts at %s, before stored history (%s); returning %d reviews from the overlap",
			appID, dates.FormatDate(start), dates.FormatDate(storeMin), len(res.Reviews))

	default:
		res.Decision = Fallback
		res.Reviews = reviews.FilterByDate(stored, start, end)
	}

	return res, nil
}
