package collect

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

// PageSource yields one page of reviews at a time, newest first.
type PageSource interface {
	Page(ctx context.Context, appID string, page int) ([]database.Review, error)
}

// FetcherOptions tunes a PagedFetcher.
type FetcherOptions struct {
	MaxPages   int
	PageDelay  time.Duration
	Retries    int
	RetryDelay time.Duration
}

// PagedFetcher walks a PageSource until it passes the cutoff date.
type PagedFetcher struct {
	source     PageSource
	maxPages   int
	retries    int
	retryDelay time.Duration
	limiter    *rate.Limiter
}

// NewPagedFetcher creates a fetcher over source.
func NewPagedFetcher(source PageSource, opts FetcherOptions) *PagedFetcher {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}
	return &PagedFetcher{
		source:     source,
		maxPages:   opts.MaxPages,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// Fetch returns the reviews dated within [cutoff, reference], newest first.
// Reviews after the reference date are skipped; the walk stops at the first
// review dated before the cutoff. If a page keeps failing, whatever was
// gathered before it is returned. The error is only surfaced when nothing
// could be fetched at all.
func (f *PagedFetcher) Fetch(ctx context.Context, appID string, reference, cutoff time.Time) ([]database.Review, error) {
	ref, cut := dates.Day(reference), dates.Day(cutoff)
	var kept []database.Review

	for page := 1; page <= f.maxPages; page++ {
		batch, err := f.pageWithRetry(ctx, appID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			logging.Errorf("review feed for %s failed at page %d, keeping %d reviews: %v", appID, page, len(kept), err)
			return kept, nil
		}
		if len(batch) == 0 {
			break
		}

		for _, r := range batch {
			d := dates.Day(r.At)
			if d.After(ref) {
				continue
			}
			if d.Before(cut) {
				logging.Debugf("reached cutoff %s on page %d for %s", dates.FormatDate(cut), page, appID)
				return kept, nil
			}
			kept = append(kept, r)
		}
	}

	return kept, nil
}

func (f *PagedFetcher) pageWithRetry(ctx context.Context, appID string, page int) ([]database.Review, error) {
	delay := f.retryDelay
	var lastErr error

	for attempt := 1; attempt <= f.retries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		batch, err := f.source.Page(ctx, appID, page)
		if err == nil {
			return batch, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == f.retries {
			break
		}

		logging.Warnf("review page %d for %s failed (attempt %d/%d), retrying in %s: %v",
			page, appID, attempt, f.retries, delay, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("page %d after %d attempts: %w", page, f.retries, lastErr)
}
