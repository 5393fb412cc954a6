package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/reviewtrends/internal/logging"
)

// RetryOptions tunes a RetryProvider.
type RetryOptions struct {
	Attempts          int
	BaseDelay         time.Duration
	Timeout           time.Duration
	RequestsPerMinute int
}

// RetryProvider wraps a Provider with pacing, a per-call timeout and
// exponential backoff between attempts.
type RetryProvider struct {
	inner     Provider
	attempts  int
	baseDelay time.Duration
	timeout   time.Duration
	limiter   *rate.Limiter
}

// WithRetry wraps p.
func WithRetry(p Provider, opts RetryOptions) *RetryProvider {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &RetryProvider{
		inner:     p,
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		timeout:   opts.Timeout,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Name identifies the wrapped provider.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// IsConfigured reports whether the wrapped provider is usable.
func (r *RetryProvider) IsConfigured() bool { return r.inner.IsConfigured() }

// Generate calls the wrapped provider until it succeeds or attempts run out.
// Attempt n waits BaseDelay * 2^(n-1) before retrying.
func (r *RetryProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	delay := r.baseDelay
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait: %w", err)
		}

		out, err := r.call(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == r.attempts {
			break
		}

		logging.Warnf("%s call failed (attempt %d/%d), retrying in %s: %v", r.inner.Name(), attempt, r.attempts, delay, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", fmt.Errorf("%s failed after %d attempts: %w", r.inner.Name(), r.attempts, lastErr)
}

func (r *RetryProvider) call(ctx context.Context, system, prompt string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.inner.Generate(ctx, system, prompt)
}
