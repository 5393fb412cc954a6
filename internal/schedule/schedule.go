// Package schedule runs the daily analysis of the configured apps on a cron
// expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/pipeline"
)

// Runner analyzes one app for one target date.
type Runner interface {
	Run(ctx context.Context, appID string, target time.Time) (*pipeline.Result, error)
}

// Outcome is what one scheduled app run produced.
type Outcome struct {
	AppID      string
	Target     string
	ReportPath string
	Err        error
}

// Scheduler triggers Runner for every app once per cron tick. Each tick
// analyzes the previous UTC day, whose reviews are complete.
type Scheduler struct {
	runner Runner
	apps   []string
	expr   string
	cron   *cron.Cron
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

// New validates expr and creates a Scheduler.
func New(runner Runner, expr string, apps []string) (*Scheduler, error) {
	if len(apps) == 0 {
		return nil, errors.New("no apps configured for scheduling (schedule.apps)")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Scheduler{
		runner: runner,
		apps:   apps,
		expr:   expr,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		now:    time.Now,
	}, nil
}

// Start registers the job and starts the cron loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expr, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}
	s.cron.Start()
	logging.Infof("scheduled %d apps (cron: %s, UTC)", len(s.apps), s.expr)
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the next activation time, or zero if not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if next := entries[0].Next; !next.IsZero() {
		return next
	}
	// The cron loop fills in Next asynchronously after Start.
	return entries[0].Schedule.Next(s.now().UTC())
}

// Tick analyzes yesterday for every app, one after another. A tick that
// fires while the previous one is still running is skipped.
func (s *Scheduler) Tick(ctx context.Context) []Outcome {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logging.Warnf("previous scheduled run still in progress, skipping tick")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	target := dates.Day(s.now().UTC()).AddDate(0, 0, -1)
	outcomes := make([]Outcome, 0, len(s.apps))
	for _, appID := range s.apps {
		if ctx.Err() != nil {
			break
		}
		o := Outcome{AppID: appID, Target: dates.FormatDate(target)}
		res, err := s.runner.Run(ctx, appID, target)
		switch {
		case errors.Is(err, database.ErrAppLocked):
			logging.Warnf("skipping %s: %v", appID, err)
		case err != nil:
			logging.Errorf("scheduled run for %s failed: %v", appID, err)
		default:
			o.ReportPath = res.ReportPath
			logging.Infof("scheduled run for %s done (%d days, %d failed)", appID, len(res.Days), res.FailedDays())
		}
		o.Err = err
		outcomes = append(outcomes, o)
	}
	return outcomes
}
