package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/reviewtrends/internal/collect"
	"github.com/TobiSchelling/reviewtrends/internal/config"
	"github.com/TobiSchelling/reviewtrends/internal/consolidate"
	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/export"
	"github.com/TobiSchelling/reviewtrends/internal/llm"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/oracle"
	"github.com/TobiSchelling/reviewtrends/internal/report"
	"github.com/TobiSchelling/reviewtrends/internal/reviews"
	"github.com/TobiSchelling/reviewtrends/internal/scrape"
	"github.com/TobiSchelling/reviewtrends/internal/taxonomy"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// DayResult is the outcome of processing one date of the window.
type DayResult struct {
	Date      string
	Reviews   int
	Mentions  int
	NewTopics []string
	Err       error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID      string
	AppID      string
	Target     string
	Steps      []StepResult
	Days       []DayResult
	Scrape     *scrape.Result
	Report     *report.Report
	ReportPath string
}

// FailedDays counts days whose processing failed.
func (r *Result) FailedDays() int {
	n := 0
	for _, d := range r.Days {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// TitleResolver looks up an app's display name.
type TitleResolver interface {
	Title(ctx context.Context, appID string) (string, error)
}

// Deps are the pipeline's external collaborators.
type Deps struct {
	Fetcher scrape.Fetcher
	Oracle  oracle.Oracle
	// Titles is optional.
	Titles TitleResolver
}

// Pipeline runs the analysis for one app and target date.
type Pipeline struct {
	cfg          *config.Config
	db           *database.DB
	scraper      *scrape.Scraper
	oracle       oracle.Oracle
	taxonomies   *taxonomy.Store
	consolidator *consolidate.Consolidator
	exporter     *export.Writer
	reports      *report.Builder
	titles       TitleResolver
	now          func() time.Time
}

// New creates a pipeline wired to the configured store feed and LLM provider.
func New(cfg *config.Config, db *database.DB) (*Pipeline, error) {
	o, err := NewOracle(cfg)
	if err != nil {
		return nil, err
	}
	deps := Deps{Fetcher: NewFetcher(cfg), Oracle: o}
	if cfg.Source.ResolveNames {
		deps.Titles = collect.NewListingClient(cfg.Source.ListingURL, cfg.Source.Country, cfg.Source.Timeout)
	}
	return NewWithDeps(cfg, db, deps), nil
}

// NewWithDeps creates a pipeline around the given collaborators.
func NewWithDeps(cfg *config.Config, db *database.DB, deps Deps) *Pipeline {
	a := cfg.Analysis
	tax := taxonomy.NewStore(db)
	return &Pipeline{
		cfg:          cfg,
		db:           db,
		scraper:      scrape.New(reviews.NewStore(db), deps.Fetcher),
		oracle:       deps.Oracle,
		taxonomies:   tax,
		consolidator: consolidate.New(deps.Oracle, tax, db, a.MinTopicOccurrences, a.ConfidenceThreshold),
		exporter:     export.NewWriter(cfg.GetDataDir()),
		reports:      report.NewBuilder(db, a.LookbackDays),
		titles:       deps.Titles,
		now:          time.Now,
	}
}

// NewFetcher builds the paged App Store feed fetcher.
func NewFetcher(cfg *config.Config) *collect.PagedFetcher {
	s := cfg.Source
	feed := collect.NewAppStoreFeed(s.FeedURL, s.Country, s.Timeout)
	return collect.NewPagedFetcher(feed, collect.FetcherOptions{
		MaxPages:  s.Pages,
		PageDelay: s.PageDelay,
	})
}

// NewScraper builds a scraper over the database without an LLM.
func NewScraper(cfg *config.Config, db *database.DB) *scrape.Scraper {
	return scrape.New(reviews.NewStore(db), NewFetcher(cfg))
}

// NewOracle builds the LLM-backed oracle with retries and pacing.
func NewOracle(cfg *config.Config) (*oracle.LLMOracle, error) {
	l := cfg.LLM
	provider, err := llm.CreateProvider(llm.Settings{
		Provider:    l.Provider,
		Model:       l.Model,
		BaseURL:     l.BaseURL,
		APIKey:      cfg.APIKey(),
		MaxTokens:   l.MaxTokens,
		Temperature: l.Temperature,
		Timeout:     l.Timeout,
	})
	if err != nil {
		return nil, err
	}

	wrapped := llm.WithRetry(provider, llm.RetryOptions{
		Attempts:          l.MaxRetries,
		BaseDelay:         l.RetryBaseDelay,
		Timeout:           l.Timeout,
		RequestsPerMinute: l.RequestsPerMinute,
	})

	a := cfg.Analysis
	return oracle.NewLLM(wrapped, oracle.Options{
		ExtractionBatchSize: a.ExtractionBatchSize,
		MappingBatchSize:    a.MappingBatchSize,
		Workers:             a.Workers,
		ConfidenceThreshold: a.ConfidenceThreshold,
		CacheSize:           a.MappingCacheSize,
		ValidationContext:   a.ValidationContext,
	})
}

// Run analyzes every day of the window ending at target and writes the
// trend report. Failures of a single day are recorded and do not stop the
// run; failing to obtain the lock, the reviews or the taxonomy does.
func (p *Pipeline) Run(ctx context.Context, appID string, target time.Time) (*Result, error) {
	target = dates.Day(target)
	r := &Result{RunID: uuid.NewString(), AppID: appID, Target: dates.FormatDate(target)}

	if err := p.db.AcquireAppLock(appID, r.RunID, p.cfg.LockTTL, p.now().UTC()); err != nil {
		return nil, err
	}
	defer func() {
		if err := p.db.ReleaseAppLock(appID, r.RunID); err != nil {
			logging.Warnf("releasing lock for %s: %v", appID, err)
		}
	}()

	if _, err := p.db.InsertRun(r.RunID, appID, r.Target, p.now().UTC()); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	logging.Infof("run %s: analyzing %s for %s", r.RunID, appID, r.Target)

	err := p.run(ctx, r, target)

	var reportPath *string
	if r.ReportPath != "" {
		reportPath = &r.ReportPath
	}
	if ferr := p.db.FinishRun(r.RunID, p.now().UTC(), len(r.Days)-r.FailedDays(), r.FailedDays(), reportPath); ferr != nil {
		logging.Warnf("recording run outcome: %v", ferr)
	}
	return r, err
}

func (p *Pipeline) run(ctx context.Context, r *Result, target time.Time) error {
	if p.titles != nil {
		r.Steps = append(r.Steps, p.runResolve(ctx, r.AppID))
	}

	step, scraped := p.runScrape(ctx, r.AppID, target)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return step.Err
	}
	r.Scrape = scraped

	if _, err := p.taxonomies.Load(r.AppID); err != nil {
		return fmt.Errorf("loading taxonomy: %w", err)
	}

	step = p.runDays(ctx, r, scraped)
	r.Steps = append(r.Steps, step)
	if err := ctx.Err(); err != nil {
		return err
	}

	step = p.runExportTaxonomy(r.AppID)
	r.Steps = append(r.Steps, step)

	step = p.runReport(r, target)
	r.Steps = append(r.Steps, step)
	return step.Err
}

func (p *Pipeline) runResolve(ctx context.Context, appID string) StepResult {
	logging.Infof("Resolving app name...")
	title, err := p.titles.Title(ctx, appID)
	if err != nil {
		logging.Warnf("could not resolve name of %s: %v", appID, err)
		return StepResult{Name: "Resolve", Err: err}
	}
	if err := p.db.UpsertAppInfo(database.AppInfo{AppID: appID, DisplayName: title, UpdatedAt: p.now().UTC()}); err != nil {
		return StepResult{Name: "Resolve", Err: err}
	}
	return StepResult{Name: "Resolve", Summary: fmt.Sprintf("App name: %s", title)}
}

func (p *Pipeline) runScrape(ctx context.Context, appID string, target time.Time) (StepResult, *scrape.Result) {
	logging.Infof("Step 1/3: Loading reviews...")
	res, err := p.scraper.Scrape(ctx, appID, target, p.cfg.Analysis.LookbackDays)
	if err != nil {
		return StepResult{Name: "Scrape", Err: err}, nil
	}
	summary := fmt.Sprintf("%d reviews in window (%s, %d fetched)", len(res.Reviews), res.Decision, res.Fetched)
	if res.Incomplete {
		summary += ", history incomplete"
	}
	return StepResult{Name: "Scrape", Summary: summary}, res
}

func (p *Pipeline) runDays(ctx context.Context, r *Result, scraped *scrape.Result) StepResult {
	logging.Infof("Step 2/3: Processing days...")
	days, err := dates.DatesInRange(scraped.Start, scraped.End)
	if err != nil {
		return StepResult{Name: "Analyze", Err: err}
	}

	for i, day := range days {
		if ctx.Err() != nil {
			break
		}
		date := dates.FormatDate(day)
		logging.Infof("Day %d/%d: %s", i+1, len(days), date)

		dr := p.processDay(ctx, r.AppID, day, reviews.ForDate(scraped.Reviews, day))
		if dr.Err != nil {
			logging.Errorf("%s %s failed: %v", r.AppID, date, dr.Err)
		}
		r.Days = append(r.Days, dr)
	}

	failed := r.FailedDays()
	summary := fmt.Sprintf("Processed %d days, %d failed", len(r.Days)-failed, failed)
	if failed > 0 && failed == len(r.Days) {
		return StepResult{Name: "Analyze", Summary: summary, Err: errors.New("every day failed")}
	}
	return StepResult{Name: "Analyze", Summary: summary}
}

// processDay runs extract, map, consolidate and export for one date.
// Panics are converted into the day's error.
func (p *Pipeline) processDay(ctx context.Context, appID string, day time.Time, dayReviews []database.Review) (dr DayResult) {
	dr = DayResult{Date: dates.FormatDate(day), Reviews: len(dayReviews)}
	defer func() {
		if rec := recover(); rec != nil {
			logging.Debugf("panic processing %s: %s", dr.Date, debug.Stack())
			dr.Err = fmt.Errorf("panic: %v", rec)
		}
	}()

	in := consolidate.Day{AppID: appID, Date: dr.Date, Reviews: dayReviews}

	if len(dayReviews) > 0 {
		extractions, err := p.oracle.ExtractTopics(ctx, dayReviews)
		if err != nil {
			dr.Err = fmt.Errorf("extracting topics: %w", err)
			return dr
		}
		in.Extractions = extractions

		phrases := uniquePhrases(extractions)
		if len(phrases) > 0 {
			tax, err := p.taxonomies.Load(appID)
			if err != nil {
				dr.Err = err
				return dr
			}
			mappings, err := p.oracle.MapTopics(ctx, phrases, tax)
			if err != nil {
				dr.Err = fmt.Errorf("mapping topics: %w", err)
				return dr
			}
			in.Mappings = mappings
		}
	} else {
		logging.Infof("no reviews on %s, writing an empty batch", dr.Date)
	}

	res, err := p.consolidator.Consolidate(ctx, in)
	if err != nil {
		dr.Err = err
		return dr
	}
	dr.Mentions = res.Daily.TotalTopicMentions
	dr.NewTopics = res.Daily.NewTopicsDiscovered

	if err := p.exporter.WriteDay(res.Daily, res.Detailed); err != nil {
		dr.Err = fmt.Errorf("exporting batch: %w", err)
	}
	return dr
}

func (p *Pipeline) runExportTaxonomy(appID string) StepResult {
	tax, err := p.taxonomies.Load(appID)
	if err == nil {
		err = p.exporter.WriteTaxonomy(tax)
	}
	if err != nil {
		logging.Warnf("exporting taxonomy for %s: %v", appID, err)
		return StepResult{Name: "Taxonomy", Err: err}
	}
	return StepResult{Name: "Taxonomy", Summary: fmt.Sprintf("%d topics", len(tax.Topics))}
}

func (p *Pipeline) runReport(r *Result, target time.Time) StepResult {
	logging.Infof("Step 3/3: Building trend report...")
	rep, err := p.reports.Build(r.AppID, target)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	if rep == nil {
		return StepResult{Name: "Report", Summary: "No topics in window, no report written"}
	}
	path, err := rep.SaveCSV(p.cfg.GetDataDir())
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	r.Report = rep
	r.ReportPath = path
	return StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("%d topics across %d days written to %s", len(rep.Rows), len(rep.Dates), path),
	}
}

func uniquePhrases(extractions []oracle.ExtractionResult) []string {
	seen := map[string]bool{}
	var out []string
	for _, ex := range extractions {
		for _, phrase := range ex.ExtractedTopics {
			phrase = taxonomy.NormalizePhrase(phrase)
			if phrase == "" || seen[phrase] {
				continue
			}
			seen[phrase] = true
			out = append(out, phrase)
		}
	}
	return out
}
