package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/reviewtrends/internal/config"
	"github.com/TobiSchelling/reviewtrends/internal/database"
	"github.com/TobiSchelling/reviewtrends/internal/dates"
	"github.com/TobiSchelling/reviewtrends/internal/export"
	"github.com/TobiSchelling/reviewtrends/internal/logging"
	"github.com/TobiSchelling/reviewtrends/internal/pipeline"
	"github.com/TobiSchelling/reviewtrends/internal/report"
	"github.com/TobiSchelling/reviewtrends/internal/schedule"
	"github.com/TobiSchelling/reviewtrends/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "reviewtrends",
	Short:   "App review trend analysis",
	Long:    "reviewtrends collects app store reviews, maps them onto a growing topic taxonomy and reports daily topic trends.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			logging.Init(levelFor("INFO"))
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		switch {
		case err == nil:
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		case configPath != "":
			return err
		default:
			cfg = config.Default()
		}

		logging.Init(levelFor(cfg.Logging.Level))
		if path != "" {
			logging.Debugf("using config %s", path)
		} else {
			logging.Debugf("no config file found, using built-in defaults")
		}
		return nil
	},
}

func levelFor(configured string) string {
	if verbose {
		return "debug"
	}
	return configured
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(taxonomyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("reviewtrends", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/reviewtrends/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the LLM provider, API key variable and the apps to schedule.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Today: %s\n", dates.FormatDate(dates.Today()))
		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Reviews:")
		fmt.Printf("  Apps: %d\n", stats.Apps)
		fmt.Printf("  Stored reviews: %d\n", stats.TotalReviews)
		fmt.Println("\nTaxonomy:")
		fmt.Printf("  Topics: %d\n", stats.Topics)
		fmt.Printf("  Discovered: %d\n", stats.LearnedTopics)
		fmt.Println("\nOutput:")
		fmt.Printf("  Daily batches: %d\n", stats.DailyBatches)
		fmt.Printf("  Runs: %d\n", stats.Runs)

		apps, err := db.ListApps()
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			return nil
		}

		fmt.Println()
		rows := make([][]string, len(apps))
		for i, a := range apps {
			last, _ := db.GetLastTargetDate(a.AppID)
			rows[i] = []string{a.AppID, a.Label(), strconv.Itoa(a.Days), a.FirstDate, a.LastDate, last}
		}
		table := report.NewTable(os.Stdout)
		table.Header([]string{"App", "Name", "Days", "First", "Last", "Last Run"})
		if err := table.Bulk(rows); err != nil {
			return err
		}
		return table.Render()
	},
}

// --- analyze command ---

var lookbackOverride int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <app-id> <YYYY-MM-DD>",
	Short: "Analyze reviews for the window ending at the target date and write the trend report",
	Args:  cobra.MatchAll(cobra.ExactArgs(2), validAppAndDate),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID := args[0]
		target, _ := dates.ParseDate(args[1])
		applyLookback()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Analyzing %s for %s (%d day lookback)\n", appID, args[1], cfg.Analysis.LookbackDays)
		result, runErr := pipe.Run(ctx, appID, target)
		if result == nil {
			return runErr
		}

		printSteps(result.Steps)
		if failed := result.FailedDays(); failed > 0 {
			fmt.Printf("\n%d of %d days failed:\n", failed, len(result.Days))
			for _, d := range result.Days {
				if d.Err != nil {
					fmt.Printf("  %s: %v\n", d.Date, d.Err)
				}
			}
		}

		if result.Report != nil {
			fmt.Println()
			if err := result.Report.Summarize().PrintSummary(os.Stdout); err != nil {
				return err
			}
			fmt.Printf("\nReport written to %s\n", result.ReportPath)
			fmt.Println("Run 'reviewtrends serve' to browse it.")
		}
		return runErr
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&lookbackOverride, "lookback", 0, "Override the lookback window (days)")
	reportCmd.Flags().IntVar(&lookbackOverride, "lookback", 0, "Override the lookback window (days)")
	scrapeCmd.Flags().IntVar(&lookbackOverride, "lookback", 0, "Override the lookback window (days)")
}

func applyLookback() {
	if lookbackOverride > 0 {
		cfg.Analysis.LookbackDays = lookbackOverride
	}
}

func printSteps(steps []pipeline.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

// --- scrape command ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape <app-id> <YYYY-MM-DD>",
	Short: "Bring the local review store up to date for a window without analyzing it",
	Args:  cobra.MatchAll(cobra.ExactArgs(2), validAppAndDate),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := dates.ParseDate(args[1])
		applyLookback()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := pipeline.NewScraper(cfg, db).Scrape(ctx, args[0], target, cfg.Analysis.LookbackDays)
		if err != nil {
			return err
		}
		fmt.Printf("Window %s: %d reviews (%s, %d fetched)\n",
			dates.FormatPeriodDisplay(dates.MakePeriodID(dates.FormatDate(res.Start), dates.FormatDate(res.End))),
			len(res.Reviews), res.Decision, res.Fetched)
		if res.Incomplete {
			fmt.Println("Warning: stored history does not reach the start of the window.")
		}
		return nil
	},
}

// --- report command ---

var reportCmd = &cobra.Command{
	Use:   "report <app-id> <YYYY-MM-DD>",
	Short: "Rebuild the trend report from stored daily batches",
	Args:  cobra.MatchAll(cobra.ExactArgs(2), validAppAndDate),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := dates.ParseDate(args[1])
		applyLookback()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := report.NewBuilder(db, cfg.Analysis.LookbackDays).Build(args[0], target)
		if err != nil {
			return err
		}
		if rep == nil {
			fmt.Printf("No topic data for %s in the window ending %s. Run 'reviewtrends analyze' first.\n", args[0], args[1])
			return nil
		}

		if err := rep.Summarize().PrintSummary(os.Stdout); err != nil {
			return err
		}
		path, err := rep.SaveCSV(cfg.GetDataDir())
		if err != nil {
			return err
		}
		fmt.Printf("\nReport written to %s\n", path)
		return nil
	},
}

// --- taxonomy command ---

var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy <app-id>",
	Short: "List an app's topics",
	Args:  cobra.MatchAll(cobra.ExactArgs(1), validAppID),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		tax, err := db.GetTaxonomy(args[0])
		if err != nil {
			return err
		}
		if tax == nil {
			fmt.Printf("No taxonomy for %s yet. It is created on the first analysis.\n", args[0])
			return nil
		}

		rows := make([][]string, len(tax.Topics))
		discovered := 0
		for i, t := range tax.Topics {
			source := "seed"
			if !t.IsSeed {
				source = "discovered"
				discovered++
			}
			rows[i] = []string{t.TopicID, t.TopicName, t.Category, t.AddedDate, source}
		}

		table := report.NewTable(os.Stdout)
		table.Header([]string{"ID", "Name", "Category", "Added", "Source"})
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		fmt.Printf("\n%d topics (%d discovered), last updated %s\n",
			len(tax.Topics), discovered, tax.LastUpdated.Format(time.RFC3339))
		return nil
	},
}

// --- export command ---

var exportCmd = &cobra.Command{
	Use:   "export <app-id> <start YYYY-MM-DD> <end YYYY-MM-DD>",
	Short: "Write stored batches and the taxonomy as JSON documents",
	Args: cobra.MatchAll(cobra.ExactArgs(3), func(cmd *cobra.Command, args []string) error {
		if err := validAppID(cmd, args[:1]); err != nil {
			return err
		}
		return validDateRange(args[1], args[2])
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		w := export.NewWriter(cfg.GetDataDir())
		n, err := w.Range(db, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d days to %s\n", n, w.ProcessedDir(args[0]))
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local report viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, cfg.Analysis.LookbackDays)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- schedule command ---

var runNow bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Analyze the configured apps every day on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		pipe, err := pipeline.New(cfg, db)
		if err != nil {
			return err
		}
		sched, err := schedule.New(pipe, cfg.Schedule.Cron, cfg.Schedule.Apps)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if runNow {
			sched.Tick(ctx)
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		fmt.Printf("Scheduled %s (cron %q, UTC). Next run: %s\n",
			strings.Join(cfg.Schedule.Apps, ", "), cfg.Schedule.Cron, sched.Next().Format(time.RFC3339))
		fmt.Println("Press Ctrl+C to stop")

		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&runNow, "now", false, "Run once immediately before waiting for the schedule")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := database.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// exitCode returns 2 when the app was locked by another run, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, database.ErrAppLocked) {
		return 2
	}
	return 1
}
