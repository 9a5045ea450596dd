package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/review-scraper/internal/database"
	"github.com/maltedev/review-scraper/internal/models"
	"github.com/maltedev/review-scraper/internal/scraper"
)

type scrapeArgs struct {
	company string
	source  models.Source
	rng     models.DateRange
}

var (
	scrapeCompany   string
	scrapeSource    string
	scrapeStartDate string
	scrapeEndDate   string
	scrapeOutputDir string
	scrapeHeadless  bool
	scrapeEngine    string
	scrapeStore     bool
	scrapeMaxPages  int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the reviews of one product within a date range.",
	Example: `  reviewscraper scrape --company "Slack" --source g2 --start_date 2024-01-01 --end_date 2024-03-31
  reviewscraper scrape --company Notion --source capterra --start_date 2024-01-01 --end_date 2024-01-31 --engine http`,
	RunE: runScrape,
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeCompany, "company", "", "Product or company name to search for")
	f.StringVar(&scrapeSource, "source", "", "Review site: "+sourceList())
	f.StringVar(&scrapeStartDate, "start_date", "", "First day of the range (YYYY-MM-DD)")
	f.StringVar(&scrapeEndDate, "end_date", "", "Last day of the range (YYYY-MM-DD)")
	f.StringVar(&scrapeOutputDir, "output-dir", "", "Directory for the JSON output. Overrides OUTPUT_DIR.")
	f.BoolVar(&scrapeHeadless, "headless", true, "Run the browser without a window. Overrides BROWSER_HEADLESS.")
	f.StringVar(&scrapeEngine, "engine", "", "Page engine: chromium or http. Overrides BROWSER_ENGINE.")
	f.BoolVar(&scrapeStore, "store", false, "Also store the reviews in Postgres (requires DATABASE_URL)")
	f.IntVar(&scrapeMaxPages, "max-pages", 0, "Stop after this many listing pages (0 means unlimited). Overrides SCRAPER_MAX_PAGES.")

	for _, name := range []string{"company", "source", "start_date", "end_date"} {
		_ = scrapeCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(scrapeCmd)
}

// parseScrapeArgs validates user input before anything is launched.
func parseScrapeArgs(company, source, start, end string) (scrapeArgs, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return scrapeArgs{}, errors.New("--company must not be empty")
	}

	src, err := models.ParseSource(strings.ToLower(strings.TrimSpace(source)))
	if err != nil {
		return scrapeArgs{}, fmt.Errorf("invalid --source (want one of %s): %w", sourceList(), err)
	}

	rng, err := models.ParseDateRange(start, end, time.Local)
	if err != nil {
		return scrapeArgs{}, err
	}

	return scrapeArgs{company: company, source: src, rng: rng}, nil
}

func sourceList() string {
	names := make([]string, 0, len(models.Sources()))
	for _, s := range models.Sources() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

func runScrape(cmd *cobra.Command, _ []string) error {
	args, err := parseScrapeArgs(scrapeCompany, scrapeSource, scrapeStartDate, scrapeEndDate)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Output.Dir = scrapeOutputDir
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = scrapeHeadless
	}
	if flags.Changed("engine") {
		cfg.Browser.Engine = scrapeEngine
	}
	if flags.Changed("max-pages") {
		cfg.Scraper.MaxPages = scrapeMaxPages
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	files, err := fileSink(cfg, log)
	if err != nil {
		return err
	}
	sinks := []scraper.Sink{files}

	if scrapeStore {
		be, err := openBackend(ctx, cfg, false)
		if err != nil {
			return err
		}
		defer be.Close()
		sinks = append(sinks, database.NewReviewRepository(be.db, be.outbox, log))
	}

	l, err := newLauncher(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to start %s engine: %w", cfg.Browser.Engine, err)
	}
	defer func() {
		if err := l.close(); err != nil {
			log.Warn("failed to close page engine", "error", err)
		}
	}()

	log.Info("scrape started",
		"company", args.company,
		"source", args.source,
		"start", args.rng.Start.Format(models.DateLayout),
		"end", args.rng.End.Format(models.DateLayout),
		"engine", cfg.Browser.Engine)

	orch := scraper.NewOrchestrator(l, scraperOptions(cfg, log), sinks...)
	result, err := orch.Run(ctx, args.source, args.company, args.rng)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Successfully scraped %d reviews. Saved to %s\n", len(result.Reviews), files.LastPath())
	return nil
}
