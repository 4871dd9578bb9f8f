// Package collector orchestrates a collection run: range expansion,
// per-unit crawling, snapshot and summary persistence, and the incomplete
// ledger. No failure inside one unit stops the run; the orchestrator always
// moves on to the next date.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/junhkang/lofin-collector/config"
	"github.com/junhkang/lofin-collector/ledger"
	"github.com/junhkang/lofin-collector/models"
	"github.com/junhkang/lofin-collector/store"
)

// ErrMissingAPIKey aborts a run before any network activity.
var ErrMissingAPIKey = errors.New("API key not found in environment")

// UnitCrawler collects all pages for one (year, date) unit.
type UnitCrawler interface {
	Crawl(ctx context.Context, year int, date time.Time) (models.CrawlResult, error)
}

// RowSink appends coerced rows to the relational store.
type RowSink interface {
	Append(ctx context.Context, rows []models.Record) error
}

// Request describes one validated collection job.
type Request struct {
	StartYear  int
	EndYear    int
	StartMonth int
	EndMonth   int
	AllDays    bool
	// Date selects single-date mode, mutually exclusive with the range scan.
	Date *time.Time
	// RetryIncomplete drains the ledger instead of scanning the range.
	RetryIncomplete bool
}

// Collector runs collection jobs sequentially, one unit at a time.
type Collector struct {
	cfg       *config.Config
	crawler   UnitCrawler
	sink      RowSink
	snapshots *store.SnapshotWriter
	ledger    *ledger.Ledger
	log       *slog.Logger
	countLog  *CountLog
	now       func() time.Time
}

// New wires a collector from its collaborators.
func New(cfg *config.Config, crawler UnitCrawler, sink RowSink, snapshots *store.SnapshotWriter, ledg *ledger.Ledger, logger *slog.Logger, countLog *CountLog) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:       cfg,
		crawler:   crawler,
		sink:      sink,
		snapshots: snapshots,
		ledger:    ledg,
		log:       logger,
		countLog:  countLog,
		now:       time.Now,
	}
}

// Run executes the job. Single-date and retry modes exit without touching
// the global summary files.
func (c *Collector) Run(ctx context.Context, req Request) error {
	if c.cfg.APIKey == "" {
		return ErrMissingAPIKey
	}

	c.countLog.Header()

	if req.Date != nil {
		return c.runSingleDate(ctx, *req.Date)
	}
	if req.RetryIncomplete {
		return c.runRetryIncomplete(ctx)
	}
	return c.runRange(ctx, req)
}

func (c *Collector) runRange(ctx context.Context, req Request) error {
	existing, err := c.ledger.Load()
	if err != nil {
		return err
	}

	var (
		allRows       []models.Record
		globalSummary []models.CollectionSummary
		newIncomplete []models.IncompleteDate
	)
	covered := make(map[string]bool)

	for year := req.StartYear; year <= req.EndYear; year++ {
		monthStart, monthEnd := 1, 12
		if year == req.StartYear {
			monthStart = req.StartMonth
		}
		if year == req.EndYear {
			monthEnd = req.EndMonth
		}
		c.log.Info("processing year",
			slog.Int("year", year),
			slog.Int("month_start", monthStart),
			slog.Int("month_end", monthEnd),
			slog.Bool("all_days", req.AllDays),
		)

		var (
			yearRows    []models.Record
			yearSummary []models.CollectionSummary
		)

		for _, date := range expandUnits(year, monthStart, monthEnd, req.AllDays) {
			if err := ctx.Err(); err != nil {
				return err
			}
			dateStr := date.Format("2006-01-02")
			c.log.Info("crawling unit", slog.Int("year", year), slog.String("date", dateStr))

			result, err := c.crawler.Crawl(ctx, year, date)
			if err != nil {
				return err
			}
			covered[dateStr] = true
			c.logUnit(result, result.Complete)

			summary := c.newSummary(result)
			yearSummary = append(yearSummary, summary)
			globalSummary = append(globalSummary, summary)
			newIncomplete = ledger.RecordIfIncomplete(newIncomplete, result, 0, c.now())

			if len(result.Rows) > 0 {
				yearRows = append(yearRows, result.Rows...)
				name := fmt.Sprintf("daily_%d_%s", year, dateStr)
				if !req.AllDays {
					name = fmt.Sprintf("monthly_%d_%02d", year, int(date.Month()))
				}
				path, err := c.snapshots.Write(name, result.Rows)
				if err != nil {
					return err
				}
				c.log.Info("snapshot saved", slog.String("file", path))
			}
		}

		if len(yearRows) > 0 {
			path, err := c.snapshots.Write(yearlySnapshotName(year, monthStart, monthEnd), yearRows)
			if err != nil {
				return err
			}
			c.log.Info("yearly snapshot saved", slog.Int("year", year), slog.String("file", path))
			allRows = append(allRows, yearRows...)
		}
		if err := c.writeSummary(yearSummaryFilename(year, monthStart, monthEnd), yearSummary); err != nil {
			return err
		}
	}

	if len(allRows) > 0 {
		if err := c.sink.Append(ctx, allRows); err != nil {
			return err
		}
		c.log.Info("all data saved to database", slog.Int("rows", len(allRows)))
	} else {
		c.log.Warn("no data was collected")
	}

	globalName := fmt.Sprintf("collection_summary_%s.json", rangeString(req))
	if err := c.writeSummary(globalName, globalSummary); err != nil {
		return err
	}

	if err := c.ledger.Save(mergeLedger(existing, covered, newIncomplete)); err != nil {
		return err
	}
	if len(newIncomplete) > 0 {
		c.log.Warn("incomplete data collection detected", slog.Int("dates", len(newIncomplete)))
		c.log.Info("run with -retry-incomplete to retry these dates")
	}
	return nil
}

func (c *Collector) runSingleDate(ctx context.Context, date time.Time) error {
	year := date.Year()
	dateStr := date.Format("2006-01-02")
	c.log.Info("collecting data for specific date", slog.String("date", dateStr))

	result, err := c.crawler.Crawl(ctx, year, date)
	if err != nil {
		return err
	}
	exact := result.Expected != nil && *result.Expected == result.Collected()
	c.logUnit(result, exact)

	if len(result.Rows) > 0 {
		if _, err := c.snapshots.Write(fmt.Sprintf("daily_%d_%s", year, dateStr), result.Rows); err != nil {
			return err
		}
		if err := c.sink.Append(ctx, result.Rows); err != nil {
			return err
		}
	}

	records := ledger.RecordIfIncomplete(nil, result, 0, c.now())
	if len(records) > 0 {
		existing, err := c.ledger.Load()
		if err != nil {
			return err
		}
		if err := c.ledger.Save(append(existing, records...)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) runRetryIncomplete(ctx context.Context) error {
	items, err := c.ledger.Load()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		c.log.Info("no incomplete dates to retry")
		return nil
	}
	c.log.Info("retrying incomplete dates", slog.Int("count", len(items)))

	var still []models.IncompleteDate
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		date, err := time.Parse("2006-01-02", item.Date)
		if err != nil {
			return fmt.Errorf("invalid ledger date %q: %w", item.Date, err)
		}
		c.log.Info("retrying collection",
			slog.String("date", item.Date),
			slog.Int("previous_collected", item.Collected),
			slog.Any("expected", item.Expected),
		)

		result, err := c.crawler.Crawl(ctx, item.Year, date)
		if err != nil {
			return err
		}
		exact := result.Expected != nil && *result.Expected == result.Collected()
		c.logUnit(result, exact)

		if len(result.Rows) > 0 {
			if _, err := c.snapshots.Write(fmt.Sprintf("retry_daily_%d_%s", item.Year, item.Date), result.Rows); err != nil {
				return err
			}
			if err := c.sink.Append(ctx, result.Rows); err != nil {
				return err
			}
		}
		still = ledger.RecordIfIncomplete(still, result, item.PreviousAttempts+1, c.now())
	}

	// Units that succeeded are dropped by omission on rewrite.
	return c.ledger.Save(still)
}

func (c *Collector) logUnit(result models.CrawlResult, matched bool) {
	expected := 0
	if result.Expected != nil {
		expected = *result.Expected
	}
	match := "✗"
	if matched {
		match = "✓"
	}
	rate := "N/A"
	if r, ok := result.SuccessRate(); ok {
		rate = fmt.Sprintf("%.2f%%", r)
	}
	status := unitStatus(result)
	c.countLog.Row(result.Date.Format("2006-01-02"), result.Year, expected, result.Collected(), match, rate, status)
	c.log.Info("unit finished",
		slog.String("date", result.Date.Format("2006-01-02")),
		slog.Int("expected", expected),
		slog.Int("collected", result.Collected()),
		slog.Int("retries", result.Retries),
		slog.String("status", status),
	)
}

func unitStatus(result models.CrawlResult) string {
	switch {
	case result.Complete:
		return "SUCCESS"
	case result.Expected != nil:
		return "INCOMPLETE"
	default:
		return "NO DATA"
	}
}

func (c *Collector) newSummary(result models.CrawlResult) models.CollectionSummary {
	summary := models.CollectionSummary{
		Year:           result.Year,
		Date:           result.Date.Format("2006-01-02"),
		TotalExpected:  result.Expected,
		TotalCollected: result.Collected(),
		IsComplete:     result.Complete,
		Timestamp:      c.now().Format(ledger.TimeFormat),
	}
	if rate, ok := result.SuccessRate(); ok {
		summary.SuccessRate = &rate
	}
	return summary
}

func (c *Collector) writeSummary(filename string, summaries []models.CollectionSummary) error {
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %q: %w", c.cfg.DataDir, err)
	}
	path := filepath.Join(c.cfg.DataDir, filename)
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary %q: %w", filename, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary %q: %w", path, err)
	}
	c.log.Info("collection summary saved", slog.String("file", path))
	return nil
}

// mergeLedger drops prior entries for dates this run covered, then appends
// the run's new incompletes: a date that succeeded this time disappears, a
// date that is still short gets its fresh counts.
func mergeLedger(existing []models.IncompleteDate, covered map[string]bool, fresh []models.IncompleteDate) []models.IncompleteDate {
	merged := make([]models.IncompleteDate, 0, len(existing)+len(fresh))
	for _, record := range existing {
		if !covered[record.Date] {
			merged = append(merged, record)
		}
	}
	return append(merged, fresh...)
}
