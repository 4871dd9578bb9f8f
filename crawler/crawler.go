// Package crawler drives paginated collection for one (year, date) unit.
//
// The API does not reliably signal a last page: it may return a full page
// followed by an empty one, or a short page followed by more data. Completion
// is therefore confirmed by probing one page ahead before terminating.
package crawler

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/junhkang/lofin-collector/config"
	"github.com/junhkang/lofin-collector/models"
	"github.com/junhkang/lofin-collector/parser"
)

// CompletionThreshold is the fraction of the server-reported total treated
// as fully collected, tolerating minor count drift upstream.
const CompletionThreshold = 0.995

const (
	phasePage   = "page"
	phaseVerify = "verify"
)

// Crawler fetches all pages for one unit at a time. It is sequential:
// pagination state lives in the page index, so a unit must never see two
// requests in flight.
type Crawler struct {
	cfg     *config.Config
	client  *resty.Client
	log     *slog.Logger
	Metrics *Metrics
}

// New builds a crawler configured from cfg.
func New(cfg *config.Config, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", cfg.ContentType)
	client.SetHeader("User-Agent", cfg.UserAgent)
	if cfg.InsecureTLS {
		// The upstream endpoint terminates TLS with a legacy certificate
		// chain that standard verification rejects.
		client.SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
			MinVersion:         tls.VersionTLS12,
		})
	}

	return &Crawler{
		cfg:     cfg,
		client:  client,
		log:     logger,
		Metrics: NewMetrics(),
	}
}

type attemptResult struct {
	rows     []models.Record
	expected *int
	// retry requests a unit-level restart after a transport, server, or
	// decode failure.
	retry bool
}

// Crawl collects every page for a (year, date) unit. Retries are unit-level:
// a failed attempt restarts from page 1 and discards the attempt's partial
// rows. When retries are exhausted the last attempt's rows are returned
// as-is. The returned error is non-nil only on context cancellation.
func (c *Crawler) Crawl(ctx context.Context, year int, date time.Time) (models.CrawlResult, error) {
	result := models.CrawlResult{Year: year, Date: date}

	var att attemptResult
	for {
		var err error
		att, err = c.crawlAttempt(ctx, year, date)
		result.Rows = att.rows
		result.Expected = att.expected
		if err != nil {
			return result, err
		}
		if !att.retry {
			break
		}
		if result.Retries >= c.cfg.MaxRetries {
			c.log.Warn("retries exhausted",
				slog.Int("year", year),
				slog.String("date", date.Format("2006-01-02")),
				slog.Int("collected", len(att.rows)),
			)
			break
		}
		result.Retries++
		c.Metrics.IncRetries()
		c.log.Info("retrying unit",
			slog.Int("attempt", result.Retries),
			slog.Int("max_retries", c.cfg.MaxRetries),
			slog.Duration("delay", c.cfg.RetryDelay),
		)
		if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
			return result, err
		}
	}

	result.Complete = isComplete(result.Expected, len(result.Rows))
	if att.retry && result.Expected == nil && len(result.Rows) == 0 {
		// Every attempt failed before learning a total; nothing supports a
		// completeness claim.
		result.Complete = false
	}
	return result, nil
}

func (c *Crawler) crawlAttempt(ctx context.Context, year int, date time.Time) (attemptResult, error) {
	var att attemptResult
	page := 1
	consecutiveEmpty := 0
	dateStr := date.Format("2006-01-02")

	for {
		if err := ctx.Err(); err != nil {
			return att, err
		}

		status, body, err := c.fetch(ctx, year, date, page, phasePage)
		if err != nil {
			if ctx.Err() != nil {
				return att, ctx.Err()
			}
			c.Metrics.IncError(errorTypeLabel(err))
			c.log.Error("network error",
				slog.Int("year", year),
				slog.String("date", dateStr),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			att.retry = true
			return att, nil
		}

		switch {
		case status == http.StatusMultipleChoices:
			// 300: required request values missing. Retrying cannot help.
			c.Metrics.IncError(errorTypeLabel(ErrRequiredParam{Status: status}))
			c.log.Error("required values missing",
				slog.Int("year", year),
				slog.String("date", dateStr),
			)
			return att, nil
		case status == http.StatusInternalServerError:
			c.Metrics.IncError(errorTypeLabel(ErrServer{}))
			c.log.Error("server internal error",
				slog.Int("year", year),
				slog.String("date", dateStr),
			)
			att.retry = true
			return att, nil
		case status != http.StatusOK:
			c.Metrics.IncError(errorTypeLabel(ErrBadStatus{Status: status}))
			c.log.Error("unexpected status",
				slog.Int("status", status),
				slog.Int("year", year),
				slog.String("date", dateStr),
			)
			att.retry = true
			return att, nil
		}

		cls := parser.Classify(body, c.cfg.PayloadKey, page)
		switch cls.Kind {
		case parser.EmptyText:
			c.Metrics.IncEmpty()
			consecutiveEmpty++
			c.log.Info("empty response",
				slog.Int("page", page),
				slog.Int("consecutive", consecutiveEmpty),
			)
			if consecutiveEmpty >= 2 {
				c.log.Info("multiple empty responses, assuming all data collected",
					slog.String("date", dateStr))
				return att, nil
			}
			page++
			if err := sleepCtx(ctx, c.cfg.RequestDelay); err != nil {
				return att, err
			}
			continue

		case parser.ParseError:
			c.Metrics.IncError(errorTypeLabel(ErrDecode{}))
			c.log.Error("failed to decode response",
				slog.Int("page", page),
				slog.String("body", snippet(body)),
			)
			att.retry = true
			return att, nil

		case parser.EmptyStructure:
			c.Metrics.IncEmpty()
			consecutiveEmpty++
			if len(att.rows) > 0 {
				c.log.Info("empty structure after data, assuming all data collected",
					slog.String("date", dateStr))
				return att, nil
			}
			c.log.Info("empty structure",
				slog.Int("page", page),
				slog.Int("consecutive", consecutiveEmpty),
			)
			if consecutiveEmpty >= 2 {
				return att, nil
			}
			page++
			if err := sleepCtx(ctx, c.cfg.RequestDelay); err != nil {
				return att, err
			}
			continue

		case parser.Malformed:
			c.Metrics.IncError(errorTypeLabel(ErrSchema{}))
			c.log.Error("unexpected payload structure",
				slog.String("key", c.cfg.PayloadKey),
				slog.String("body", snippet(body)),
			)
			return att, nil
		}

		// Valid page.
		consecutiveEmpty = 0
		if cls.TotalCount != nil && att.expected == nil {
			att.expected = cls.TotalCount
			c.log.Info("total records available",
				slog.Int("total", *cls.TotalCount),
				slog.Int("year", year),
				slog.String("date", dateStr),
			)
		}
		pageRows := len(cls.Rows)
		att.rows = append(att.rows, cls.Rows...)
		c.Metrics.AddRows(pageRows)
		c.log.Info("retrieved records",
			slog.Int("page", page),
			slog.Int("rows", pageRows),
			slog.Int("collected", len(att.rows)),
		)

		if att.expected != nil {
			expected := *att.expected
			pct := percent(len(att.rows), expected)
			c.log.Info("collection progress",
				slog.Int("collected", len(att.rows)),
				slog.Int("expected", expected),
				slog.Float64("percent", pct),
			)

			if len(att.rows) >= expected {
				outcome, err := c.verifyNextPage(ctx, year, date, page+1)
				if err != nil {
					if ctx.Err() != nil {
						return att, ctx.Err()
					}
					att.retry = true
					return att, nil
				}
				if outcome == probeHasData {
					c.log.Warn("verification found more data",
						slog.Int("page", page+1))
					page = page + 1
					continue
				}
				c.log.Info("verification confirmed collection complete",
					slog.String("date", dateStr),
					slog.Int("collected", len(att.rows)),
				)
				return att, nil
			}

			if pct > CompletionThreshold*100 && pageRows == 0 {
				c.log.Info("collection near complete with no more data",
					slog.Float64("percent", pct))
				return att, nil
			}
		}

		if pageRows == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= 2 {
				c.log.Info("multiple empty pages, ending collection",
					slog.String("date", dateStr))
				return att, nil
			}
		} else if pageRows < c.cfg.MaxRecordsPerRequest {
			c.log.Info("short page, verifying end of data",
				slog.Int("page", page),
				slog.Int("rows", pageRows),
				slog.Int("page_size", c.cfg.MaxRecordsPerRequest),
			)
			outcome, err := c.verifyNextPage(ctx, year, date, page+1)
			if err != nil {
				if ctx.Err() != nil {
					return att, ctx.Err()
				}
				att.retry = true
				return att, nil
			}
			if outcome == probeHasData {
				c.log.Warn("next page unexpectedly contains data",
					slog.Int("page", page+1))
				page = page + 1
				continue
			}
			c.log.Info("confirmed last page", slog.Int("page", page))
			return att, nil
		}

		page++
		if err := sleepCtx(ctx, c.cfg.RequestDelay); err != nil {
			return att, err
		}
	}
}

type probeOutcome int

const (
	probeEmpty probeOutcome = iota
	probeHasData
	probeIndeterminate
)

func (o probeOutcome) String() string {
	switch o {
	case probeEmpty:
		return "confirmed_empty"
	case probeHasData:
		return "has_more_data"
	default:
		return "indeterminate"
	}
}

// verifyNextPage probes one page ahead to confirm no data remains. A non-200
// probe is indeterminate and treated as end of data by both call sites. A
// transport failure is returned to the caller for unit-level retry.
func (c *Crawler) verifyNextPage(ctx context.Context, year int, date time.Time, page int) (probeOutcome, error) {
	status, body, err := c.fetch(ctx, year, date, page, phaseVerify)
	if err != nil {
		return probeIndeterminate, err
	}
	if status != http.StatusOK {
		c.log.Info("verification page returned non-200",
			slog.Int("page", page),
			slog.Int("status", status),
		)
		c.Metrics.IncProbe(probeIndeterminate.String())
		return probeIndeterminate, nil
	}

	outcome := probeHasData
	switch parser.Classify(body, c.cfg.PayloadKey, page).Kind {
	case parser.EmptyText, parser.EmptyStructure, parser.ParseError:
		// Invalid JSON on a probe means an empty filler response, not a
		// transport problem.
		outcome = probeEmpty
	}
	c.Metrics.IncProbe(outcome.String())
	return outcome, nil
}

func (c *Crawler) fetch(ctx context.Context, year int, date time.Time, page int, phase string) (int, []byte, error) {
	c.Metrics.IncRequest(phase)
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"Key":     c.cfg.APIKey,
			"Type":    c.cfg.ResponseType,
			"pIndex":  strconv.Itoa(page),
			"pSize":   strconv.Itoa(c.cfg.MaxRecordsPerRequest),
			"fyr":     strconv.Itoa(year),
			"exe_ymd": date.Format("20060102"),
		}).
		Post(c.cfg.BaseURL)
	c.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return 0, nil, ErrTransport{Err: err}
	}
	return resp.StatusCode(), resp.Body(), nil
}

func isComplete(expected *int, collected int) bool {
	if expected == nil || *expected == 0 {
		return true
	}
	return float64(collected) >= float64(*expected)*CompletionThreshold
}

func percent(collected, expected int) float64 {
	if expected == 0 {
		return 0
	}
	return float64(collected) / float64(expected) * 100
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
