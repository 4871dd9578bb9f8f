// Package models defines data structures shared across the collector.
package models

import (
	"time"
)

// Record is one budget-execution row exactly as the API returned it. Field
// names and values pass through untouched; the SQLite sink coerces types at
// write time.
type Record map[string]any

// CrawlResult holds the outcome of crawling one (year, date) unit.
type CrawlResult struct {
	Year     int
	Date     time.Time
	Rows     []Record
	Expected *int // server-reported list_total_count, nil if never observed
	Complete bool
	Retries  int
}

// Collected returns the number of rows accumulated for the unit.
func (r CrawlResult) Collected() int {
	return len(r.Rows)
}

// SuccessRate returns collected/expected as a percentage. The second return
// is false when the server never reported a total.
func (r CrawlResult) SuccessRate() (float64, bool) {
	if r.Expected == nil || *r.Expected == 0 {
		return 0, false
	}
	return float64(len(r.Rows)) / float64(*r.Expected) * 100, true
}

// CollectionSummary is the write-once per-unit summary appended to the
// per-year and global summary files.
type CollectionSummary struct {
	Year           int      `json:"year"`
	Date           string   `json:"date"`
	TotalExpected  *int     `json:"total_expected"`
	TotalCollected int      `json:"total_collected"`
	SuccessRate    *float64 `json:"success_rate"`
	IsComplete     bool     `json:"is_complete"`
	Timestamp      string   `json:"timestamp"`
}

// IncompleteDate is one ledger entry for a unit that finished below the
// completion threshold.
type IncompleteDate struct {
	Date             string `json:"date"`
	Year             int    `json:"year"`
	Expected         *int   `json:"expected"`
	Collected        int    `json:"collected"`
	LastAttempt      string `json:"last_attempt"`
	PreviousAttempts int    `json:"previous_attempts,omitempty"`
}
