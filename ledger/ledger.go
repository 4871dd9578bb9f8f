// Package ledger tracks units that finished below the completion threshold
// so a later run can retry them.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/junhkang/lofin-collector/models"
)

// TimeFormat is the timestamp layout used for last_attempt fields.
const TimeFormat = "2006-01-02 15:04:05"

// Ledger persists incomplete-collection records as a human-readable JSON
// file. Save always rewrites the whole file; callers merge explicitly.
type Ledger struct {
	path string
}

// New returns a ledger backed by the given file path.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Load reads all persisted records. A missing file yields an empty slice;
// malformed content is an error.
func (l *Ledger) Load() ([]models.IncompleteDate, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger %q: %w", l.path, err)
	}

	var records []models.IncompleteDate
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode ledger %q: %w", l.path, err)
	}
	return records, nil
}

// Save atomically overwrites the ledger with the given records. When two
// records share a date the later one wins.
func (l *Ledger) Save(records []models.IncompleteDate) error {
	deduped := dedupe(records)

	data, err := json.MarshalIndent(deduped, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory %q: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".incomplete_dates-*.json")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace ledger %q: %w", l.path, err)
	}
	return nil
}

// RecordIfIncomplete appends a ledger entry for the unit only when it is
// incomplete and actually collected rows. Zero-collected units are "no
// data", not retry candidates. previousAttempts carries the prior entry's
// counter in retry runs, zero otherwise.
func RecordIfIncomplete(records []models.IncompleteDate, result models.CrawlResult, previousAttempts int, at time.Time) []models.IncompleteDate {
	if result.Complete || result.Collected() == 0 {
		return records
	}
	return append(records, models.IncompleteDate{
		Date:             result.Date.Format("2006-01-02"),
		Year:             result.Year,
		Expected:         result.Expected,
		Collected:        result.Collected(),
		LastAttempt:      at.Format(TimeFormat),
		PreviousAttempts: previousAttempts,
	})
}

// dedupe keeps the last record for each date, preserving first-seen order.
func dedupe(records []models.IncompleteDate) []models.IncompleteDate {
	last := make(map[string]models.IncompleteDate, len(records))
	order := make([]string, 0, len(records))
	for _, record := range records {
		if _, seen := last[record.Date]; !seen {
			order = append(order, record.Date)
		}
		last[record.Date] = record
	}

	deduped := make([]models.IncompleteDate, 0, len(order))
	for _, date := range order {
		deduped = append(deduped, last[date])
	}
	return deduped
}
