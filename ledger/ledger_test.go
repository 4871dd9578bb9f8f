package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/junhkang/lofin-collector/models"
)

func TestLoadMissingFile(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "incomplete_dates.json"))

	records, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0", len(records))
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomplete_dates.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := New(path).Load(); err == nil {
		t.Fatalf("expected error for malformed ledger")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomplete_dates.json")
	l := New(path)

	expected := 500
	records := []models.IncompleteDate{
		{Date: "2023-01-31", Year: 2023, Expected: &expected, Collected: 120, LastAttempt: "2024-01-01 10:00:00"},
		{Date: "2023-02-28", Year: 2023, Expected: &expected, Collected: 499, LastAttempt: "2024-01-01 10:05:00", PreviousAttempts: 2},
	}
	if err := l.Save(records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("records = %d, want 2", len(loaded))
	}
	if loaded[0].Date != "2023-01-31" || loaded[0].Collected != 120 {
		t.Fatalf("first record = %+v", loaded[0])
	}
	if loaded[1].PreviousAttempts != 2 {
		t.Fatalf("previous attempts = %d, want 2", loaded[1].PreviousAttempts)
	}
}

func TestSaveDedupesByDateLastWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomplete_dates.json")
	l := New(path)

	records := []models.IncompleteDate{
		{Date: "2023-01-31", Year: 2023, Collected: 100},
		{Date: "2023-02-28", Year: 2023, Collected: 50},
		{Date: "2023-01-31", Year: 2023, Collected: 300},
	}
	if err := l.Save(records); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := l.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("records = %d, want 2", len(loaded))
	}
	if loaded[0].Date != "2023-01-31" || loaded[0].Collected != 300 {
		t.Fatalf("deduped record = %+v, want last write for the date", loaded[0])
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "incomplete_dates.json")
	if err := New(path).Save(nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("ledger file missing: %v", err)
	}
}

func TestSaveIsHumanReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incomplete_dates.json")
	expected := 42
	record := models.IncompleteDate{Date: "2023-03-31", Year: 2023, Expected: &expected, Collected: 10}
	if err := New(path).Save([]models.IncompleteDate{record}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("ledger is not valid JSON: %v", err)
	}
	if decoded[0]["date"] != "2023-03-31" {
		t.Fatalf("date field = %v", decoded[0]["date"])
	}
}

func TestRecordIfIncomplete(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	expected := 1000
	date := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		result models.CrawlResult
		want   int
	}{
		{
			name: "incomplete with rows is recorded",
			result: models.CrawlResult{
				Year: 2023, Date: date, Expected: &expected,
				Rows: make([]models.Record, 400), Complete: false,
			},
			want: 1,
		},
		{
			name: "complete unit is skipped",
			result: models.CrawlResult{
				Year: 2023, Date: date, Expected: &expected,
				Rows: make([]models.Record, 1000), Complete: true,
			},
			want: 0,
		},
		{
			name: "zero collected is no data, not incomplete",
			result: models.CrawlResult{
				Year: 2023, Date: date, Complete: false,
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := RecordIfIncomplete(nil, tt.result, 0, now)
			if len(records) != tt.want {
				t.Fatalf("records = %d, want %d", len(records), tt.want)
			}
			if tt.want == 1 {
				if records[0].Date != "2023-06-30" {
					t.Fatalf("date = %q", records[0].Date)
				}
				if records[0].LastAttempt != "2024-01-02 15:04:05" {
					t.Fatalf("last attempt = %q", records[0].LastAttempt)
				}
			}
		})
	}
}
