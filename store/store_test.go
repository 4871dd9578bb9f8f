package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/junhkang/lofin-collector/models"
)

func TestSnapshotWriterNamesFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewSnapshotWriter(dir)
	w.now = func() time.Time {
		return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	}

	rows := []models.Record{{"acnt_nm": "general"}}
	path, err := w.Write("monthly_2023_12", rows)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if filepath.Base(path) != "monthly_2023_12_20240102_150405.json" {
		t.Fatalf("snapshot name = %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name   string
		column string
		value  any
		want   any
	}{
		{name: "date parsed", column: "exe_ymd", value: "20231231", want: "2023-12-31"},
		{name: "invalid date becomes null", column: "exe_ymd", value: "not-a-date", want: nil},
		{name: "numeric string parsed", column: "ep_amt", value: "1234.5", want: 1234.5},
		{name: "numeric passthrough", column: "bdg_cash_amt", value: 10.0, want: 10.0},
		{name: "invalid numeric becomes null", column: "capep", value: "n/a", want: nil},
		{name: "plain text passthrough", column: "acnt_nm", value: "general", want: "general"},
		{name: "nil stays nil", column: "sggep", value: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerce(tt.column, tt.value); got != tt.want {
				t.Fatalf("coerce(%q, %v) = %v, want %v", tt.column, tt.value, got, tt.want)
			}
		})
	}
}

func TestColumnUnion(t *testing.T) {
	rows := []models.Record{
		{"b": "1", "a": "2"},
		{"c": "3", "a": "4"},
	}
	got := columnUnion(rows)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("columns = %v, want %v", got, want)
		}
	}
}

func TestSQLiteSinkAppend(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "test.db"), "local_finance_data")
	if err != nil {
		t.Fatalf("OpenSQLiteSink() error = %v", err)
	}
	defer sink.Close()

	rows := []models.Record{
		{"exe_ymd": "20231231", "acnt_nm": "general", "ep_amt": "100.5"},
		{"exe_ymd": "20231231", "acnt_nm": "special", "ep_amt": "bad"},
	}
	ctx := context.Background()
	if err := sink.Append(ctx, rows); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	// Append semantics: a second write doubles the rows.
	if err := sink.Append(ctx, rows); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	var count int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM "local_finance_data"`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 4 {
		t.Fatalf("row count = %d, want 4", count)
	}

	var nulls int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM "local_finance_data" WHERE "ep_amt" IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("null query: %v", err)
	}
	if nulls != 2 {
		t.Fatalf("null ep_amt count = %d, want 2", nulls)
	}

	var date string
	if err := sink.db.QueryRow(`SELECT "exe_ymd" FROM "local_finance_data" LIMIT 1`).Scan(&date); err != nil {
		t.Fatalf("date query: %v", err)
	}
	if date != "2023-12-31" {
		t.Fatalf("exe_ymd = %q, want 2023-12-31", date)
	}
}

func TestSQLiteSinkAppendNewColumns(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "test.db"), "local_finance_data")
	if err != nil {
		t.Fatalf("OpenSQLiteSink() error = %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Append(ctx, []models.Record{{"acnt_nm": "general"}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := sink.Append(ctx, []models.Record{{"acnt_nm": "special", "dept_nm": "finance"}}); err != nil {
		t.Fatalf("Append() with new column error = %v", err)
	}

	var count int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM "local_finance_data" WHERE "dept_nm" = 'finance'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestSQLiteSinkReplace(t *testing.T) {
	sink, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "test.db"), "local_finance_data")
	if err != nil {
		t.Fatalf("OpenSQLiteSink() error = %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Replace(ctx, "yearly_data_2023", []models.Record{{"a": "1"}, {"a": "2"}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if err := sink.Replace(ctx, "yearly_data_2023", []models.Record{{"a": "3"}}); err != nil {
		t.Fatalf("second Replace() error = %v", err)
	}

	var count int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM "yearly_data_2023"`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("row count = %d, want 1 (replace, not append)", count)
	}
}

func writeSnapshot(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write snapshot fixture: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCombinerFindMonthlyFiles(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "monthly_2022_12_20230101_000000.json", `[]`)
	writeSnapshot(t, dir, "monthly_2023_01_20230201_000000.json", `[]`)
	writeSnapshot(t, dir, "monthly_2023_02_20230301_000000.json", `[]`)
	writeSnapshot(t, dir, "daily_2023_2023-01-15_20230116_000000.json", `[]`)

	c, err := NewCombiner(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewCombiner() error = %v", err)
	}

	all, err := c.FindMonthlyFiles(0, 0, 0, 0)
	if err != nil {
		t.Fatalf("FindMonthlyFiles() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all monthly files = %d, want 3", len(all))
	}

	byYear, err := c.FindMonthlyFiles(2023, 0, 0, 0)
	if err != nil {
		t.Fatalf("FindMonthlyFiles(2023) error = %v", err)
	}
	if len(byYear) != 2 {
		t.Fatalf("2023 files = %d, want 2", len(byYear))
	}
	for _, file := range byYear {
		if !strings.Contains(file, "monthly_2023_") {
			t.Fatalf("unexpected file %q", file)
		}
	}

	ranged, err := c.FindMonthlyFiles(0, 0, 2022, 2022)
	if err != nil {
		t.Fatalf("FindMonthlyFiles(range) error = %v", err)
	}
	if len(ranged) != 1 {
		t.Fatalf("range files = %d, want 1", len(ranged))
	}
}

func TestCombinerCombine(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, "monthly_2023_01_20230201_000000.json", `[{"acnt_nm": "a"}, {"acnt_nm": "b"}]`)
	writeSnapshot(t, dir, "monthly_2023_02_20230301_000000.json", `[{"acnt_nm": "c"}]`)

	c, err := NewCombiner(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewCombiner() error = %v", err)
	}
	files, err := c.FindMonthlyFiles(2023, 0, 0, 0)
	if err != nil {
		t.Fatalf("FindMonthlyFiles() error = %v", err)
	}

	rows, err := c.Combine(files)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0]["acnt_nm"] != "a" || rows[2]["acnt_nm"] != "c" {
		t.Fatalf("rows out of order: %v", rows)
	}

	// Second pass hits the cache and returns identical data.
	again, err := c.Combine(files)
	if err != nil {
		t.Fatalf("cached Combine() error = %v", err)
	}
	if len(again) != 3 {
		t.Fatalf("cached rows = %d, want 3", len(again))
	}
}
