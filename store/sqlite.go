package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/junhkang/lofin-collector/models"
	_ "modernc.org/sqlite"
)

// dateColumn is the execution-date field reported by the API as YYYYMMDD.
const dateColumn = "exe_ymd"

// numericColumns are the budget amount fields coerced to numbers at write
// time. Invalid values become NULL.
var numericColumns = map[string]bool{
	"bdg_cash_amt": true,
	"bdg_ntep":     true,
	"capep":        true,
	"sggep":        true,
	"etc_amt":      true,
	"ep_amt":       true,
	"cpl_amt":      true,
}

// SQLiteSink writes collected rows to a SQLite database. Append calls never
// deduplicate: re-running a range appends the same rows again.
type SQLiteSink struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// OpenSQLiteSink opens (creating if needed) the database at path. table is
// the append target for Append.
func OpenSQLiteSink(path, table string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids lock
	// contention between the sink and the combiner.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %q: %w", path, err)
	}
	return &SQLiteSink{db: db, table: table, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Append adds rows to the configured table after type coercion, with a
// crawled_at timestamp column.
func (s *SQLiteSink) Append(ctx context.Context, rows []models.Record) error {
	return s.write(ctx, s.table, rows, "crawled_at", false)
}

// Replace drops and rebuilds the named table from rows, with a processed_at
// timestamp column. Used by the combiner's per-year tables.
func (s *SQLiteSink) Replace(ctx context.Context, table string, rows []models.Record) error {
	return s.write(ctx, table, rows, "processed_at", true)
}

func (s *SQLiteSink) write(ctx context.Context, table string, rows []models.Record, tsColumn string, replace bool) error {
	if len(rows) == 0 {
		return nil
	}

	columns := columnUnion(rows)
	columns = append(columns, tsColumn)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, table)); err != nil {
			return fmt.Errorf("drop table %q: %w", table, err)
		}
	}
	if err := ensureTable(ctx, tx, table, columns); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = strconv.Quote(column)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (%s) VALUES (%s)`,
		table, strings.Join(quoted, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	timestamp := s.now().Format("2006-01-02 15:04:05")
	for _, row := range rows {
		values := make([]any, 0, len(columns))
		for _, column := range columns[:len(columns)-1] {
			values = append(values, coerce(column, row[column]))
		}
		values = append(values, timestamp)
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ensureTable creates the table when missing and adds any columns the
// existing schema lacks, so appends survive schema drift across runs.
func ensureTable(ctx context.Context, tx *sql.Tx, table string, columns []string) error {
	defs := make([]string, len(columns))
	for i, column := range columns {
		defs[i] = fmt.Sprintf("%q %s", column, columnType(column))
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (%s)`, table, strings.Join(defs, ", "),
	)); err != nil {
		return fmt.Errorf("create table %q: %w", table, err)
	}

	existing, err := tableColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	for _, column := range columns {
		if existing[column] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`ALTER TABLE %q ADD COLUMN %q %s`, table, column, columnType(column),
		)); err != nil {
			return fmt.Errorf("add column %q: %w", column, err)
		}
	}
	return nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table info %q: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns[name] = true
	}
	return columns, rows.Err()
}

func columnType(column string) string {
	if numericColumns[column] {
		return "REAL"
	}
	return "TEXT"
}

// coerce applies the sink's type rules: exe_ymd parses as YYYYMMDD and is
// stored as an ISO date, designated numeric columns parse as floats, and
// anything unparseable becomes NULL.
func coerce(column string, value any) any {
	if value == nil {
		return nil
	}
	switch {
	case column == dateColumn:
		text := fmt.Sprintf("%v", value)
		parsed, err := time.Parse("20060102", strings.TrimSpace(text))
		if err != nil {
			return nil
		}
		return parsed.Format("2006-01-02")
	case numericColumns[column]:
		switch v := value.(type) {
		case float64:
			return v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil
			}
			return parsed
		default:
			return nil
		}
	default:
		switch v := value.(type) {
		case string, float64, bool:
			return v
		default:
			// Nested structures are rare but possible; store their JSON-ish
			// text form rather than failing the batch.
			return fmt.Sprintf("%v", v)
		}
	}
}

// columnUnion returns the sorted union of keys across rows.
func columnUnion(rows []models.Record) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for column := range row {
			seen[column] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}
