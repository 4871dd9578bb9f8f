package collector

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CountLog writes the aligned one-line-per-unit collection report that
// operators eyeball to compare expected and collected counts per date.
type CountLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewCountLog opens logs/collection_count_<YYYYMMDD>.log for appending.
func NewCountLog(dir string, at time.Time) (*CountLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("collection_count_%s.log", at.Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open count log %q: %w", path, err)
	}
	return &CountLog{w: f}, nil
}

// NewCountLogWriter wraps an arbitrary writer, for tests and stdout mirrors.
func NewCountLogWriter(w io.WriteCloser) *CountLog {
	return &CountLog{w: w}
}

// Header writes the column header and separator.
func (l *CountLog) Header() {
	l.line(fmt.Sprintf("%-10s | %-4s | %-8s | %-9s | %-5s | %-12s | %s",
		"Date", "Year", "Expected", "Collected", "Match", "Success Rate", "Status"))
	l.line(strings.Repeat("-", 80))
}

// Row writes one unit's result line.
func (l *CountLog) Row(date string, year, expected, collected int, match, rate, status string) {
	l.line(fmt.Sprintf("%-10s | %4d | %8d | %9d | %-5s | %-12s | %s",
		date, year, expected, collected, match, rate, status))
}

func (l *CountLog) line(s string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		fmt.Fprintln(l.w, s)
	}
}

// Close closes the underlying file.
func (l *CountLog) Close() error {
	if l == nil || l.w == nil {
		return nil
	}
	return l.w.Close()
}
