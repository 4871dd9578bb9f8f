// Package store persists collected rows: timestamped JSON snapshots per
// unit, an append-only SQLite table, and a combiner that rebuilds per-year
// tables from monthly snapshots.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/junhkang/lofin-collector/models"
)

const snapshotTimestamp = "20060102_150405"

// SnapshotWriter writes raw row batches as timestamped JSON files under a
// data directory. Downstream consumers match on the name prefix
// (daily_/monthly_/yearly_).
type SnapshotWriter struct {
	dir string
	now func() time.Time
}

// NewSnapshotWriter returns a writer rooted at dir.
func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir, now: time.Now}
}

// Write persists rows as <dir>/<name>_<timestamp>.json and returns the full
// path.
func (w *SnapshotWriter) Write(name string, rows []models.Record) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory %q: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", name, w.now().Format(snapshotTimestamp)))
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %q: %w", path, err)
	}
	return path, nil
}
