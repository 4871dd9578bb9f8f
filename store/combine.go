package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/junhkang/lofin-collector/models"
)

// snapshotCacheSize bounds the combiner's decoded-file cache. Year-range
// queries overlap heavily, so most re-reads hit the cache.
const snapshotCacheSize = 64

// Combiner rebuilds combined row sets from monthly snapshot files.
type Combiner struct {
	dir   string
	cache *lru.Cache[string, []models.Record]
	log   *slog.Logger
}

// NewCombiner returns a combiner reading snapshots from dir.
func NewCombiner(dir string, logger *slog.Logger) (*Combiner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, []models.Record](snapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}
	return &Combiner{dir: dir, cache: cache, log: logger}, nil
}

// FindMonthlyFiles lists monthly snapshot files sorted by name. year and
// month narrow the glob; startYear/endYear filter by the year embedded in
// the filename. Zero values mean "no filter".
func (c *Combiner) FindMonthlyFiles(year, month, startYear, endYear int) ([]string, error) {
	pattern := "monthly_*.json"
	switch {
	case year != 0 && month != 0:
		pattern = fmt.Sprintf("monthly_%d_%02d_*.json", year, month)
	case year != 0:
		pattern = fmt.Sprintf("monthly_%d_*.json", year)
	}

	files, err := filepath.Glob(filepath.Join(c.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}

	if startYear != 0 && endYear != 0 {
		filtered := files[:0]
		for _, file := range files {
			fileYear, ok := snapshotYear(file)
			if ok && startYear <= fileYear && fileYear <= endYear {
				filtered = append(filtered, file)
			}
		}
		files = filtered
	}

	sort.Strings(files)
	return files, nil
}

// Combine loads every file and concatenates their rows in order.
func (c *Combiner) Combine(files []string) ([]models.Record, error) {
	var all []models.Record
	for _, file := range files {
		rows, err := c.loadSnapshot(file)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
	}
	c.log.Info("combined snapshot files",
		slog.Int("files", len(files)),
		slog.Int("rows", len(all)),
	)
	return all, nil
}

func (c *Combiner) loadSnapshot(path string) ([]models.Record, error) {
	if rows, ok := c.cache.Get(path); ok {
		return rows, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %q: %w", path, err)
	}
	var rows []models.Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", path, err)
	}
	c.log.Info("loaded snapshot", slog.String("file", path), slog.Int("rows", len(rows)))

	c.cache.Add(path, rows)
	return rows, nil
}

// snapshotYear extracts the year from a monthly_<year>_... filename.
func snapshotYear(path string) (int, bool) {
	parts := strings.Split(filepath.Base(path), "_")
	if len(parts) < 3 {
		return 0, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return year, true
}
