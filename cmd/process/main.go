package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/junhkang/lofin-collector/config"
	"github.com/junhkang/lofin-collector/store"
)

// process rebuilds per-year database tables from the monthly snapshot
// files the collector wrote, so a partial crawl can be re-materialised
// without hitting the API again.
func main() {
	envPath := flag.String("env", ".env", "Path to the .env file (missing file is ignored)")
	year := flag.Int("year", 0, "Process a single year (0 means the configured range)")
	startYear := flag.Int("start-year", 0, "First year to process (default from config)")
	endYear := flag.Int("end-year", 0, "Last year to process (default from config)")
	dataDir := flag.String("data-dir", "", "Snapshot directory (default from config)")
	dbPath := flag.String("db", "", "SQLite database path (default from config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*envPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	first, last := cfg.StartYear, cfg.EndYear
	if *startYear != 0 {
		first = *startYear
	}
	if *endYear != 0 {
		last = *endYear
	}
	if *year != 0 {
		first, last = *year, *year
	}
	if first > last {
		slog.Error("invalid year range", slog.Int("start", first), slog.Int("end", last))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	combiner, err := store.NewCombiner(cfg.DataDir, logger)
	if err != nil {
		slog.Error("initialising combiner", slog.Any("error", err))
		os.Exit(1)
	}
	sink, err := store.OpenSQLiteSink(cfg.DBPath, cfg.DBTable)
	if err != nil {
		slog.Error("opening database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("close database", slog.Any("error", err))
		}
	}()

	processed := 0
	for y := first; y <= last; y++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("interrupted", slog.Int("year", y))
			break
		}
		files, err := combiner.FindMonthlyFiles(y, 0, 0, 0)
		if err != nil {
			slog.Error("listing snapshots", slog.Int("year", y), slog.Any("error", err))
			os.Exit(1)
		}
		if len(files) == 0 {
			slog.Warn("no snapshot files for year", slog.Int("year", y))
			continue
		}
		rows, err := combiner.Combine(files)
		if err != nil {
			slog.Error("combining snapshots", slog.Int("year", y), slog.Any("error", err))
			os.Exit(1)
		}
		table := fmt.Sprintf("yearly_data_%d", y)
		if err := sink.Replace(ctx, table, rows); err != nil {
			slog.Error("writing table", slog.String("table", table), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("year processed",
			slog.Int("year", y),
			slog.Int("files", len(files)),
			slog.Int("rows", len(rows)),
			slog.String("table", table),
		)
		processed++
	}
	slog.Info("processing finished", slog.Int("years", processed))
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
