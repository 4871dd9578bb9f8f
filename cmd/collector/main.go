package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/junhkang/lofin-collector/collector"
	"github.com/junhkang/lofin-collector/config"
	"github.com/junhkang/lofin-collector/crawler"
	"github.com/junhkang/lofin-collector/ledger"
	"github.com/junhkang/lofin-collector/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	envPath := flag.String("env", ".env", "Path to the .env file (missing file is ignored)")
	startYear := flag.Int("start-year", 0, "First fiscal year to collect (default from config)")
	endYear := flag.Int("end-year", 0, "Last fiscal year to collect (default from config)")
	startMonth := flag.Int("start-month", 1, "First month of the start year")
	endMonth := flag.Int("end-month", 12, "Last month of the end year")
	dateStr := flag.String("date", "", "Collect a single date (YYYY-MM-DD) instead of a range")
	retryIncomplete := flag.Bool("retry-incomplete", false, "Retry the dates recorded as incomplete")
	allDays := flag.Bool("all-days", false, "Collect every day instead of month-end snapshots")
	interactive := flag.Bool("interactive", false, "Choose the collection mode from a prompt")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg, err := config.Load(*envPath)
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	if *startYear != 0 {
		cfg.StartYear = *startYear
	}
	if *endYear != 0 {
		cfg.EndYear = *endYear
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	req := collector.Request{
		StartYear:       cfg.StartYear,
		EndYear:         cfg.EndYear,
		StartMonth:      *startMonth,
		EndMonth:        *endMonth,
		AllDays:         *allDays,
		RetryIncomplete: *retryIncomplete,
	}
	if *dateStr != "" {
		date, err := time.Parse("2006-01-02", *dateStr)
		if err != nil {
			slog.Error("invalid -date, expected YYYY-MM-DD", slog.Any("error", err))
			os.Exit(1)
		}
		req.Date = &date
	}
	if *interactive {
		req, err = promptRequest(cfg, req)
		if err != nil {
			slog.Error("interactive prompt failed", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if err := validateRequest(req); err != nil {
		slog.Error("invalid collection request", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current unit")
	}()

	cr := crawler.New(cfg, logger)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && cr.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(cr.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
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

	countLog, err := collector.NewCountLog(cfg.LogDir, time.Now())
	if err != nil {
		slog.Error("opening count log", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := countLog.Close(); err != nil {
			slog.Error("close count log", slog.Any("error", err))
		}
	}()

	c := collector.New(cfg, cr, sink, store.NewSnapshotWriter(cfg.DataDir), ledger.New(cfg.LedgerPath), logger, countLog)

	start := time.Now()
	runErr := c.Run(ctx, req)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		slog.Error("collection failed", slog.Any("error", runErr))
		os.Exit(1)
	}
	slog.Info("collection finished", slog.Duration("duration", time.Since(start)))
}

func validateRequest(req collector.Request) error {
	if req.Date != nil || req.RetryIncomplete {
		return nil
	}
	if req.StartYear > req.EndYear {
		return fmt.Errorf("start year %d is after end year %d", req.StartYear, req.EndYear)
	}
	if req.StartMonth < 1 || req.StartMonth > 12 {
		return fmt.Errorf("start month must be 1-12, got %d", req.StartMonth)
	}
	if req.EndMonth < 1 || req.EndMonth > 12 {
		return fmt.Errorf("end month must be 1-12, got %d", req.EndMonth)
	}
	if req.StartYear == req.EndYear && req.StartMonth > req.EndMonth {
		return fmt.Errorf("start month %d is after end month %d", req.StartMonth, req.EndMonth)
	}
	return nil
}

// promptRequest mirrors the flags as a menu for operators who run the
// collector by hand.
func promptRequest(cfg *config.Config, req collector.Request) (collector.Request, error) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Select a collection mode:")
	fmt.Printf("  1. Full range (%d-%d, month-end dates)\n", cfg.StartYear, cfg.EndYear)
	fmt.Println("  2. Single year")
	fmt.Println("  3. Single date")
	fmt.Println("  4. Retry incomplete dates")
	fmt.Print("> ")

	choice, err := readLine(reader)
	if err != nil {
		return req, err
	}
	switch choice {
	case "1", "":
		return req, nil
	case "2":
		fmt.Print("Year: ")
		line, err := readLine(reader)
		if err != nil {
			return req, err
		}
		year, err := strconv.Atoi(line)
		if err != nil {
			return req, fmt.Errorf("invalid year %q", line)
		}
		req.StartYear, req.EndYear = year, year
		req.StartMonth, req.EndMonth = 1, 12
		return req, nil
	case "3":
		fmt.Print("Date (YYYY-MM-DD): ")
		line, err := readLine(reader)
		if err != nil {
			return req, err
		}
		date, err := time.Parse("2006-01-02", line)
		if err != nil {
			return req, fmt.Errorf("invalid date %q", line)
		}
		req.Date = &date
		return req, nil
	case "4":
		req.RetryIncomplete = true
		return req, nil
	default:
		return req, fmt.Errorf("unknown choice %q", choice)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
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
