// Package config loads collector settings from a .env file and the
// process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds collector configuration.
type Config struct {
	APIKey               string
	BaseURL              string
	ResponseType         string
	PayloadKey           string // top-level JSON key wrapping API payloads
	MaxRecordsPerRequest int
	MaxRetries           int
	RetryDelay           time.Duration
	RequestDelay         time.Duration // between consecutive page fetches
	Timeout              time.Duration // per HTTP request
	ContentType          string
	UserAgent            string
	InsecureTLS          bool

	StartYear int
	EndYear   int

	DataDir    string
	LogDir     string
	DBPath     string
	DBTable    string
	LedgerPath string

	Verbose     bool
	MetricsAddr string
}

// DefaultConfig returns the defaults matching the upstream API limits.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://www.lofin365.go.kr/lf/hub/QWGJK",
		ResponseType:         "json",
		PayloadKey:           "QWGJK",
		MaxRecordsPerRequest: 1000,
		MaxRetries:           3,
		RetryDelay:           5 * time.Second,
		RequestDelay:         time.Second,
		Timeout:              30 * time.Second,
		ContentType:          "application/json",
		UserAgent:            "Mozilla/5.0",
		InsecureTLS:          true,
		StartYear:            2016,
		EndYear:              2024,
		DataDir:              "data",
		LogDir:               "logs",
		DBPath:               "local_finance_data.db",
		DBTable:              "local_finance_data",
		LedgerPath:           "data/incomplete_dates.json",
	}
}

// Load builds a Config from defaults, a .env file (when present), and
// environment overrides. A missing .env file is not an error.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("load env file %q: %w", envPath, err)
			}
		}
	}

	cfg := DefaultConfig()
	cfg.APIKey, _ = EnvString("APIKEY")
	if v, ok := EnvString("API_BASE_URL"); ok {
		cfg.BaseURL = v
	}
	if v, ok := EnvString("API_RESPONSE_TYPE"); ok {
		cfg.ResponseType = v
	}
	if v, ok, err := EnvInt("API_MAX_RECORDS_PER_REQUEST"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRecordsPerRequest = v
	}
	if v, ok, err := EnvInt("API_MAX_RETRIES"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRetries = v
	}
	if v, ok, err := EnvInt("API_RETRY_DELAY"); err != nil {
		return nil, err
	} else if ok {
		cfg.RetryDelay = time.Duration(v) * time.Second
	}
	if v, ok, err := EnvInt("DATA_START_YEAR"); err != nil {
		return nil, err
	} else if ok {
		cfg.StartYear = v
	}
	if v, ok, err := EnvInt("DATA_END_YEAR"); err != nil {
		return nil, err
	} else if ok {
		cfg.EndYear = v
	}
	if v, ok := EnvString("DB_NAME"); ok {
		cfg.DBPath = v
	}
	if v, ok := EnvString("DB_TABLE"); ok {
		cfg.DBTable = v
	}
	if v, ok := EnvString("REQUEST_CONTENT_TYPE"); ok {
		cfg.ContentType = v
	}
	if v, ok := EnvString("REQUEST_USER_AGENT"); ok {
		cfg.UserAgent = v
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent. The API key is
// checked separately by the orchestrator so that offline commands still run.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.PayloadKey == "" {
		return fmt.Errorf("payload key cannot be empty")
	}
	if c.MaxRecordsPerRequest <= 0 {
		return fmt.Errorf("max records per request must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.RequestDelay < 0 {
		return fmt.Errorf("request delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.StartYear <= 0 || c.EndYear <= 0 {
		return fmt.Errorf("year bounds must be positive")
	}
	if c.StartYear > c.EndYear {
		return fmt.Errorf("start year (%d) cannot exceed end year (%d)", c.StartYear, c.EndYear)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.DBTable == "" {
		return fmt.Errorf("database table cannot be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger path cannot be empty")
	}
	return nil
}

// EnvString returns the value of an environment variable and whether it was
// set to a non-empty value.
func EnvString(key string) (string, bool) {
	value := os.Getenv(key)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable. The second return reports
// whether the variable was set.
func EnvInt(key string) (int, bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, true, nil
}
