package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "empty payload key",
			mutate: func(cfg *Config) {
				cfg.PayloadKey = ""
			},
			wantErr: "payload key",
		},
		{
			name: "zero page size",
			mutate: func(cfg *Config) {
				cfg.MaxRecordsPerRequest = 0
			},
			wantErr: "max records",
		},
		{
			name: "negative retries",
			mutate: func(cfg *Config) {
				cfg.MaxRetries = -1
			},
			wantErr: "max retries",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "inverted year range",
			mutate: func(cfg *Config) {
				cfg.StartYear = 2024
				cfg.EndYear = 2016
			},
			wantErr: "start year",
		},
		{
			name: "empty ledger path",
			mutate: func(cfg *Config) {
				cfg.LedgerPath = ""
			},
			wantErr: "ledger path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APIKEY", "test-key")
	t.Setenv("API_MAX_RETRIES", "7")
	t.Setenv("API_RETRY_DELAY", "2")
	t.Setenv("DB_TABLE", "finance_rows")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIKey != "test-key" {
		t.Fatalf("APIKey = %q, want %q", cfg.APIKey, "test-key")
	}
	if cfg.MaxRetries != 7 {
		t.Fatalf("MaxRetries = %d, want 7", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Fatalf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.DBTable != "finance_rows" {
		t.Fatalf("DBTable = %q, want %q", cfg.DBTable, "finance_rows")
	}
}

func TestLoadInvalidInt(t *testing.T) {
	t.Setenv("API_MAX_RETRIES", "lots")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric API_MAX_RETRIES")
	}
}
