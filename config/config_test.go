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
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero max category pages",
			mutate: func(cfg *Config) {
				cfg.MaxCategoryPages = 0
			},
			wantErr: "max category pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "unsupported scheme",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "ftp://example.test/"
			},
			wantErr: "scheme",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "zero time budget",
			mutate: func(cfg *Config) {
				cfg.TimeBudget = 0
			},
			wantErr: "time budget",
		},
		{
			name: "negative budget grace",
			mutate: func(cfg *Config) {
				cfg.BudgetGrace = -time.Second
			},
			wantErr: "budget grace",
		},
		{
			name: "unknown mode",
			mutate: func(cfg *Config) {
				cfg.Mode = "sitemap"
			},
			wantErr: "mode",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 2 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "unknown format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
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
	if cfg.MaxRetries+1 != 3 {
		t.Fatalf("attempts = %d, want 3", cfg.MaxRetries+1)
	}
	if cfg.CacheSize != 100 {
		t.Fatalf("cache size = %d, want 100", cfg.CacheSize)
	}
}

func TestConfigOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://shop.example.test/catalog/?items_per_page=96"
	if got := cfg.Origin(); got != "https://shop.example.test" {
		t.Fatalf("origin = %q", got)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SCRAPER_TEST_INT", " 12 ")
	t.Setenv("SCRAPER_TEST_BAD", "twelve")
	t.Setenv("SCRAPER_TEST_DURATION", "90s")

	if v, ok, err := EnvInt("SCRAPER_TEST_INT"); err != nil || !ok || v != 12 {
		t.Fatalf("EnvInt = %d, %v, %v", v, ok, err)
	}
	if _, _, err := EnvInt("SCRAPER_TEST_BAD"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, ok, err := EnvInt("SCRAPER_TEST_MISSING"); ok || err != nil {
		t.Fatalf("missing variable should be ignored")
	}
	if d, ok, err := EnvDuration("SCRAPER_TEST_DURATION"); err != nil || !ok || d != 90*time.Second {
		t.Fatalf("EnvDuration = %v, %v, %v", d, ok, err)
	}
}
