package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Category discovery modes.
const (
	ModeMenu = "menu"
	ModeRoot = "root"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL            string
	Mode               string // menu or root
	ItemsPerPage       int
	MaxCategoryPages   int
	Parallelism        int
	ChunkSize          int
	BatchSize          int
	PipelineBufferSize int
	CacheSize          int
	Timeout            time.Duration
	TimeBudget         time.Duration
	BudgetGrace        time.Duration // in-flight fetches are abandoned this long after the budget
	MaxRetries         int
	RetryBackoff       time.Duration
	RetryBackoffMax    time.Duration
	OutputFile         string
	OutputFormat       string // csv, json, or dual
	CategoriesFile     string
	SummaryFile        string
	ImagesFile         string
	ProfilePath        string
	UserAgent          string
	Verbose            bool
	MetricsAddr        string
}

// DefaultConfig returns the defaults for the Jarvis storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://www.jarvis.com.tw/aqara智能居家/",
		Mode:               ModeMenu,
		ItemsPerPage:       96,
		MaxCategoryPages:   20,
		Parallelism:        4,
		ChunkSize:          8,
		BatchSize:          50,
		PipelineBufferSize: 256,
		CacheSize:          100,
		Timeout:            30 * time.Second,
		TimeBudget:         240 * time.Second,
		BudgetGrace:        5 * time.Second,
		MaxRetries:         2,
		RetryBackoff:       500 * time.Millisecond,
		RetryBackoffMax:    500 * time.Millisecond,
		OutputFile:         "output/jarvis_products.csv",
		OutputFormat:       "csv",
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Verbose:            false,
	}
}

// Origin returns scheme://host of the base URL.
func (c *Config) Origin() string {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base URL scheme must be http or https")
	}

	if c.Mode != ModeMenu && c.Mode != ModeRoot {
		return fmt.Errorf("mode must be %s or %s", ModeMenu, ModeRoot)
	}
	if c.ItemsPerPage <= 0 {
		return fmt.Errorf("items per page must be positive")
	}
	if c.MaxCategoryPages <= 0 {
		return fmt.Errorf("max category pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.TimeBudget <= 0 {
		return fmt.Errorf("time budget must be positive")
	}
	if c.BudgetGrace < 0 {
		return fmt.Errorf("budget grace cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// EnvString returns the trimmed value of an environment variable.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses an integer environment variable.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses a duration environment variable such as "240s".
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
