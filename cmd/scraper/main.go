package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
	"github.com/aluiziolira/go-scrape-jarvis/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()

	baseDefault := defaultCfg.BaseURL
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		baseDefault = value
	}
	parallelDefault := envIntOr("SCRAPER_PARALLEL", defaultCfg.Parallelism)
	maxPagesDefault := envIntOr("SCRAPER_MAX_PAGES", defaultCfg.MaxCategoryPages)
	budgetDefault := envDurationOr("SCRAPER_TIME_BUDGET", defaultCfg.TimeBudget)
	timeoutDefault := envDurationOr("SCRAPER_TIMEOUT", defaultCfg.Timeout)
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	profileDefault := defaultCfg.ProfilePath
	if value, ok := config.EnvString("SCRAPER_PROFILE"); ok {
		profileDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	start := flag.Int("start", 1, "First product to export (1-based)")
	end := flag.Int("end", 10000, "Last product to export (inclusive, clamped to the total found)")
	baseURL := flag.String("base-url", baseDefault, "Root category listing URL")
	mode := flag.String("mode", defaultCfg.Mode, "Category discovery: menu or root")
	parallelism := flag.Int("parallel", parallelDefault, "Number of concurrent product fetches")
	chunkSize := flag.Int("chunk", defaultCfg.ChunkSize, "Product URLs per crawl chunk")
	maxPages := flag.Int("max-pages", maxPagesDefault, "Maximum listing pages per category")
	timeout := flag.Duration("timeout", timeoutDefault, "Per-request timeout")
	timeBudget := flag.Duration("time-budget", budgetDefault, "Wall-clock budget for the whole run")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Retries per URL after the first attempt")
	retryBackoff := flag.Duration("retry-backoff", defaultCfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaultCfg.RetryBackoffMax, "Maximum retry backoff")
	cacheSize := flag.Int("cache", defaultCfg.CacheSize, "Response cache entries (0 disables)")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	categoriesFile := flag.String("categories-out", "", "Write the resolved category URLs to this CSV file")
	summaryFile := flag.String("summary", "", "Write the run summary as JSON to this file")
	imagesFile := flag.String("images-out", "", "Write every exported image URL, one per line, to this file")
	categoriesOnly := flag.Bool("categories-only", false, "Resolve the category list, write it to -categories-out and exit")
	budgetGrace := flag.Duration("budget-grace", defaultCfg.BudgetGrace, "How long in-flight fetches may run past the time budget")
	profilePath := flag.String("profile", profileDefault, "Site profile YAML (embedded Jarvis profile when empty)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := config.DefaultConfig()
	cfg.BaseURL = *baseURL
	cfg.Mode = strings.ToLower(*mode)
	cfg.Parallelism = *parallelism
	cfg.ChunkSize = *chunkSize
	cfg.MaxCategoryPages = *maxPages
	cfg.Timeout = *timeout
	cfg.TimeBudget = *timeBudget
	cfg.BudgetGrace = *budgetGrace
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.CacheSize = *cacheSize
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.CategoriesFile = *categoriesFile
	cfg.SummaryFile = *summaryFile
	cfg.ImagesFile = *imagesFile
	cfg.ProfilePath = *profilePath
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *categoriesOnly && cfg.CategoriesFile == "" {
		slog.Error("invalid configuration", slog.String("error", "-categories-only requires -categories-out"))
		os.Exit(1)
	}

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		slog.Error("loading site profile", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting export",
		slog.String("base_url", cfg.BaseURL),
		slog.String("mode", cfg.Mode),
		slog.Int("start", *start),
		slog.Int("end", *end),
		slog.Int("workers", cfg.Parallelism),
		slog.Duration("time_budget", cfg.TimeBudget),
	)

	s, err := scraper.NewScraper(cfg, profile)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, writing what has been fetched")
	}()

	if *categoriesOnly {
		categories, err := s.ExportCategories(ctx, cfg.CategoriesFile)
		if err != nil {
			slog.Error("category export failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("Wrote %d categories to %s\n", len(categories), cfg.CategoriesFile)
		return
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	summary, err := s.Export(ctx, *start, *end)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if err != nil {
		var rangeErr *scraper.RangeError
		if errors.As(err, &rangeErr) {
			fmt.Fprintln(os.Stderr, rangeErr.Error())
		}
		slog.Error("export failed", slog.Any("error", err))
		os.Exit(1)
	}

	printSummary(summary, cfg.OutputFile)
}

func envIntOr(key string, fallback int) int {
	value, ok, err := config.EnvInt(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	if !ok {
		return fallback
	}
	return value
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	value, ok, err := config.EnvDuration(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s: %v\n", key, err)
		os.Exit(1)
	}
	if !ok {
		return fallback
	}
	return value
}

func printSummary(summary *models.CrawlSummary, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	switch {
	case summary.Interrupted:
		fmt.Println("Export interrupted (partial output)")
	case summary.TruncatedByTimeout:
		fmt.Println("Export stopped at the time budget (partial output)")
	default:
		fmt.Println("Export complete")
	}

	fmt.Printf("  Run ID:        %s\n", summary.RunID)
	fmt.Printf("  Total found:   %d\n", summary.TotalFound)
	fmt.Printf("  Range:         %d-%d\n", summary.RangeProcessed[0], summary.RangeProcessed[1])
	fmt.Printf("  Written:       %d\n", summary.ProductsWritten)
	fmt.Printf("  Categories:    %d (%d listing pages)\n", summary.Categories, summary.PagesWalked)
	successRate := 0.0
	if summary.RequestCount > 0 {
		successRate = float64(summary.RequestCount-summary.ErrorCount) / float64(summary.RequestCount) * 100
	}
	fmt.Printf("  Success rate:  %.2f%%\n", successRate)
	fmt.Printf("  Errors:        %d\n", summary.ErrorCount)
	fmt.Printf("  Retries:       %d\n", summary.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(summary.FailedURLs))
	if len(summary.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", summary.ErrorsByType)
	}
	fmt.Printf("  Elapsed:       %.2fs\n", summary.ElapsedSeconds)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
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
