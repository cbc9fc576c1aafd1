package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-jarvis/models"
	"github.com/aluiziolira/go-scrape-jarvis/pipeline"
)

// Export runs one complete crawl of the products in the 1-based inclusive
// range [start, end] and writes them to the configured output. Range and
// discovery problems are reported before any output file is created. Running
// out of time budget or being canceled mid-crawl is not an error: the partial
// file is kept and the summary records how far the run got.
func (s *Scraper) Export(ctx context.Context, start, end int) (*models.CrawlSummary, error) {
	began := time.Now()
	s.SetDeadline(began.Add(s.cfg.TimeBudget))

	summary := &models.CrawlSummary{
		RunID:     uuid.NewString(),
		StartTime: began,
	}
	log := slog.With(slog.String("run_id", summary.RunID))

	urls, err := s.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover products: %w", err)
	}
	summary.TotalFound = len(urls)
	summary.Categories = len(s.Categories())

	selected, err := SelectRange(urls, start, end)
	if err != nil {
		return nil, err
	}
	summary.RangeProcessed = [2]int{start, start + len(selected) - 1}
	log.Info("range selected",
		slog.Int("total_found", summary.TotalFound),
		slog.Int("from", summary.RangeProcessed[0]),
		slog.Int("to", summary.RangeProcessed[1]),
	)

	writer, err := pipeline.NewWriter(s.cfg.OutputFormat, s.cfg.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}

	var (
		out    pipeline.OutputWriter = writer
		images *pipeline.ImageRecorder
	)
	if s.cfg.ImagesFile != "" {
		images = pipeline.NewImageRecorder(writer)
		out = images
	}

	// The pipeline outlives a cancel so the chunks already fetched still reach
	// the file.
	p := pipeline.NewPipeline(context.WithoutCancel(ctx), out, s.cfg)
	p.Start()
	if s.cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	crawl, crawlErr := s.Crawl(ctx, selected, p)
	closeErr := p.Close()
	var validateErr error
	if closeErr == nil && p.Written() > 0 {
		validateErr = writer.Validate()
	}
	writerErr := writer.Close()
	if err := errors.Join(crawlErr, closeErr, validateErr, writerErr); err != nil {
		return nil, fmt.Errorf("write output %s: %w", s.cfg.OutputFile, err)
	}

	if s.cfg.CategoriesFile != "" {
		if err := pipeline.WriteCategories(s.cfg.CategoriesFile, s.Categories()); err != nil {
			return nil, err
		}
	}
	if images != nil {
		if err := pipeline.WriteImages(s.cfg.ImagesFile, images.Images()); err != nil {
			return nil, err
		}
	}
	if crawl.Truncated || crawl.Interrupted {
		summary.RangeProcessed[1] = start + crawl.Processed - 1
	}

	stats := s.Fetcher.Stats()
	summary.ProductsWritten = p.Written()
	summary.TruncatedByTimeout = crawl.Truncated
	summary.Interrupted = crawl.Interrupted
	summary.PagesWalked = s.PagesWalked()
	summary.RequestCount = stats.Requests
	summary.RetryCount = stats.Retries
	summary.ErrorCount = stats.Errors
	summary.FailedURLs = stats.FailedURLs
	summary.ErrorsByType = stats.ErrorsByType
	summary.EndTime = time.Now()
	summary.ElapsedSeconds = summary.EndTime.Sub(began).Seconds()

	if s.cfg.SummaryFile != "" {
		if err := pipeline.WriteSummary(s.cfg.SummaryFile, summary); err != nil {
			return nil, err
		}
	}

	log.Info("export finished",
		slog.Int("written", summary.ProductsWritten),
		slog.Bool("truncated", summary.TruncatedByTimeout),
		slog.Bool("interrupted", summary.Interrupted),
		slog.Float64("elapsed_seconds", summary.ElapsedSeconds),
	)
	return summary, nil
}

// ExportCategories resolves the category listing URLs and writes them to
// filename without walking any category or fetching a product.
func (s *Scraper) ExportCategories(ctx context.Context, filename string) ([]string, error) {
	categories, err := s.resolveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	s.mu.Lock()
	s.categories = categories
	s.mu.Unlock()

	if err := pipeline.WriteCategories(filename, categories); err != nil {
		return nil, err
	}
	slog.Info("categories exported",
		slog.Int("count", len(categories)),
		slog.String("file", filename),
	)
	return categories, nil
}
