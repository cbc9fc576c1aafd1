package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
	"github.com/aluiziolira/go-scrape-jarvis/parser"
)

// ProductExtractor fetches product pages and applies the profile's field table.
type ProductExtractor struct {
	fetcher PageFetcher
	profile *config.Profile
	norm    *parser.Normalizer
	metrics *Metrics
	now     func() time.Time
}

// NewProductExtractor builds an extractor.
func NewProductExtractor(fetcher PageFetcher, profile *config.Profile, norm *parser.Normalizer, metrics *Metrics) *ProductExtractor {
	return &ProductExtractor{
		fetcher: fetcher,
		profile: profile,
		norm:    norm,
		metrics: metrics,
		now:     time.Now,
	}
}

// Extract never fails: an unreachable or unparseable page yields a product
// that carries only its URL, which the pipeline drops as invalid.
func (e *ProductExtractor) Extract(ctx context.Context, productURL string) *models.Product {
	body, err := e.fetcher.Fetch(ctx, productURL)
	if err != nil {
		e.metrics.IncProducts("failed")
		slog.Warn("product skipped", slog.String("url", productURL), slog.Any("error", err))
		return models.NewProduct(productURL)
	}

	page, err := parser.NewPage(productURL, body)
	if err != nil {
		e.metrics.IncProducts("failed")
		slog.Warn("product page unparseable", slog.String("url", productURL), slog.Any("error", err))
		return models.NewProduct(productURL)
	}

	product := parser.ExtractProduct(page, e.profile, e.norm)
	product.ScrapedAt = e.now()
	e.metrics.IncProducts("extracted")
	return product
}
