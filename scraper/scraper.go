package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
	"github.com/aluiziolira/go-scrape-jarvis/parser"
	"github.com/aluiziolira/go-scrape-jarvis/pipeline"
)

// Scraper owns every piece of per-run state: the response cache, the URL
// normalizer memo and the visited set. Build a new one for each run.
type Scraper struct {
	cfg      *config.Config
	profile  *config.Profile
	Fetcher  *Fetcher
	Metrics  *Metrics
	norm     *parser.Normalizer
	visited  *VisitedSet
	walker   *CategoryWalker
	products *ProductExtractor

	mu         sync.Mutex
	deadline   time.Time
	categories []string
}

// CrawlResult reports how far Crawl got. Processed counts the URLs of every
// chunk that was attempted, whether or not the product was written.
// Truncated means the time budget ran out; Interrupted means the caller's
// context was canceled.
type CrawlResult struct {
	Processed   int
	Truncated   bool
	Interrupted bool
}

// NewScraper wires the fetcher, walker and extractor for one run.
func NewScraper(cfg *config.Config, profile *config.Profile) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("site profile is required")
	}

	metrics := NewMetrics()

	var cache ResponseCache
	if cfg.CacheSize > 0 {
		c, err := NewResponseCache(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		cache = c
	}

	fetcher := NewFetcher(cfg, cache, metrics)
	norm := parser.NewNormalizer(cfg.Origin())
	visited := NewVisitedSet()

	return &Scraper{
		cfg:      cfg,
		profile:  profile,
		Fetcher:  fetcher,
		Metrics:  metrics,
		norm:     norm,
		visited:  visited,
		walker:   NewCategoryWalker(fetcher, cfg, profile, norm, visited, metrics),
		products: NewProductExtractor(fetcher, profile, norm, metrics),
	}, nil
}

// SetDeadline bounds discovery and crawling. A zero time disables the budget.
func (s *Scraper) SetDeadline(deadline time.Time) {
	s.mu.Lock()
	s.deadline = deadline
	s.mu.Unlock()
}

func (s *Scraper) deadlineTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *Scraper) expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.deadline.IsZero() && time.Now().After(s.deadline)
}

// Categories returns the category listing URLs resolved by Discover.
func (s *Scraper) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.categories))
	copy(out, s.categories)
	return out
}

// PagesWalked returns the number of listing pages fetched.
func (s *Scraper) PagesWalked() int {
	return s.walker.PagesWalked()
}

// Discover resolves the category set and walks each category, returning the
// deduplicated product URLs in discovery order.
func (s *Scraper) Discover(ctx context.Context) ([]string, error) {
	categories, err := s.resolveCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.categories = categories
	s.mu.Unlock()

	slog.Info("categories resolved", slog.Int("count", len(categories)), slog.String("mode", s.cfg.Mode))

	urls := []string{}
	for i, category := range categories {
		if s.expired() {
			slog.Warn("time budget exhausted during discovery",
				slog.Int("categories_walked", i),
				slog.Int("categories_total", len(categories)),
			)
			break
		}
		result, err := s.walker.Walk(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("walk category %s: %w", category, err)
		}
		urls = append(urls, result.Products...)
		slog.Info("category walked",
			slog.String("url", category),
			slog.Int("pages", result.Pages),
			slog.Int("products", len(result.Products)),
			slog.Bool("capped", result.Capped),
		)
	}
	return urls, nil
}

// resolveCategories returns the listing URLs to walk. In menu mode these are
// the marker-filtered submenu links followed by the root; in root mode only
// the root.
func (s *Scraper) resolveCategories(ctx context.Context) ([]string, error) {
	root, err := s.listingURL(s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("build root listing url: %w", err)
	}
	if s.cfg.Mode == config.ModeRoot {
		return []string{root}, nil
	}

	categories := []string{}
	seen := map[string]struct{}{root: {}}

	body, err := s.Fetcher.Fetch(ctx, root)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("menu page unavailable, walking root only", slog.String("url", root), slog.Any("error", err))
		return []string{root}, nil
	}
	page, err := parser.NewPage(root, body)
	if err != nil {
		slog.Warn("menu page unparseable, walking root only", slog.String("url", root), slog.Any("error", err))
		return []string{root}, nil
	}

	for _, link := range parser.CategoryLinks(page, s.profile, s.norm) {
		listing, err := s.listingURL(link)
		if err != nil {
			slog.Debug("skipping category link", slog.String("href", link), slog.Any("error", err))
			continue
		}
		if _, dup := seen[listing]; dup {
			continue
		}
		seen[listing] = struct{}{}
		categories = append(categories, listing)
	}
	return append(categories, root), nil
}

func (s *Scraper) listingURL(raw string) (string, error) {
	return parser.ListingURL(raw, s.profile.ItemsPerPageParam, s.cfg.ItemsPerPage, s.profile.PageParam, 1)
}

// SelectRange maps the 1-based inclusive [start, end] onto urls. end is
// clamped to the number of URLs; a start beyond it is an error.
func SelectRange(urls []string, start, end int) ([]string, error) {
	total := len(urls)
	if start < 1 || end < start {
		return nil, &RangeError{Start: start, End: end, Total: total, Err: ErrInvalidRange}
	}
	if total == 0 {
		return nil, &RangeError{Start: start, End: end, Total: total, Err: ErrNoProducts}
	}
	if start > total {
		return nil, &RangeError{Start: start, End: end, Total: total, Err: ErrStartOutOfRange}
	}
	if end > total {
		end = total
	}
	return urls[start-1 : end], nil
}

// Crawl extracts urls in chunks of ChunkSize, at most Parallelism at a time,
// and pushes each chunk to p in input order. The time budget is checked
// before every chunk; once it is spent the remaining URLs are skipped and the
// result is marked truncated. Fetches still running BudgetGrace after the
// deadline are abandoned, so a slow chunk cannot hold the run past its budget.
func (s *Scraper) Crawl(ctx context.Context, urls []string, p *pipeline.Pipeline) (CrawlResult, error) {
	var result CrawlResult
	chunkSize := s.cfg.ChunkSize

	crawlCtx := ctx
	if deadline := s.deadlineTime(); !deadline.IsZero() {
		var cancel context.CancelFunc
		crawlCtx, cancel = context.WithDeadline(ctx, deadline.Add(s.cfg.BudgetGrace))
		defer cancel()
	}

	for offset := 0; offset < len(urls); offset += chunkSize {
		if ctx.Err() != nil || s.expired() {
			s.markStopped(ctx, &result, len(urls)-offset)
			break
		}

		chunk := urls[offset:min(offset+chunkSize, len(urls))]
		products := make([]*models.Product, len(chunk))

		var g errgroup.Group
		g.SetLimit(s.cfg.Parallelism)
		for i, u := range chunk {
			g.Go(func() error {
				products[i] = s.products.Extract(crawlCtx, u)
				return nil
			})
		}
		_ = g.Wait()

		if err := p.Process(products...); err != nil {
			return result, fmt.Errorf("pipeline process: %w", err)
		}
		result.Processed += len(chunk)

		slog.Debug("crawl progress",
			slog.Int("processed", result.Processed),
			slog.Int("total", len(urls)),
		)

		if crawlCtx.Err() != nil {
			s.markStopped(ctx, &result, len(urls)-result.Processed)
			break
		}
	}
	return result, nil
}

func (s *Scraper) markStopped(ctx context.Context, result *CrawlResult, remaining int) {
	if ctx.Err() != nil {
		result.Interrupted = true
	} else {
		result.Truncated = true
	}
	slog.Warn("crawl stopped early",
		slog.Int("processed", result.Processed),
		slog.Int("remaining", remaining),
		slog.Bool("budget_exhausted", result.Truncated),
		slog.Bool("interrupted", result.Interrupted),
	)
}
