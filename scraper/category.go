package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/parser"
)

// PageFetcher returns the body of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// VisitedSet records product URLs already claimed during a run.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Add inserts u and reports whether it was new. Check and insert happen
// under one lock.
func (v *VisitedSet) Add(u string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[u]; ok {
		return false
	}
	v.seen[u] = struct{}{}
	return true
}

// Len returns the number of recorded URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// CategoryResult is the outcome of walking one category.
type CategoryResult struct {
	URL      string
	Pages    int
	Products []string
	Capped   bool
}

// CategoryWalker paginates category listings and collects product URLs.
type CategoryWalker struct {
	fetcher  PageFetcher
	profile  *config.Profile
	norm     *parser.Normalizer
	visited  *VisitedSet
	perPage  int
	maxPages int
	metrics  *Metrics

	pages int64
}

// NewCategoryWalker builds a walker sharing visited with the rest of the run.
func NewCategoryWalker(fetcher PageFetcher, cfg *config.Config, profile *config.Profile, norm *parser.Normalizer, visited *VisitedSet, metrics *Metrics) *CategoryWalker {
	return &CategoryWalker{
		fetcher:  fetcher,
		profile:  profile,
		norm:     norm,
		visited:  visited,
		perPage:  cfg.ItemsPerPage,
		maxPages: cfg.MaxCategoryPages,
		metrics:  metrics,
	}
}

// PagesWalked returns the number of listing pages fetched by this walker.
func (w *CategoryWalker) PagesWalked() int {
	return int(atomic.LoadInt64(&w.pages))
}

// Walk fetches listing pages of categoryURL until no has-next signal fires,
// a page fails, a page lists no products, or the page cap is reached.
// Product URLs already in the visited set are skipped.
func (w *CategoryWalker) Walk(ctx context.Context, categoryURL string) (CategoryResult, error) {
	result := CategoryResult{URL: categoryURL, Products: []string{}}

	for page := 1; page <= w.maxPages; page++ {
		pageURL, err := parser.ListingURL(categoryURL, w.profile.ItemsPerPageParam, w.perPage, w.profile.PageParam, page)
		if err != nil {
			return result, fmt.Errorf("build listing url for %s: %w", categoryURL, err)
		}

		body, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			slog.Warn("listing page skipped",
				slog.String("url", pageURL),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return result, nil
		}
		result.Pages++
		atomic.AddInt64(&w.pages, 1)
		w.metrics.IncPages()

		doc, err := parser.NewPage(pageURL, body)
		if err != nil {
			slog.Warn("listing page unparseable", slog.String("url", pageURL), slog.Any("error", err))
			return result, nil
		}

		links := parser.ProductLinks(doc, w.profile, w.norm)
		added := 0
		for _, link := range links {
			if w.visited.Add(link) {
				result.Products = append(result.Products, link)
				added++
			}
		}

		signals := parser.DetectPagination(doc, w.profile, len(links))
		slog.Debug("listing page walked",
			slog.String("url", pageURL),
			slog.Int("page", page),
			slog.Int("links", len(links)),
			slog.Int("new", added),
			slog.Bool("next_control", signals.NextControl),
			slog.Bool("item_range", signals.ItemRange),
			slog.Bool("full_page", signals.FullPage),
			slog.Bool("rel_next", signals.RelNext),
		)

		if len(links) == 0 || !signals.HasNext() {
			return result, nil
		}
		if page == w.maxPages {
			result.Capped = true
			slog.Warn("category page cap reached",
				slog.String("category", categoryURL),
				slog.Int("max_pages", w.maxPages),
			)
		}
	}
	return result, nil
}
