package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

// ResponseCache stores successful response bodies keyed by exact URL.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Add(key string, value []byte) bool
}

// NewResponseCache returns an LRU cache holding at most size bodies.
func NewResponseCache(size int) (*lru.Cache[string, []byte], error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return cache, nil
}

// FetchStats is a snapshot of fetcher counters.
type FetchStats struct {
	Requests     int
	Retries      int
	Errors       int
	CacheHits    int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// Fetcher issues GET requests through a colly collector with bounded retries
// and an optional response cache.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	cache     ResponseCache
	metrics   *Metrics

	requests  int64
	retries   int64
	errors    int64
	cacheHits int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewFetcher builds a fetcher. A nil cache disables caching.
func NewFetcher(cfg *config.Config, cache ResponseCache, metrics *Metrics) *Fetcher {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.Parallelism,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	return &Fetcher{
		cfg:          cfg,
		collector:    collector,
		cache:        cache,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Attempts returns the number of HTTP requests issued so far.
func (f *Fetcher) Attempts() int {
	return int(atomic.LoadInt64(&f.requests))
}

// Fetch returns the body of rawURL. Failed attempts are retried up to
// MaxRetries times with capped exponential backoff; after that the error
// wraps ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.cache != nil {
		if body, ok := f.cache.Get(rawURL); ok {
			atomic.AddInt64(&f.cacheHits, 1)
			f.metrics.IncCache(true)
			return body, nil
		}
		f.metrics.IncCache(false)
	}

	attempts := f.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			atomic.AddInt64(&f.retries, 1)
			f.metrics.IncRetries()
			if err := sleepContext(ctx, f.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		body, status, err := f.doContext(ctx, rawURL)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			if f.cache != nil {
				f.cache.Add(rawURL, body)
			}
			return body, nil
		}

		lastErr = classifyError(err, status)
		category := errorTypeLabel(lastErr)
		atomic.AddInt64(&f.errors, 1)
		f.metrics.IncError(category)
		f.mu.Lock()
		f.errorsByType[category]++
		f.mu.Unlock()

		slog.Debug("fetch attempt failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Int("status", status),
			slog.String("category", category),
			slog.Any("error", err),
		)
	}

	f.mu.Lock()
	f.failedURLs = append(f.failedURLs, rawURL)
	f.mu.Unlock()
	slog.Warn("giving up on url",
		slog.String("url", rawURL),
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr),
	)
	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrFetchFailed, rawURL, attempts, lastErr)
}

type fetchResult struct {
	body   []byte
	status int
	err    error
}

// doContext runs do in the background and stops waiting for it once ctx is
// done. colly does not carry a context into the request, so an abandoned
// request finishes on its own within the request timeout.
func (f *Fetcher) doContext(ctx context.Context, rawURL string) ([]byte, int, error) {
	done := make(chan fetchResult, 1)
	go func() {
		body, status, err := f.do(rawURL)
		done <- fetchResult{body: body, status: status, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-done:
		return r.body, r.status, r.err
	}
}

// do performs one synchronous request on a clone of the base collector. The
// clone shares the transport but owns its callbacks.
func (f *Fetcher) do(rawURL string) ([]byte, int, error) {
	c := f.collector.Clone()

	var (
		body   []byte
		status int
		start  = time.Now()
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	atomic.AddInt64(&f.requests, 1)
	err := c.Visit(rawURL)
	f.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		f.metrics.IncRequest("error")
		return nil, status, err
	}
	f.metrics.IncRequest("ok")
	return body, status, nil
}

func (f *Fetcher) backoff(retry int) time.Duration {
	if retry <= 0 {
		retry = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(retry-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Stats returns a copy of the fetcher counters.
func (f *Fetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	failed := make([]string, len(f.failedURLs))
	copy(failed, f.failedURLs)
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	return FetchStats{
		Requests:     int(atomic.LoadInt64(&f.requests)),
		Retries:      int(atomic.LoadInt64(&f.retries)),
		Errors:       int(atomic.LoadInt64(&f.errors)),
		CacheHits:    int(atomic.LoadInt64(&f.cacheHits)),
		FailedURLs:   failed,
		ErrorsByType: byType,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
