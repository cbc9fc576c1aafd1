package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one crawl run.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	PagesWalkedTotal  prometheus.Counter
	ProductsExtracted *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_requests_total",
			Help: "HTTP requests issued by the fetcher, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jarvis_scraper_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_cache_lookups_total",
			Help: "Response cache lookups by result.",
		},
		[]string{"result"},
	)
	pagesWalked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_listing_pages_total",
			Help: "Category listing pages fetched.",
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_products_total",
			Help: "Product pages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_retries_total",
			Help: "Retry attempts issued after a failed fetch.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jarvis_scraper_errors_total",
			Help: "Failed fetch attempts by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, cacheLookups, pagesWalked, products, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		CacheLookups:      cacheLookups,
		PagesWalkedTotal:  pagesWalked,
		ProductsExtracted: products,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest counts a request with its outcome ("ok" or "error").
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncCache counts a cache hit or miss.
func (m *Metrics) IncCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncPages counts a fetched listing page.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesWalkedTotal.Inc()
}

// IncProducts counts a product page by outcome ("extracted" or "failed").
func (m *Metrics) IncProducts(outcome string) {
	if m == nil {
		return
	}
	m.ProductsExtracted.WithLabelValues(outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
