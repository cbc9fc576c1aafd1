package scraper

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

const siteOrigin = "http://example.test"

// mockSite serves canned pages keyed by path and sorted query, so callers do
// not depend on the exact URL spelling the collector sends.
type mockSite struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]int
	status   map[string]int
	hits     map[string]int
	delays   map[string]time.Duration
}

func newMockSite() *mockSite {
	return &mockSite{
		pages:    make(map[string]string),
		failures: make(map[string]int),
		status:   make(map[string]int),
		hits:     make(map[string]int),
		delays:   make(map[string]time.Duration),
	}
}

func siteKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if q := u.Query().Encode(); q != "" {
		return path + "?" + q
	}
	return path
}

func (m *mockSite) page(raw, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[siteKey(raw)] = body
}

// failFirst makes the next n requests for raw answer 500.
func (m *mockSite) failFirst(raw string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[siteKey(raw)] = n
}

func (m *mockSite) alwaysStatus(raw string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[siteKey(raw)] = status
}

// slow holds every response for raw back by d.
func (m *mockSite) slow(raw string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[siteKey(raw)] = d
}

func (m *mockSite) hitCount(raw string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[siteKey(raw)]
}

func (m *mockSite) totalHits(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for k, v := range m.hits {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total
}

func (m *mockSite) respond(req *http.Request) (*http.Response, error) {
	key := siteKey(req.URL.String())

	m.mu.Lock()
	m.hits[key]++
	delay := m.delays[key]
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	if status, ok := m.status[key]; ok {
		m.mu.Unlock()
		return httpmock.NewStringResponse(status, ""), nil
	}
	if m.failures[key] > 0 {
		m.failures[key]--
		m.mu.Unlock()
		return httpmock.NewStringResponse(http.StatusInternalServerError, "boom"), nil
	}
	body, ok := m.pages[key]
	m.mu.Unlock()

	if !ok {
		return httpmock.NewStringResponse(http.StatusNotFound, "missing"), nil
	}
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp, nil
}

func (m *mockSite) transport() *httpmock.MockTransport {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(m.respond)
	return transport
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = siteOrigin + "/aqara/"
	cfg.Timeout = 5 * time.Second
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = time.Millisecond
	cfg.OutputFile = t.TempDir() + "/products.csv"
	return cfg
}

func testProfile(t *testing.T) *config.Profile {
	t.Helper()
	profile, err := config.DefaultProfile()
	if err != nil {
		t.Fatalf("default profile: %v", err)
	}
	return profile
}

func newTestScraper(t *testing.T, cfg *config.Config, site *mockSite) *Scraper {
	t.Helper()
	s, err := NewScraper(cfg, testProfile(t))
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	s.Fetcher.WithTransport(site.transport())
	return s
}

func listingURL(category string, page int) string {
	u := siteOrigin + category + "?items_per_page=96"
	if page > 1 {
		u += fmt.Sprintf("&page=%d", page)
	}
	return u
}

func productURL(id int) string {
	return fmt.Sprintf("%s/p/aqara-item-%d.html", siteOrigin, id)
}

type listing struct {
	products []int
	hasNext  bool
	menu     []string
}

func buildListingPage(l listing) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Listing</title></head><body>")
	if len(l.menu) > 0 {
		b.WriteString("<ul class=\"ty-menu__items\">")
		for _, item := range l.menu {
			b.WriteString(item)
		}
		b.WriteString("</ul>")
	}
	b.WriteString("<div class=\"grid-list\">")
	for _, id := range l.products {
		fmt.Fprintf(&b, "<div class=\"ty-grid-list__item\"><a class=\"product-title\" href=\"/p/aqara-item-%d.html\">Item %d</a></div>", id, id)
	}
	b.WriteString("</div>")
	if l.hasNext {
		b.WriteString("<div class=\"ty-pagination\"><a class=\"ty-pagination__next\" href=\"#\">Next</a></div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func buildProductPage(id int) string {
	return fmt.Sprintf(`<html><head><title>Aqara Item %[1]d | Jarvis</title></head><body>
<h1 class="ty-product-block-title">Aqara Item %[1]d【新品】</h1>
<div class="ty-product-block__description-short">Short %[1]d</div>
<meta itemprop="price" content="%[1]d,000">
<span class="ty-strike"><span class="ty-list-price">NT$%[1]d,200</span></span>
<img src="/images/item-%[1]d.png" alt="item">
<img src="/images/item-%[1]d.png" alt="item thumb">
<img src="/images/item-%[1]d.png">
<span style="x">商品注意事項</span><span style="x">Note %[1]d</span>
<span style="x">商品Q&amp;A</span><span style="background-color:#eee">Q%[1]d?</span><span style="x">A%[1]d</span>
</body></html>`, id)
}

// storefront registers a menu root with two Aqara categories and one
// unrelated category. Discovery order is sensors (1-5), switches (6-7),
// root (8); products 1 and 2 are also linked from later listings.
func storefront(site *mockSite) {
	menu := []string{
		`<li><a class="ty-menu__submenu-link" href="/aqara-sensors/">Aqara 感測器</a></li>`,
		`<li><a class="ty-menu__submenu-link" href="/aqara-switches/">Aqara 開關</a></li>`,
		`<li><a class="ty-menu__submenu-link" href="/philips/">Philips Hue</a></li>`,
	}
	site.page(listingURL("/aqara/", 1), buildListingPage(listing{products: []int{8, 2}, menu: menu}))
	site.page(listingURL("/aqara-sensors/", 1), buildListingPage(listing{products: []int{1, 2, 3, 1}, hasNext: true}))
	site.page(listingURL("/aqara-sensors/", 2), buildListingPage(listing{products: []int{4, 5}}))
	site.page(listingURL("/aqara-switches/", 1), buildListingPage(listing{products: []int{6, 1, 7}}))
	site.page(listingURL("/philips/", 1), buildListingPage(listing{products: []int{99}}))
	for id := 1; id <= 8; id++ {
		site.page(productURL(id), buildProductPage(id))
	}
}
