package parser

import (
	"html"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Normalizer turns hrefs found on storefront pages into absolute URLs.
// Results are memoized for the lifetime of the Normalizer, which is one run.
type Normalizer struct {
	origin string
	scheme string

	mu   sync.Mutex
	memo map[string]string
}

// NewNormalizer builds a normalizer for origin (scheme://host).
func NewNormalizer(origin string) *Normalizer {
	origin = strings.TrimRight(origin, "/")
	scheme := "https"
	if parsed, err := url.Parse(origin); err == nil && parsed.Scheme != "" {
		scheme = parsed.Scheme
	}
	return &Normalizer{
		origin: origin,
		scheme: scheme,
		memo:   make(map[string]string),
	}
}

// Origin returns the origin the normalizer resolves against.
func (n *Normalizer) Origin() string {
	return n.origin
}

// Normalize returns href as an absolute URL. Empty hrefs and bare "#" come
// back unchanged so callers can reject them.
func (n *Normalizer) Normalize(href string) string {
	n.mu.Lock()
	if cached, ok := n.memo[href]; ok {
		n.mu.Unlock()
		return cached
	}
	n.mu.Unlock()

	resolved := n.resolve(href)

	n.mu.Lock()
	n.memo[href] = resolved
	n.mu.Unlock()
	return resolved
}

// Len reports how many hrefs are memoized.
func (n *Normalizer) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.memo)
}

func (n *Normalizer) resolve(href string) string {
	decoded := strings.TrimSpace(html.UnescapeString(href))
	if IsAbsoluteURL(decoded) {
		return decoded
	}
	if decoded == "" || decoded == "#" {
		return decoded
	}
	if strings.HasPrefix(decoded, "//") {
		return n.scheme + ":" + decoded
	}
	if strings.HasPrefix(decoded, "/") {
		return n.origin + decoded
	}
	return n.origin + "/" + decoded
}

// IsAbsoluteURL reports whether raw is a well-formed http(s) URL with a host.
func IsAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// ListingURL forces the items-per-page parameter and, for page > 1, the page
// parameter onto a category URL.
func ListingURL(rawURL, perPageParam string, perPage int, pageParam string, page int) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set(perPageParam, strconv.Itoa(perPage))
	if page > 1 {
		query.Set(pageParam, strconv.Itoa(page))
	} else {
		query.Del(pageParam)
	}
	parsed.RawQuery = query.Encode()
	parsed.Fragment = ""
	return parsed.String(), nil
}
