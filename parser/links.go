package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

const (
	productLinksField  = "product_links"
	categoryLinksField = "category_links"
)

// IsProductURL applies the path filter: excluded sections first, then at
// least one product pattern must match.
func IsProductURL(rawURL string, profile *config.Profile) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(parsed.Path)
	if p == "" {
		return false
	}
	for _, fragment := range profile.Products.ExcludePaths {
		if fragment != "" && strings.Contains(p, strings.ToLower(fragment)) {
			return false
		}
	}
	for _, re := range profile.IncludePatterns() {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

// ProductLinks returns the unique, validated product URLs of a listing page
// in document order.
func ProductLinks(page *Page, profile *config.Profile, norm *Normalizer) []string {
	links := []string{}
	expr, ok := page.Best(productLinksField, profile.Products.LinkSelectors)
	if !ok {
		return links
	}

	seen := make(map[string]struct{})
	page.Select(expr).Each(func(_ int, s *goquery.Selection) {
		abs, ok := resolveLink(s, norm)
		if !ok || !IsProductURL(abs, profile) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// CategoryLinks returns menu category links whose text or href carries one of
// the configured markers.
func CategoryLinks(page *Page, profile *config.Profile, norm *Normalizer) []string {
	links := []string{}
	expr, ok := page.Best(categoryLinksField, profile.Categories.LinkSelectors)
	if !ok {
		return links
	}

	seen := make(map[string]struct{})
	page.Select(expr).Each(func(_ int, s *goquery.Selection) {
		abs, ok := resolveLink(s, norm)
		if !ok {
			return
		}
		if !hasMarker(profile.Categories.Markers, s.Text(), abs) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

func resolveLink(s *goquery.Selection, norm *Normalizer) (string, bool) {
	href, exists := s.Attr("href")
	if !exists {
		return "", false
	}
	abs := norm.Normalize(href)
	if !IsAbsoluteURL(abs) {
		return "", false
	}
	if idx := strings.Index(abs, "#"); idx >= 0 {
		abs = abs[:idx]
	}
	return abs, true
}

// hasMarker matches case-insensitively against the texts and their
// percent-decoded forms. An empty marker list accepts everything.
func hasMarker(markers []string, values ...string) bool {
	if len(markers) == 0 {
		return true
	}
	for _, value := range values {
		candidates := []string{strings.ToLower(value)}
		if decoded, err := url.PathUnescape(value); err == nil && decoded != value {
			candidates = append(candidates, strings.ToLower(decoded))
		}
		for _, marker := range markers {
			if marker == "" {
				continue
			}
			m := strings.ToLower(marker)
			for _, c := range candidates {
				if strings.Contains(c, m) {
					return true
				}
			}
		}
	}
	return false
}
