package parser

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-jarvis/models"
)

var (
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	annotationPattern  = regexp.MustCompile(`【[^】]*】`)
	strikePricePattern = regexp.MustCompile(`[^0-9,]`)
	pricePattern       = regexp.MustCompile(`[^0-9,.]`)
	titleSeparators    = strings.NewReplacer("-", " ", "_", " ", "+", " ")
)

// ValidateProduct ensures the extractor captured the required fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("product missing url")
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("product missing title for %s", p.URL)
	}
	return nil
}

// NormalizeText trims and collapses whitespace runs into single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizePrice keeps digits and separators of a rendered price.
func NormalizePrice(price string) string {
	return pricePattern.ReplaceAllString(strings.TrimSpace(price), "")
}

// StrikePrice keeps only digits and commas, e.g. "NT$1,200" -> "1,200".
func StrikePrice(price string) string {
	return strikePricePattern.ReplaceAllString(price, "")
}

// CleanTitle strips markup, 【...】 annotations, anything after "|" and
// whatever siteSuffix matches.
func CleanTitle(title string, siteSuffix *regexp.Regexp) string {
	title = tagPattern.ReplaceAllString(title, "")
	title = annotationPattern.ReplaceAllString(title, "")
	if idx := strings.Index(title, "|"); idx >= 0 {
		title = title[:idx]
	}
	if siteSuffix != nil {
		title = siteSuffix.ReplaceAllString(title, "")
	}
	return NormalizeText(title)
}

// TitleFromURL derives a readable title from the last path segment.
func TitleFromURL(rawURL string) string {
	segment := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		segment = parsed.EscapedPath()
	}
	segment = strings.Trim(segment, "/")
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	switch strings.ToLower(path.Ext(segment)) {
	case ".html", ".htm", ".php":
		segment = strings.TrimSuffix(segment, path.Ext(segment))
	}
	return NormalizeText(titleSeparators.Replace(segment))
}
