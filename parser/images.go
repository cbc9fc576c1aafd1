package parser

import (
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

// ImageRef is a qualifying product image with the attributes kept when it is
// re-serialized into the description.
type ImageRef struct {
	Src   string
	Alt   string
	Title string
	Class string
}

// Tag renders the minimal <img> element for the image.
func (r ImageRef) Tag() string {
	return `<img src="` + html.EscapeString(r.Src) +
		`" alt="` + html.EscapeString(r.Alt) +
		`" title="` + html.EscapeString(r.Title) +
		`" class="` + html.EscapeString(r.Class) + `">`
}

// CollectImages returns the product images of page in first-seen order,
// normalized, filtered against the denylist and deduplicated by URL.
func CollectImages(page *Page, rules config.ImageRules, norm *Normalizer) []ImageRef {
	refs := []ImageRef{}
	seen := make(map[string]struct{})

	page.Doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		alt := NormalizeText(s.AttrOr("alt", ""))
		if src == "" || !qualifies(src, alt, rules) {
			return
		}

		abs := norm.Normalize(src)
		if !IsAbsoluteURL(abs) || denied(abs, rules.Denylist) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		refs = append(refs, ImageRef{
			Src:   abs,
			Alt:   alt,
			Title: NormalizeText(s.AttrOr("title", "")),
			Class: NormalizeText(s.AttrOr("class", "")),
		})
	})
	return refs
}

// ImageURLs projects refs to their URLs.
func ImageURLs(refs []ImageRef) []string {
	urls := make([]string, 0, len(refs))
	for _, r := range refs {
		urls = append(urls, r.Src)
	}
	return urls
}

func qualifies(src, alt string, rules config.ImageRules) bool {
	ext := src
	if parsed, err := url.Parse(src); err == nil {
		ext = parsed.Path
	}
	ext = strings.ToLower(path.Ext(ext))
	for _, want := range rules.Extensions {
		if want != "" && ext == strings.ToLower(want) {
			return true
		}
	}
	return len(rules.BrandMarkers) > 0 && hasMarker(rules.BrandMarkers, src, alt)
}

func denied(imageURL string, denylist []string) bool {
	lower := strings.ToLower(imageURL)
	for _, fragment := range denylist {
		if fragment != "" && strings.Contains(lower, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}
