package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-scrape-jarvis/config"
)

// Page is a parsed document. It remembers which selector of a fallback chain
// matched for each logical field so repeated lookups reuse the choice.
type Page struct {
	URL string
	Doc *goquery.Document

	root *html.Node
	best map[string]string
}

// NewPage parses body once for both CSS and XPath queries.
func NewPage(pageURL string, body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", pageURL, err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("parse html %s: empty document", pageURL)
	}
	return &Page{
		URL:  pageURL,
		Doc:  doc,
		root: doc.Nodes[0],
		best: make(map[string]string),
	}, nil
}

// IsXPath reports whether expr is treated as an XPath expression rather than
// a CSS selector.
func IsXPath(expr string) bool {
	return strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "./") || strings.HasPrefix(expr, "(")
}

// Select evaluates a CSS or XPath expression against the page.
func (p *Page) Select(expr string) *goquery.Selection {
	if !IsXPath(expr) {
		return p.Doc.Find(expr)
	}
	nodes, err := htmlquery.QueryAll(p.root, expr)
	if err != nil || len(nodes) == 0 {
		return p.Doc.FindNodes()
	}
	return p.Doc.FindNodes(nodes...)
}

// firstMatching returns the first selector with at least one match.
func (p *Page) firstMatching(selectors []string) (string, bool) {
	for _, expr := range selectors {
		if expr == "" {
			continue
		}
		if p.Select(expr).Length() > 0 {
			return expr, true
		}
	}
	return "", false
}

// Best resolves the fallback chain for field once per page.
func (p *Page) Best(field string, selectors []string) (string, bool) {
	if expr, ok := p.best[field]; ok {
		return expr, expr != ""
	}
	expr, ok := p.firstMatching(selectors)
	p.best[field] = expr
	return expr, ok
}

// ExtractFirst returns the first non-empty text of the first matching selector.
func (p *Page) ExtractFirst(selectors []string) string {
	expr, ok := p.firstMatching(selectors)
	if !ok {
		return ""
	}
	return firstText(p.Select(expr))
}

// ExtractAllTexts returns every non-empty text of the first matching selector.
func (p *Page) ExtractAllTexts(selectors []string) []string {
	expr, ok := p.firstMatching(selectors)
	if !ok {
		return []string{}
	}
	return allTexts(p.Select(expr))
}

// ExtractAttribute returns attr of the first element matching selector, or "".
func (p *Page) ExtractAttribute(selector, attr string) string {
	return firstAttr(p.Select(selector), attr)
}

// Field extracts a logical field described by rule.
func (p *Page) Field(name string, rule config.FieldRule) string {
	expr, ok := p.Best(name, rule.Selectors)
	if !ok {
		return ""
	}
	sel := p.Select(expr)
	if rule.Attr != "" {
		return firstAttr(sel, rule.Attr)
	}
	return firstText(sel)
}

func firstText(sel *goquery.Selection) string {
	text := ""
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = NormalizeText(s.Text())
		return text == ""
	})
	return text
}

func allTexts(sel *goquery.Selection) []string {
	texts := []string{}
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := NormalizeText(s.Text()); text != "" {
			texts = append(texts, text)
		}
	})
	return texts
}

func firstAttr(sel *goquery.Selection, attr string) string {
	value := ""
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value = strings.TrimSpace(s.AttrOr(attr, ""))
		return value == ""
	})
	return value
}
