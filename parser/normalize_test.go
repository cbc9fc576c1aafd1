package parser

import (
	"net/url"
	"testing"
)

func TestNormalizerNormalize(t *testing.T) {
	n := NewNormalizer("https://www.jarvis.com.tw/")

	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"absolute", "https://cdn.jarvis.com.tw/a.png", "https://cdn.jarvis.com.tw/a.png"},
		{"root relative", "/aqara-plug.html", "https://www.jarvis.com.tw/aqara-plug.html"},
		{"relative", "aqara-plug.html", "https://www.jarvis.com.tw/aqara-plug.html"},
		{"protocol relative", "//cdn.jarvis.com.tw/a.png", "https://cdn.jarvis.com.tw/a.png"},
		{"entity encoded", "/list/?a=1&amp;b=2", "https://www.jarvis.com.tw/list/?a=1&b=2"},
		{"surrounding space", "  /x.html ", "https://www.jarvis.com.tw/x.html"},
		{"empty", "", ""},
		{"fragment only", "#", "#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.href); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.href, got, tt.expected)
			}
		})
	}
}

func TestNormalizerMemoizes(t *testing.T) {
	n := NewNormalizer("https://www.jarvis.com.tw")

	first := n.Normalize("/a.html")
	second := n.Normalize("/a.html")
	if first != second {
		t.Fatalf("memoized result changed: %q vs %q", first, second)
	}
	if n.Len() != 1 {
		t.Errorf("expected 1 memo entry, got %d", n.Len())
	}

	other := NewNormalizer("http://localhost:8080")
	if got := other.Normalize("/a.html"); got != "http://localhost:8080/a.html" {
		t.Errorf("normalizers must not share memo, got %q", got)
	}
}

func TestIsAbsoluteURL(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"https://www.jarvis.com.tw/", true},
		{"http://localhost:8080/a", true},
		{"/relative", false},
		{"mailto:shop@jarvis.com.tw", false},
		{"javascript:void(0)", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsAbsoluteURL(tt.input); got != tt.expected {
			t.Errorf("IsAbsoluteURL(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestListingURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		page     int
		wantPage string
	}{
		{"first page", "https://www.jarvis.com.tw/aqara/", 1, ""},
		{"overrides per page", "https://www.jarvis.com.tw/aqara/?items_per_page=12", 1, ""},
		{"third page", "https://www.jarvis.com.tw/aqara/?items_per_page=96&page=2", 3, "3"},
		{"drops fragment", "https://www.jarvis.com.tw/aqara/#top", 2, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListingURL(tt.raw, "items_per_page", 96, "page", tt.page)
			if err != nil {
				t.Fatalf("ListingURL() error: %v", err)
			}
			parsed, err := url.Parse(got)
			if err != nil {
				t.Fatalf("result %q not parseable: %v", got, err)
			}
			if parsed.Query().Get("items_per_page") != "96" {
				t.Errorf("items_per_page missing in %q", got)
			}
			if parsed.Query().Get("page") != tt.wantPage {
				t.Errorf("page = %q, want %q (%s)", parsed.Query().Get("page"), tt.wantPage, got)
			}
			if parsed.Fragment != "" {
				t.Errorf("fragment kept in %q", got)
			}
		})
	}
}
