// Package models defines data structures for the scraper.
package models

import "time"

// QAPair is one question with its answer markup.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Product represents one product page extracted from the storefront.
type Product struct {
	URL               string    `csv:"URL" json:"url"`
	Title             string    `csv:"Name" json:"title"`
	ShortDescription  string    `csv:"ShortDescription" json:"short_description"`
	StyledDescription string    `csv:"Description" json:"styled_description"`
	ActualPrice       string    `csv:"ActualPrice" json:"actual_price"`
	OriginalPrice     string    `csv:"OriginalPrice" json:"original_price"`
	Images            []string  `csv:"Images" json:"images"`
	Notes             []string  `csv:"-" json:"notes"`
	QA                []QAPair  `csv:"-" json:"qa"`
	ScrapedAt         time.Time `csv:"-" json:"scraped_at"`
}

// NewProduct returns a product with every field set to its empty value.
func NewProduct(url string) *Product {
	return &Product{
		URL:    url,
		Images: []string{},
		Notes:  []string{},
		QA:     []QAPair{},
	}
}

// HasDiscount reports whether a strikethrough price was captured.
func (p *Product) HasDiscount() bool {
	return p.OriginalPrice != ""
}

// CrawlSummary is the machine-readable outcome of one export run.
type CrawlSummary struct {
	RunID              string         `json:"run_id"`
	TotalFound         int            `json:"total_found"`
	RangeProcessed     [2]int         `json:"range_processed"`
	ProductsWritten    int            `json:"products_written"`
	ElapsedSeconds     float64        `json:"elapsed_seconds"`
	TruncatedByTimeout bool           `json:"truncated_by_timeout"`
	Interrupted        bool           `json:"interrupted"`
	Categories         int            `json:"categories"`
	PagesWalked        int            `json:"pages_walked"`
	RequestCount       int            `json:"requests"`
	RetryCount         int            `json:"retries"`
	ErrorCount         int            `json:"errors"`
	FailedURLs         []string       `json:"failed_urls"`
	ErrorsByType       map[string]int `json:"errors_by_type"`
	StartTime          time.Time      `json:"start_time"`
	EndTime            time.Time      `json:"end_time"`
}
