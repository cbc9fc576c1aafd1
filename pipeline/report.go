package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-jarvis/models"
)

// WriteCategories writes the resolved category listing URLs as a one-column
// CSV with the same BOM as the product export.
func WriteCategories(filename string, categories []string) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create categories file: %w", err)
	}

	if _, err := f.WriteString(utf8BOM); err != nil {
		f.Close()
		return fmt.Errorf("write categories bom: %w", err)
	}
	writer := csv.NewWriter(f)
	records := make([][]string, 0, len(categories)+1)
	records = append(records, []string{"CategoryURL"})
	for _, c := range categories {
		records = append(records, []string{c})
	}
	if err := writer.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write categories: %w", err)
	}
	return f.Close()
}

// WriteSummary stores the run summary as indented JSON.
func WriteSummary(filename string, summary *models.CrawlSummary) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// ImageRecorder wraps an OutputWriter and remembers the image URLs of every
// product it writes, in row order. A URL shared by several products is kept
// once, at its first row.
type ImageRecorder struct {
	OutputWriter

	mu     sync.Mutex
	seen   map[string]struct{}
	images []string
}

// NewImageRecorder returns a recorder writing through w.
func NewImageRecorder(w OutputWriter) *ImageRecorder {
	return &ImageRecorder{
		OutputWriter: w,
		seen:         make(map[string]struct{}),
	}
}

// Write forwards the batch and records its images once the write succeeds.
func (r *ImageRecorder) Write(products []*models.Product) error {
	if err := r.OutputWriter.Write(products); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range products {
		for _, img := range p.Images {
			if _, ok := r.seen[img]; ok {
				continue
			}
			r.seen[img] = struct{}{}
			r.images = append(r.images, img)
		}
	}
	return nil
}

// Images returns the recorded URLs.
func (r *ImageRecorder) Images() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.images))
	copy(out, r.images)
	return out
}

// WriteImages stores one image URL per line.
func WriteImages(filename string, images []string) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data := strings.Join(images, "\n")
	if len(images) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(filename, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write images: %w", err)
	}
	return nil
}
