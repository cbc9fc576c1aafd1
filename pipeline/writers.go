package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-jarvis/models"
)

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\xEF\xBB\xBF"

// CSVHeader is the fixed column order of the export.
var CSVHeader = []string{"URL", "Name", "ShortDescription", "Description", "ActualPrice", "OriginalPrice", "Images"}

// imageSeparator joins the image URLs of one product into a single cell.
const imageSeparator = ","

// CSVWriter writes products to a BOM-prefixed CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates filename and writes the BOM and header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	if _, err := f.WriteString(utf8BOM); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv bom: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Record renders a product as a CSV row in header order.
func Record(p *models.Product) []string {
	return []string{
		p.URL,
		p.Title,
		p.ShortDescription,
		p.StyledDescription,
		p.ActualPrice,
		p.OriginalPrice,
		strings.Join(p.Images, imageSeparator),
	}
}

// Write appends products and flushes them to disk.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		if err := cw.writer.Write(Record(product)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file holds at least the BOM and header.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= int64(len(utf8BOM)) {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// NewWriter opens the writer for format ("csv", "json" or "dual"). For dual
// output the JSONL file sits next to filename.
func NewWriter(format, filename string) (OutputWriter, error) {
	var (
		writer OutputWriter
		err    error
	)
	switch format {
	case "", "csv":
		var w *CSVWriter
		if w, err = NewCSVWriter(filename); err == nil {
			writer = w
		}
	case "json":
		var w *JSONWriter
		if w, err = NewJSONWriter(filename); err == nil {
			writer = w
		}
	case "dual":
		var w *DualWriter
		if w, err = NewDualWriter(filename, JSONLPath(filename)); err == nil {
			writer = w
		}
	default:
		err = fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return writer, nil
}

// JSONLPath swaps the extension of filename for .jsonl.
func JSONLPath(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jsonl"
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
