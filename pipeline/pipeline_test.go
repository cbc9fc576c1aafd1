package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Product
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(products []*models.Product) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Product, len(products))
	copy(copyBatch, products)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (mw *mockWriter) urls() []string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var out []string
	for _, batch := range mw.batches {
		for _, p := range batch {
			out = append(out, p.URL)
		}
	}
	return out
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(products []*models.Product) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func testProduct(i int) *models.Product {
	p := models.NewProduct("http://example.test/product/" + strconv.Itoa(i))
	p.Title = "Product " + strconv.Itoa(i)
	return p
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	valid := testProduct(1)
	invalid := models.NewProduct("http://example.test/product/2")
	duplicate := testProduct(1)

	if err := p.Process(valid, invalid, duplicate, nil); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written products = %d, want 1", got)
	}
	if got := p.Written(); got != 1 {
		t.Fatalf("Written() = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 1 {
		t.Fatalf("expected one invalid_record, got %v", validation)
	}
	if validation["duplicate_url"] != 1 {
		t.Fatalf("expected one duplicate_url, got %v", validation)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 50
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	for i := 0; i < 101; i++ {
		if err := p.Process(testProduct(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 3 {
		t.Fatalf("batch writes = %d, want 3", len(sizes))
	}
	if sizes[0] != 50 || sizes[1] != 50 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v, want [50 50 1]", sizes)
	}
}

func TestPipelinePreservesOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 7
	cfg.PipelineBufferSize = 3
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	for i := 0; i < 40; i++ {
		if err := p.Process(testProduct(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	urls := writer.urls()
	if len(urls) != 40 {
		t.Fatalf("written = %d, want 40", len(urls))
	}
	for i, u := range urls {
		if want := "http://example.test/product/" + strconv.Itoa(i); u != want {
			t.Fatalf("row %d = %s, want %s", i, u, want)
		}
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	for i := 0; i < 100; i++ {
		if err := p.Process(testProduct(i + 200)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written products = %d, want 100", got)
	}
	if err := p.Process(testProduct(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	diskFull := errors.New("no space left on device")
	writer := &mockWriter{writeErr: diskFull}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	_ = p.Process(testProduct(1))

	if err := p.Close(); !errors.Is(err, diskFull) {
		t.Fatalf("close error = %v, want %v", err, diskFull)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start()

	if err := p.Process(testProduct(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

type countingWriter struct {
	mu    sync.Mutex
	count int
}

func (cw *countingWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	cw.count += len(products)
	cw.mu.Unlock()
	return nil
}

func (cw *countingWriter) Close() error {
	return nil
}

func (cw *countingWriter) Validate() error {
	return nil
}

func BenchmarkPipelineThroughput(b *testing.B) {
	for _, batch := range []int{1, 50, 500} {
		b.Run("batch="+strconv.Itoa(batch), func(b *testing.B) {
			cfg := config.DefaultConfig()
			cfg.PipelineBufferSize = 1024
			cfg.BatchSize = batch

			writer := &countingWriter{}
			p := NewPipeline(context.Background(), writer, cfg)
			p.Start()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := p.Process(testProduct(i)); err != nil {
					b.Fatalf("process: %v", err)
				}
			}
			b.StopTimer()
			if err := p.Close(); err != nil {
				b.Fatalf("close: %v", err)
			}
			elapsed := b.Elapsed().Seconds()
			if elapsed > 0 {
				b.ReportMetric(float64(b.N)/elapsed, "items/sec")
			}
		})
	}
}
