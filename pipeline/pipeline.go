package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-jarvis/config"
	"github.com/aluiziolira/go-scrape-jarvis/models"
	"github.com/aluiziolira/go-scrape-jarvis/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending rows are not written
	// within drainTimeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Pipeline validates and de-duplicates products and hands them to the writer
// in fixed-size batches. A single flusher goroutine keeps rows in submission
// order.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	productCh chan *models.Product
	batchSize int

	done    chan struct{}
	started bool

	seen map[string]struct{}

	metrics metrics

	mu     sync.Mutex // guards started/closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 1
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		productCh: make(chan *models.Product, bufferSize),
		batchSize: batchSize,
		done:      make(chan struct{}),
		seen:      make(map[string]struct{}),
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
}

// Start launches the flusher goroutine. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started {
		return
	}
	p.started = true
	go p.flusher()
}

// Process enqueues products in order.
func (p *Pipeline) Process(products ...*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, product := range products {
		if product == nil {
			continue
		}
		if err := p.enqueue(product); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting products and waits, at most drainTimeout, for the
// pending ones to be written.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.productCh)
	})

	if !started {
		return p.Err()
	}

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Written returns the number of rows handed to the writer.
func (p *Pipeline) Written() int {
	return int(p.metrics.writtenCount())
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Any("processed", metrics["processed_products"]),
					slog.Any("written", metrics["written_products"]),
					slog.Any("validation_errors", metrics["validation_errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) flusher() {
	defer close(p.done)

	batch := make([]*models.Product, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		p.metrics.addWritten(len(batch))
		batch = batch[:0]
		return nil
	}

	for product := range p.productCh {
		prepared := p.prepare(product)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

// prepare runs on the flusher goroutine only, so seen needs no lock.
func (p *Pipeline) prepare(product *models.Product) *models.Product {
	if err := parser.ValidateProduct(product); err != nil {
		p.metrics.addValidation("invalid_record")
		slog.Debug("dropping product", slog.Any("error", err))
		return nil
	}

	if _, ok := p.seen[product.URL]; ok {
		p.metrics.addValidation("duplicate_url")
		return nil
	}
	p.seen[product.URL] = struct{}{}

	p.metrics.incrementProcessed()
	return product
}

func (p *Pipeline) enqueue(product *models.Product) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.productCh <- product:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err != nil {
		p.mu.Unlock()
		return
	}
	p.err = err
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	// Keep draining so blocked producers observe the shutdown.
	go func() {
		for range p.productCh {
		}
	}()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	written    int64
	batches    int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addWritten(n int) {
	m.mu.Lock()
	m.written += int64(n)
	m.batches++
	m.mu.Unlock()
}

func (m *metrics) writtenCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_products": m.processed,
		"written_products":   m.written,
		"batches_written":    m.batches,
		"validation_errors":  copyValidation,
	}
}
