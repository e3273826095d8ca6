package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/prism/internal/model"
)

// DefaultConcurrency is the number of documents processed at once.
const DefaultConcurrency = 4

// BatchProcessor runs a fresh pipeline per document with bounded
// concurrency.
type BatchProcessor struct {
	// pipelineFactory creates the pipeline for each document.
	pipelineFactory func() *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of documents processed at once.
// Values below one are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch executes a pipeline on every document. A failed document
// does not stop the others; its error is recorded on it. The returned
// error is non-nil only when ctx was cancelled, in which case documents
// not yet started keep StatusPending.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, docs []*model.Document) error {
	return bp.ProcessBatchWithCallback(ctx, docs, func(*model.Document, int) {})
}

// ProcessBatchWithCallback is ProcessBatch calling callback after each
// document with its index in docs. callback may be called concurrently.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, docs []*model.Document, callback func(doc *model.Document, index int)) error {
	bp.logger.Debug("starting batch", "documents", len(docs), "concurrency", bp.concurrency)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := bp.pipelineFactory().Execute(ctx, doc); err != nil {
				bp.logger.Debug("document failed", "prefix", doc.Request.Prefix(), "error", err)
			}
			callback(doc, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Debug("batch complete", "documents", len(docs), "elapsed", time.Since(start))
	return err
}
