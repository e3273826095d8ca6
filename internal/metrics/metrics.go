package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/prism/internal/model"
)

const namespace = "prism"

// Collector records document, page and OCR measurements.
type Collector struct {
	registry *prometheus.Registry

	documents         *prometheus.CounterVec
	pages             *prometheus.CounterVec
	redactionDuration *prometheus.HistogramVec
	documentDuration  prometheus.Histogram
	ocrFailures       *prometheus.CounterVec
	warnings          prometheus.Counter
}

// NewCollector returns a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Processed documents by final status.",
		}, []string{"status"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Pages by processing stage and side.",
		}, []string{"stage", "side"}),
		redactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redaction_duration_seconds",
			Help:      "Time to composite, verify and write one redacted page.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"side"}),
		documentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_duration_seconds",
			Help:      "Wall time from request to finished document.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ocrFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_failures_total",
			Help:      "OCR failures by reason.",
		}, []string{"reason"}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_warnings_total",
			Help:      "Warnings recorded on processed documents.",
		}),
	}
	c.registry.MustRegister(c.documents, c.pages, c.redactionDuration, c.documentDuration, c.ocrFailures, c.warnings)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// PageCaptured counts a raw page.
func (c *Collector) PageCaptured(side model.Side) {
	c.pages.WithLabelValues("captured", side.String()).Inc()
}

// PageRedacted counts a redacted page and observes its duration.
func (c *Collector) PageRedacted(side model.Side, elapsed time.Duration) {
	c.pages.WithLabelValues("redacted", side.String()).Inc()
	c.redactionDuration.WithLabelValues(side.String()).Observe(elapsed.Seconds())
}

// OCRFailed counts an OCR failure.
func (c *Collector) OCRFailed(reason string) {
	c.ocrFailures.WithLabelValues(reason).Inc()
}

// DocumentFinished counts doc by status.
func (c *Collector) DocumentFinished(doc *model.Document) {
	c.documents.WithLabelValues(string(doc.Status)).Inc()
	c.warnings.Add(float64(len(doc.Warnings)))
	if !doc.FinishedAt.IsZero() && doc.FinishedAt.After(doc.StartedAt) {
		c.documentDuration.Observe(doc.FinishedAt.Sub(doc.StartedAt).Seconds())
	}
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
