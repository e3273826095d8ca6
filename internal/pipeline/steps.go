package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/console"
	"github.com/nao1215/prism/internal/model"
	"github.com/nao1215/prism/internal/ocr"
	"github.com/nao1215/prism/internal/redact"
	"github.com/nao1215/prism/internal/resilience"
)

// Recorder receives processing measurements.
type Recorder interface {
	PageCaptured(side model.Side)
	PageRedacted(side model.Side, elapsed time.Duration)
	OCRFailed(reason string)
	DocumentFinished(doc *model.Document)
}

type nopRecorder struct{}

func (nopRecorder) PageCaptured(model.Side)                {}
func (nopRecorder) PageRedacted(model.Side, time.Duration) {}
func (nopRecorder) OCRFailed(string)                       {}
func (nopRecorder) DocumentFinished(*model.Document)       {}

// env is shared by the steps.
type env struct {
	events   console.Emitter
	recorder Recorder
	logger   *slog.Logger
	replace  bool
}

func newEnv(opts []StepOption) env {
	e := env{
		events:   console.Discard,
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// warn records a warning on doc and emits it.
func (e env) warn(doc *model.Document, format string, args ...any) {
	doc.AddWarning(format, args...)
	e.events.Emit(console.Warning(format, args...))
}

// StepOption configures a step.
type StepOption func(*env)

// WithEvents sets the event sink.
func WithEvents(events console.Emitter) StepOption {
	return func(e *env) {
		e.events = events
	}
}

// WithRecorder sets the measurement sink.
func WithRecorder(recorder Recorder) StepOption {
	return func(e *env) {
		e.recorder = recorder
	}
}

// WithStepLogger sets the logger.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(e *env) {
		e.logger = logger
	}
}

// WithReplace lets steps replace existing output artifacts.
func WithReplace(replace bool) StepOption {
	return func(e *env) {
		e.replace = replace
	}
}

// Capturer acquires the pages of a document.
type Capturer interface {
	Capture(ctx context.Context, doc *model.Document, duplex bool) error
}

// CaptureStep acquires the pages of the document from the device.
type CaptureStep struct {
	env
	capturer Capturer
	duplex   bool
}

// NewCaptureStep returns a step capturing in duplex or simplex mode.
func NewCaptureStep(capturer Capturer, duplex bool, opts ...StepOption) *CaptureStep {
	return &CaptureStep{env: newEnv(opts), capturer: capturer, duplex: duplex}
}

// Name returns the step name.
func (s *CaptureStep) Name() string { return "capture" }

// Do implements Step.
func (s *CaptureStep) Do(ctx context.Context, doc *model.Document) error {
	err := s.capturer.Capture(ctx, doc, s.duplex)
	for _, p := range doc.Pages {
		s.recorder.PageCaptured(p.Side)
	}
	if err != nil {
		status := model.StatusCaptureFailed
		if ctx.Err() != nil {
			status = model.StatusCancelled
		}
		doc.Fail(status, err)
		return err
	}
	s.events.Emit(console.Info("Captured %d pages (%d fronts, %d backs)",
		len(doc.Pages), doc.CountSide(model.SideFront), doc.CountSide(model.SideBack)))
	return nil
}

// RedactStep writes a RedactedArtifact for every captured page.
type RedactStep struct {
	env
	compositor *redact.Compositor
	layout     artifact.Layout
}

// NewRedactStep returns a redaction step writing into layout.Redactions.
func NewRedactStep(compositor *redact.Compositor, layout artifact.Layout, opts ...StepOption) *RedactStep {
	return &RedactStep{env: newEnv(opts), compositor: compositor, layout: layout}
}

// Name returns the step name.
func (s *RedactStep) Name() string { return "redact" }

// Do implements Step. Any failure is fatal for the document and leaves
// the failed page without redacted output.
func (s *RedactStep) Do(ctx context.Context, doc *model.Document) error {
	req := doc.Request

	// Both overlays must exist before anything is written.
	for _, side := range model.Sides {
		for _, p := range doc.Pages {
			if p.Side != side {
				continue
			}
			if _, err := s.compositor.Overlays().Load(req.FormType, side); err != nil {
				return s.fail(doc, p, err)
			}
			break
		}
	}

	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if page.Redacted() {
			continue
		}

		raw := page.Image
		if raw == nil {
			img, err := artifact.ReadPNG(page.RawPath)
			if err != nil {
				return s.fail(doc, page, err)
			}
			raw = img
		}

		start := time.Now()
		res, err := s.compositor.Redact(raw, req.FormType, page.Side)
		if err != nil {
			return s.fail(doc, page, err)
		}

		path := s.layout.RedactedPath(page.Stem)
		sum, err := artifact.WritePNG(path, s.replace, res.Image)
		if err != nil {
			return s.fail(doc, page, fmt.Errorf("failed to write redacted page: %w", err))
		}
		page.RedactedPath = path
		page.RedactedSHA256 = sum
		page.Normalized = res.Normalized
		page.Image = nil
		s.recorder.PageRedacted(page.Side, time.Since(start))

		if res.Normalized {
			s.events.Emit(console.Info("Overlay resized to fit page %d (%s)", page.Sequence(), page.Side))
		}
		s.events.Emit(console.Info("Redacted page %d (%s): %s", page.Sequence(), page.Side, path))
	}
	return nil
}

func (s *RedactStep) fail(doc *model.Document, page *model.Page, err error) error {
	docErr := model.PageError("redact", doc.Request, page, err)
	doc.Fail(model.StatusRedactionFailed, docErr)
	return docErr
}

// OCRStep extracts text from redacted pages. Its failures are warnings.
type OCRStep struct {
	env
	assembler  *ocr.Assembler
	compositor *redact.Compositor
	layout     artifact.Layout
}

// NewOCRStep returns an OCR step writing into layout.OCR.
func NewOCRStep(assembler *ocr.Assembler, compositor *redact.Compositor, layout artifact.Layout, opts ...StepOption) *OCRStep {
	return &OCRStep{env: newEnv(opts), assembler: assembler, compositor: compositor, layout: layout}
}

// Name returns the step name.
func (s *OCRStep) Name() string { return "ocr" }

// Do implements Step. It reads only RedactedArtifacts and never returns
// an error.
func (s *OCRStep) Do(ctx context.Context, doc *model.Document) error {
	req := doc.Request
	for _, page := range doc.RedactedPages() {
		if ctx.Err() != nil {
			s.warn(doc, "OCR interrupted before page %d (%s) of WID %s", page.Sequence(), page.Side, req.WID)
			return nil
		}

		img, err := artifact.ReadPNG(page.RedactedPath)
		if err != nil {
			s.failed(doc, page, "read", err)
			continue
		}
		b := img.Bounds()
		mask, err := s.compositor.Mask(req.FormType, page.Side, b.Dx(), b.Dy())
		if err != nil {
			s.failed(doc, page, "mask", err)
			continue
		}

		text, err := s.assembler.Extract(ctx, img, mask, page.DPI)
		if err != nil {
			switch {
			case errors.Is(err, ocr.ErrOCRNotEnabled):
				s.recorder.OCRFailed("disabled")
				s.warn(doc, "OCR skipped for WID %s: %v", req.WID, err)
				return nil
			case resilience.IsCircuitOpen(err):
				s.recorder.OCRFailed("circuit_open")
				s.warn(doc, "OCR skipped for WID %s form %s: engine is failing repeatedly; redacted pages are kept", req.WID, req.FormType)
				return nil
			}
			s.failed(doc, page, "engine", err)
			continue
		}

		out, err := ocr.WritePage(text, img, page.DPI, s.layout.TextPath(page.Stem), s.layout.PDFPath(page.Stem), s.replace)
		page.TextPath = out.TextPath
		page.PDFPath = out.PDFPath
		if err != nil {
			s.failed(doc, page, "write", err)
			continue
		}
		s.events.Emit(console.Info("OCR page %d (%s): %s", page.Sequence(), page.Side, ocr.Summary(text)))
	}
	return nil
}

func (s *OCRStep) failed(doc *model.Document, page *model.Page, reason string, err error) {
	s.recorder.OCRFailed(reason)
	s.logger.Debug("OCR failed", "stem", page.Stem, "reason", reason, "error", err)
	s.warn(doc, "OCR failed for WID %s form %s page %d (%s): %v; the redacted page is kept",
		doc.Request.WID, doc.Request.FormType, page.Sequence(), page.Side, err)
}

// DocumentStore persists processed documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
}

// LedgerStep records the document and its artifacts.
type LedgerStep struct {
	env
	store DocumentStore
}

// NewLedgerStep returns a step saving documents to store.
func NewLedgerStep(store DocumentStore, opts ...StepOption) *LedgerStep {
	return &LedgerStep{env: newEnv(opts), store: store}
}

// Name returns the step name.
func (s *LedgerStep) Name() string { return "ledger" }

// Do implements Step.
func (s *LedgerStep) Do(ctx context.Context, doc *model.Document) error {
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		s.events.Emit(console.Warning("document for WID %s was not recorded in the ledger: %v", doc.Request.WID, err))
		return fmt.Errorf("failed to record document: %w", err)
	}
	return nil
}

// RecordStep reports the finished document to the recorder.
type RecordStep struct {
	env
}

// NewRecordStep returns a RecordStep.
func NewRecordStep(opts ...StepOption) *RecordStep {
	return &RecordStep{env: newEnv(opts)}
}

// Name returns the step name.
func (s *RecordStep) Name() string { return "metrics" }

// Do implements Step.
func (s *RecordStep) Do(_ context.Context, doc *model.Document) error {
	s.recorder.DocumentFinished(doc)
	return nil
}
