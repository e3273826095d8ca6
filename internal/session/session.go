package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/capture"
	"github.com/nao1215/prism/internal/console"
	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/device"
	"github.com/nao1215/prism/internal/metrics"
	"github.com/nao1215/prism/internal/model"
	"github.com/nao1215/prism/internal/ocr"
	"github.com/nao1215/prism/internal/pipeline"
	"github.com/nao1215/prism/internal/redact"
)

// ErrInterrupted is returned when the session stopped on a signal or a
// closed input stream.
var ErrInterrupted = errors.New("session interrupted")

// Finder locates and probes the session device.
type Finder interface {
	Find(ctx context.Context) (*device.Handle, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context) (*device.Handle, error)

// Find implements Finder.
func (f FinderFunc) Find(ctx context.Context) (*device.Handle, error) { return f(ctx) }

// Prompter reads operator answers.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
	Confirm(ctx context.Context, question string, def bool) (bool, error)
}

// Ledger records sessions and documents.
type Ledger interface {
	pipeline.DocumentStore
	StartSession(ctx context.Context, s database.Session) error
	EndSession(ctx context.Context, id string, ended time.Time) error
}

// Session is one interactive run against one device.
type Session struct {
	id         string
	finder     Finder
	prompter   Prompter
	compositor *redact.Compositor
	assembler  *ocr.Assembler
	layout     artifact.Layout
	events     console.Emitter
	ledger     Ledger
	metrics    *metrics.Collector
	metricsOut string
	clock      func() time.Time
	logger     *slog.Logger
	ocrDefault bool
	onState    func(from, to State)

	state     State
	handle    *device.Handle
	ocr       bool
	duplex    bool
	lastWID   model.WID
	documents []*model.Document
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithEvents sets the operator event sink.
func WithEvents(events console.Emitter) Option {
	return func(s *Session) { s.events = events }
}

// WithAssembler enables the OCR prompt. Without it OCR is never offered.
func WithAssembler(assembler *ocr.Assembler) Option {
	return func(s *Session) { s.assembler = assembler }
}

// WithOCRDefault sets the default answer of the OCR prompt.
func WithOCRDefault(enabled bool) Option {
	return func(s *Session) { s.ocrDefault = enabled }
}

// WithLedger records the session and every document in ledger.
func WithLedger(ledger Ledger) Option {
	return func(s *Session) { s.ledger = ledger }
}

// WithMetrics records measurements in collector and writes them to path at
// teardown when path is not empty.
func WithMetrics(collector *metrics.Collector, path string) Option {
	return func(s *Session) {
		s.metrics = collector
		s.metricsOut = path
	}
}

// WithClock sets the time source for artifact dates.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithStateHook is called on every state transition.
func WithStateHook(hook func(from, to State)) Option {
	return func(s *Session) { s.onState = hook }
}

// New returns a session that finds its device with finder and writes into
// layout.
func New(finder Finder, prompter Prompter, compositor *redact.Compositor, layout artifact.Layout, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		finder:     finder,
		prompter:   prompter,
		compositor: compositor,
		layout:     layout,
		events:     console.Discard,
		clock:      time.Now,
		logger:     slog.Default(),
		ocrDefault: true,
		onState:    func(State, State) {},
		state:      StateStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Documents returns the documents processed so far.
func (s *Session) Documents() []*model.Document { return s.documents }

func (s *Session) enter(to State) {
	from := s.state
	s.state = to
	s.logger.Debug("session state", "from", from.String(), "to", to.String())
	s.onState(from, to)
}

// Run executes the session until the operator stops, the device cannot be
// used, or ctx is cancelled. Device errors at start are returned wrapping
// device.ErrDeviceNotFound or device.ErrDeviceBusy. An interrupt returns
// ErrInterrupted after teardown.
func (s *Session) Run(ctx context.Context) (err error) {
	s.events.Emit(console.Phase("PRISM session"))
	if err := s.layout.EnsureOutputDirs(); err != nil {
		s.enter(StateFatal)
		s.events.Emit(console.Error("cannot prepare output directories: %v", err))
		return err
	}

	s.enter(StateDiscover)
	s.events.Emit(console.Phase("Device discovery"))
	handle, err := s.finder.Find(ctx)
	if err != nil {
		s.enter(StateFatal)
		if errors.Is(err, device.ErrNoSelection) {
			s.events.Emit(console.Error("%v. Start again and pick a scanner, or pin one with --device.", err))
			return s.stopped(err)
		}
		s.events.Emit(console.Error("%v. Connect or power on the scanner and start again.", err))
		return err
	}
	s.handle = handle
	defer func() {
		err = errors.Join(err, s.teardown(ctx))
	}()

	caps := handle.Capabilities()
	s.events.Emit(console.Info("Found %s device %s", caps.Backend, describe(caps)))
	if err := handle.Open(ctx); err != nil {
		s.enter(StateFatal)
		s.events.Emit(console.Error("%v. Close other scanning software and start again.", err))
		return err
	}

	if err := s.configure(ctx); err != nil {
		return s.stopped(err)
	}
	s.startLedger(ctx)

	for {
		doc, err := s.nextDocument(ctx)
		if err != nil {
			return s.stopped(err)
		}

		s.enter(StateProcess)
		s.process(ctx, doc)
		if ctx.Err() != nil {
			return s.stopped(ctx.Err())
		}
		if doc.Status == model.StatusCaptureFailed {
			s.events.Emit(console.Info("Press Enter at the WID prompt to retry WID %s.", doc.Request.WID))
			continue
		}

		s.enter(StateAskContinue)
		more, err := s.prompter.Confirm(ctx, "Scan another document?", true)
		if err != nil {
			return s.stopped(err)
		}
		if !more {
			return nil
		}
	}
}

// configure asks the per-session questions.
func (s *Session) configure(ctx context.Context) error {
	s.enter(StateAskOCR)
	if s.assembler == nil {
		s.events.Emit(console.Info("OCR is not available in this build."))
	} else {
		enabled, err := s.prompter.Confirm(ctx, "Run OCR on redacted pages?", s.ocrDefault)
		if err != nil {
			return err
		}
		s.ocr = enabled
	}

	if s.handle.SupportsDuplex() {
		s.enter(StateAskDuplex)
		duplex, err := s.prompter.Confirm(ctx, "Scan both sides in one pass (duplex)?", true)
		if err != nil {
			return err
		}
		s.duplex = duplex
	} else {
		s.events.Emit(console.Info("Duplex is not available; each document is scanned in a front and a back pass."))
	}
	return nil
}

// nextDocument asks for the WID and form type of the next document.
func (s *Session) nextDocument(ctx context.Context) (*model.Document, error) {
	s.enter(StateAskWID)
	wid, err := s.askWID(ctx)
	if err != nil {
		return nil, err
	}
	s.lastWID = wid

	s.enter(StateAskFormType)
	form, err := s.askFormType(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	doc := model.NewDocument(s.id, model.NewDocumentRequest(wid, form, now))
	doc.StartedAt = now
	return doc, nil
}

func (s *Session) askWID(ctx context.Context) (model.WID, error) {
	question := "WID (10 digits): "
	if !s.lastWID.IsZero() {
		question = fmt.Sprintf("WID (10 digits, Enter for %s): ", s.lastWID)
	}
	for {
		answer, err := s.prompter.Ask(ctx, question)
		if err != nil {
			return "", err
		}
		if answer == "" && !s.lastWID.IsZero() {
			return s.lastWID, nil
		}
		wid, err := model.ParseWID(answer)
		if err != nil {
			s.events.Emit(console.Warning("%v. Try again.", err))
			continue
		}
		return wid, nil
	}
}

func (s *Session) askFormType(ctx context.Context) (model.FormType, error) {
	for {
		answer, err := s.prompter.Ask(ctx, "Form type (2 or 3): ")
		if err != nil {
			return 0, err
		}
		form, err := model.ParseFormType(answer)
		if err != nil {
			s.events.Emit(console.Warning("%v. Try again.", err))
			continue
		}
		return form, nil
	}
}

// process runs the document pipeline and reports the outcome.
func (s *Session) process(ctx context.Context, doc *model.Document) {
	req := doc.Request
	s.events.Emit(console.Phase(fmt.Sprintf("Form %s WID %s", req.FormType, req.WID)))

	p := s.pipeline(ctx)
	err := p.Execute(ctx, doc)
	s.documents = append(s.documents, doc)

	switch doc.Status {
	case model.StatusComplete:
		s.events.Emit(console.Info("Document complete: %d pages redacted.", len(doc.RedactedPages())))
	case model.StatusCaptureFailed:
		s.events.Emit(console.Error("%v. The scan job was cancelled; raw pages already written are kept. Reload the stack to retry.", err))
	case model.StatusRedactionFailed:
		s.events.Emit(console.Error("%v. No redacted output was written for that page; check the overlays in %s.", err, s.layout.Overlays))
	case model.StatusCancelled:
		s.events.Emit(console.Warning("Document for WID %s form %s was interrupted.", req.WID, req.FormType))
	}
}

func (s *Session) pipeline(ctx context.Context) *pipeline.Pipeline {
	stepOpts := []pipeline.StepOption{
		pipeline.WithEvents(s.events),
		pipeline.WithStepLogger(s.logger),
	}
	if s.metrics != nil {
		stepOpts = append(stepOpts, pipeline.WithRecorder(s.metrics))
	}

	var finally []pipeline.Step
	if s.ledger != nil {
		finally = append(finally, pipeline.NewLedgerStep(s.ledger, stepOpts...))
	}
	finally = append(finally, pipeline.NewRecordStep(stepOpts...))

	manager := capture.NewManager(s.handle, s.layout,
		capture.WithPassPrompt(s.passPrompt),
		capture.WithEvents(s.events),
		capture.WithPageHook(func(p *model.Page) {
			s.events.Emit(console.Info("Scanned page %d (%s): %s", p.Sequence(), p.Side, p.RawPath))
		}),
		capture.WithLogger(s.logger),
	)

	p := pipeline.New(pipeline.WithLogger(s.logger), pipeline.WithFinally(finally...))
	p.AddStep(pipeline.NewCaptureStep(manager, s.duplex, stepOpts...))
	p.AddStep(pipeline.NewRedactStep(s.compositor, s.layout, stepOpts...))
	if s.ocr && s.assembler != nil {
		p.AddStep(pipeline.NewOCRStep(s.assembler, s.compositor, s.layout, stepOpts...))
	}
	return p
}

// passPrompt asks the operator to load the stack for a simplex pass.
func (s *Session) passPrompt(ctx context.Context, side model.Side) error {
	var question string
	switch side {
	case model.SideFront:
		question = "Load the stack front side up and press Enter to scan the fronts: "
	default:
		question = "Turn the stack over, keeping the order, and press Enter to scan the backs: "
	}
	_, err := s.prompter.Ask(ctx, question)
	return err
}

func (s *Session) startLedger(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	caps := s.handle.Capabilities()
	rec := database.Session{
		ID:      s.id,
		Started: s.clock(),
		Backend: caps.Backend,
		Device:  caps.Device,
		OCR:     s.ocr,
		Duplex:  s.duplex,
	}
	if err := s.ledger.StartSession(ctx, rec); err != nil {
		s.logger.Warn("failed to record session start", "session", s.id, "error", err)
		s.events.Emit(console.Warning("session could not be recorded in the ledger: %v", err))
	}
}

// stopped maps the error that ended the loop to the session result.
func (s *Session) stopped(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
		s.events.Emit(console.Warning("Session interrupted."))
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return err
}

// teardown releases the device and flushes the ledger and metrics. It runs
// once per Run, with a context that survives an interrupt.
func (s *Session) teardown(ctx context.Context) error {
	s.enter(StateTeardown)
	s.events.Emit(console.Phase("Teardown"))
	detached := context.WithoutCancel(ctx)

	var errs []error
	if err := s.handle.Release(detached); err != nil {
		s.events.Emit(console.Error("device release failed: %v", err))
		errs = append(errs, err)
	} else {
		s.events.Emit(console.Info("Device released."))
	}

	if s.ledger != nil {
		if err := s.ledger.EndSession(detached, s.id, s.clock()); err != nil {
			s.logger.Warn("failed to record session end", "session", s.id, "error", err)
		}
	}
	if s.metrics != nil && s.metricsOut != "" {
		if err := s.metrics.WriteTextfile(s.metricsOut); err != nil {
			s.logger.Warn("failed to write metrics", "path", s.metricsOut, "error", err)
		}
	}

	s.events.Emit(console.Info("%d document(s) processed in this session.", len(s.documents)))
	s.enter(StateEnd)
	return errors.Join(errs...)
}

// ChooseDevice returns a device.Chooser that lists the scanners and asks the
// operator for one by number until the answer is valid.
func ChooseDevice(prompter Prompter, events console.Emitter) device.Chooser {
	return func(ctx context.Context, choices []device.Capabilities) (int, error) {
		events.Emit(console.Info("Found %d scanners:", len(choices)))
		for i, c := range choices {
			events.Emit(console.Info("  %d. %s", i+1, describe(c)))
		}
		for {
			answer, err := prompter.Ask(ctx, "Select scanner (number): ")
			if err != nil {
				return 0, err
			}
			n, err := strconv.Atoi(strings.TrimSpace(answer))
			if err == nil && n >= 1 && n <= len(choices) {
				return n - 1, nil
			}
			events.Emit(console.Warning("Enter a number from 1 to %d.", len(choices)))
		}
	}
}

func describe(caps device.Capabilities) string {
	if caps.Description == "" {
		return caps.Device
	}
	return fmt.Sprintf("%s (%s)", caps.Device, caps.Description)
}
