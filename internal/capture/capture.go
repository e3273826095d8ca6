package capture

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/console"
	"github.com/nao1215/prism/internal/device"
	"github.com/nao1215/prism/internal/model"
)

// ErrNoPages is returned when an acquisition ends without any page.
var ErrNoPages = errors.New("no pages were scanned")

// Device is the part of a device handle capture needs.
type Device interface {
	Acquire(ctx context.Context, countHint int, duplex bool) iter.Seq2[device.Frame, error]
	Cancel(ctx context.Context) error
}

// PassPrompt asks the operator to load the stack for one simplex pass.
// Returning an error aborts the capture.
type PassPrompt func(ctx context.Context, side model.Side) error

// PageHook is called after each RawArtifact is written.
type PageHook func(page *model.Page)

// Manager captures documents from one device.
type Manager struct {
	device Device
	layout artifact.Layout
	prompt PassPrompt
	onPage PageHook
	events console.Emitter
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPassPrompt sets the prompt shown before each simplex pass.
func WithPassPrompt(prompt PassPrompt) Option {
	return func(m *Manager) {
		m.prompt = prompt
	}
}

// WithPageHook sets a callback for written pages.
func WithPageHook(hook PageHook) Option {
	return func(m *Manager) {
		m.onPage = hook
	}
}

// WithEvents sets the sink for pairing warnings.
func WithEvents(events console.Emitter) Option {
	return func(m *Manager) {
		m.events = events
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a Manager writing RawArtifacts into layout.Scans.
func NewManager(dev Device, layout artifact.Layout, opts ...Option) *Manager {
	m := &Manager{
		device: dev,
		layout: layout,
		prompt: func(context.Context, model.Side) error { return nil },
		onPage: func(*model.Page) {},
		events: console.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capture acquires every page of doc and appends them in sequence order.
// On failure the in-flight job is cancelled and the returned error is a
// *model.DocumentError. Pages written before the failure stay in doc.
func (m *Manager) Capture(ctx context.Context, doc *model.Document, duplex bool) error {
	req := doc.Request
	first, err := artifact.NextSequenceIndex(m.layout.Scans, req)
	if err != nil {
		return model.RequestError("capture", req, err)
	}
	if first > 0 {
		// An earlier failed capture can leave an odd count. Skip to the next
		// sheet so fronts keep odd sequence numbers.
		first += first % 2
		m.logger.Debug("continuing sequence after existing scans", "prefix", req.Prefix(), "next", first+1)
	}

	if duplex {
		n, err := m.pass(ctx, doc, 0, func(i int) (int, model.Side) {
			return first + i, model.SideForPosition(i)
		}, nil)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.RequestError("capture", req, fmt.Errorf("%w: %w", device.ErrAcquisition, ErrNoPages))
		}
		m.checkPairs(doc)
		return nil
	}

	front, back := model.SideFront, model.SideBack
	if err := m.prompt(ctx, front); err != nil {
		return model.SideError("capture", req, front, err)
	}
	fronts, err := m.pass(ctx, doc, 0, func(i int) (int, model.Side) {
		return first + 2*i, front
	}, &front)
	if err != nil {
		return err
	}
	if fronts == 0 {
		return model.SideError("capture", req, front, fmt.Errorf("%w: %w", device.ErrAcquisition, ErrNoPages))
	}

	if err := m.prompt(ctx, back); err != nil {
		return model.SideError("capture", req, back, err)
	}
	backs, err := m.pass(ctx, doc, fronts, func(i int) (int, model.Side) {
		return first + 2*i + 1, back
	}, &back)
	if err != nil {
		return err
	}
	if backs != fronts {
		m.warn(doc, "front pass had %d pages but back pass had %d; pages are paired by position", fronts, backs)
	}

	slices.SortStableFunc(doc.Pages, func(a, b *model.Page) int {
		return a.SequenceIndex - b.SequenceIndex
	})
	return nil
}

// pass runs one acquisition. label maps the position within the pass to a
// sequence index and side. side is the face a simplex pass scans, or nil
// for a duplex pass.
func (m *Manager) pass(ctx context.Context, doc *model.Document, countHint int, label func(int) (int, model.Side), side *model.Side) (int, error) {
	req := doc.Request
	n := 0
	for frame, err := range m.device.Acquire(ctx, countHint, side == nil) {
		if err != nil {
			m.cancel(ctx)
			if side != nil {
				return n, model.SideError("capture", req, *side, err)
			}
			return n, model.RequestError("capture", req, err)
		}

		seq, pageSide := label(n)
		page := &model.Page{
			SequenceIndex: seq,
			Side:          pageSide,
			Image:         frame.Image,
			DPI:           frame.DPI,
		}
		page.Stem = req.Stem(page.Sequence(), pageSide)

		path := m.layout.RawPath(page.Stem)
		sum, err := artifact.WritePNG(path, false, frame.Image)
		if err != nil {
			// Breaking out leaves the job in flight.
			m.cancel(ctx)
			return n, model.PageError("capture", req, page, fmt.Errorf("failed to write raw scan: %w", err))
		}
		page.RawPath = path
		page.RawSHA256 = sum
		doc.Pages = append(doc.Pages, page)
		n++

		m.logger.Debug("raw page written", "stem", page.Stem, "source", frame.Source, "dpi", frame.DPI)
		m.onPage(page)
	}
	return n, nil
}

// cancel abandons the current job even when ctx is already done.
func (m *Manager) cancel(ctx context.Context) {
	if err := m.device.Cancel(context.WithoutCancel(ctx)); err != nil {
		m.logger.Warn("failed to cancel scan job", "error", err)
	}
}

// checkPairs warns when a duplex scan has an odd page count.
func (m *Manager) checkPairs(doc *model.Document) {
	fronts, backs := doc.CountSide(model.SideFront), doc.CountSide(model.SideBack)
	if fronts != backs {
		m.warn(doc, "duplex scan produced %d fronts and %d backs", fronts, backs)
	}
}

func (m *Manager) warn(doc *model.Document, format string, args ...any) {
	doc.AddWarning(format, args...)
	m.events.Emit(console.Warning(format, args...))
}
