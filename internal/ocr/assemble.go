package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/prism/internal/resilience"
)

// Page is the text kept for one redacted page.
type Page struct {
	// Text is the rebuilt, NFC-normalized text, one output line per text line.
	Text string

	// Words are the words outside the mask, in reading order.
	Words []Word

	// Dropped counts words discarded because they touched the mask.
	Dropped int
}

// Assembler runs an Engine on redacted pages and filters its output.
type Assembler struct {
	engine    Engine
	executor  *resilience.Executor
	languages []string
	logger    *slog.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithExecutor routes engine calls through executor.
func WithExecutor(executor *resilience.Executor) AssemblerOption {
	return func(a *Assembler) {
		a.executor = executor
	}
}

// WithLanguages sets the engine languages.
func WithLanguages(languages ...string) AssemblerOption {
	return func(a *Assembler) {
		a.languages = languages
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// NewAssembler returns an Assembler for engine.
func NewAssembler(engine Engine, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		engine:    engine,
		languages: []string{"eng"},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.executor == nil {
		a.executor = resilience.NewExecutor(resilience.DefaultPolicy(), resilience.WithLogger(a.logger))
	}
	return a
}

// Engine returns the wrapped engine name.
func (a *Assembler) Engine() string {
	return a.engine.Name()
}

// Extract recognizes redacted and keeps only the words that do not touch
// an occluded pixel of mask. Every error wraps ErrEngineFailure.
func (a *Assembler) Extract(ctx context.Context, redacted image.Image, mask *image.NRGBA, dpi int) (Page, error) {
	var res Result
	err := a.executor.Execute(ctx, "ocr."+a.engine.Name(), func(ctx context.Context) error {
		r, err := a.engine.Recognize(ctx, Input{Image: redacted, DPI: dpi, Languages: a.languages})
		if err != nil {
			return err
		}
		res = r
		return nil
	}, classify)
	if err != nil {
		if errors.Is(err, ErrEngineFailure) {
			return Page{}, err
		}
		return Page{}, fmt.Errorf("%w: %w", ErrEngineFailure, err)
	}

	kept, dropped := FilterMasked(res.Words, mask)
	if dropped > 0 {
		a.logger.Debug("discarded words under the mask", "count", dropped)
	}
	return Page{
		Text:    BuildText(kept, res.Lines),
		Words:   kept,
		Dropped: dropped,
	}, nil
}

// classify retries engine failures once more but never a build without
// OCR or a cancelled session.
func classify(err error) resilience.Classification {
	switch {
	case errors.Is(err, ErrOCRNotEnabled):
		return resilience.Classification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.Classification{}
	default:
		return resilience.Classification{Retry: true, CountFailure: true}
	}
}

// FilterMasked drops words with empty text and words whose box covers any
// occluded mask pixel. It returns the kept words and the number dropped for
// touching the mask. A nil mask keeps every word.
func FilterMasked(words []Word, mask *image.NRGBA) ([]Word, int) {
	kept := make([]Word, 0, len(words))
	dropped := 0
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		if mask != nil && touchesMask(w.Box, mask) {
			dropped++
			continue
		}
		kept = append(kept, w)
	}
	return kept, dropped
}

func touchesMask(box image.Rectangle, mask *image.NRGBA) bool {
	r := box.Canon().Intersect(mask.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if mask.NRGBAAt(x, y).A > 0 {
				return true
			}
		}
	}
	return false
}

// BuildText rebuilds page text from positioned words. Words are assigned to
// the line box they overlap most; words without a line are grouped by
// vertical overlap. Lines are ordered top to bottom and words left to right.
func BuildText(words []Word, lines []Line) string {
	if len(words) == 0 {
		return ""
	}

	groups := make([][]Word, len(lines))
	var loose []Word
	for _, w := range words {
		best, bestArea := -1, 0
		for i, l := range lines {
			in := w.Box.Intersect(l.Box)
			if area := in.Dx() * in.Dy(); area > bestArea {
				best, bestArea = i, area
			}
		}
		if best < 0 {
			loose = append(loose, w)
			continue
		}
		groups[best] = append(groups[best], w)
	}
	groups = append(groups, groupByRow(loose)...)

	groups = slices.DeleteFunc(groups, func(g []Word) bool { return len(g) == 0 })
	slices.SortStableFunc(groups, func(a, b []Word) int {
		ab, bb := bounds(a), bounds(b)
		if ab.Min.Y != bb.Min.Y {
			return ab.Min.Y - bb.Min.Y
		}
		return ab.Min.X - bb.Min.X
	})

	var sb strings.Builder
	for i, g := range groups {
		slices.SortStableFunc(g, func(a, b Word) int { return a.Box.Min.X - b.Box.Min.X })
		if i > 0 {
			sb.WriteByte('\n')
		}
		for j, w := range g {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.TrimSpace(w.Text))
		}
	}
	sb.WriteByte('\n')
	return norm.NFC.String(sb.String())
}

// groupByRow clusters words whose boxes overlap vertically by at least half
// of the smaller height.
func groupByRow(words []Word) [][]Word {
	sorted := slices.Clone(words)
	slices.SortStableFunc(sorted, func(a, b Word) int { return a.Box.Min.Y - b.Box.Min.Y })

	var rows [][]Word
	var row image.Rectangle
	for _, w := range sorted {
		if len(rows) > 0 && sameRow(row, w.Box) {
			rows[len(rows)-1] = append(rows[len(rows)-1], w)
			row = row.Union(w.Box)
			continue
		}
		rows = append(rows, []Word{w})
		row = w.Box
	}
	return rows
}

func sameRow(row, box image.Rectangle) bool {
	top := max(row.Min.Y, box.Min.Y)
	bottom := min(row.Max.Y, box.Max.Y)
	overlap := bottom - top
	return overlap > 0 && overlap*2 >= min(row.Dy(), box.Dy())
}

func bounds(words []Word) image.Rectangle {
	r := words[0].Box
	for _, w := range words[1:] {
		r = r.Union(w.Box)
	}
	return r
}
