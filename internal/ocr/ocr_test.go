package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/resilience"
)

// mockEngine returns a scripted result and counts calls.
type mockEngine struct {
	result    Result
	err       error
	callCount int
	lastInput Input
}

func (m *mockEngine) Name() string { return "mock" }

func (m *mockEngine) Recognize(_ context.Context, in Input) (Result, error) {
	m.callCount++
	m.lastInput = in
	return m.result, m.err
}

func word(text string, x0, y0, x1, y1 int) Word {
	return Word{Text: text, Box: image.Rect(x0, y0, x1, y1), Confidence: 0.9}
}

func quickExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{
		Attempts:       2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
}

// maskWithBox returns a w x h mask occluding r.
func maskWithBox(w, h int, r image.Rectangle) *image.NRGBA {
	m := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.SetNRGBA(x, y, color.NRGBA{A: 0xff})
		}
	}
	return m
}

// TestExtract tests mask filtering and text assembly.
func TestExtract(t *testing.T) {
	t.Parallel()

	t.Run("discards words under the mask", func(t *testing.T) {
		t.Parallel()

		engine := &mockEngine{result: Result{
			Words: []Word{
				word("Name:", 10, 10, 60, 30),
				word("Alice", 70, 10, 120, 30),
				word("Form", 10, 50, 50, 70),
				word("2", 60, 50, 70, 70),
			},
		}}
		mask := maskWithBox(200, 100, image.Rect(65, 5, 130, 35))
		a := NewAssembler(engine, WithExecutor(quickExecutor()), WithLanguages("eng", "deu"))

		page, err := a.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 200, 100)), mask, 300)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(page.Text, "Alice") {
			t.Errorf("masked word leaked into %q", page.Text)
		}
		if page.Text != "Name:\nForm 2\n" {
			t.Errorf("got %q", page.Text)
		}
		if page.Dropped != 1 {
			t.Errorf("got %d dropped, expected 1", page.Dropped)
		}
		if engine.lastInput.DPI != 300 || len(engine.lastInput.Languages) != 2 {
			t.Errorf("unexpected engine input %+v", engine.lastInput)
		}
	})

	t.Run("a word touching a single masked pixel is dropped", func(t *testing.T) {
		t.Parallel()

		mask := maskWithBox(50, 50, image.Rect(29, 29, 30, 30))
		kept, dropped := FilterMasked([]Word{word("edge", 0, 0, 30, 30), word("clear", 0, 31, 30, 40)}, mask)
		if dropped != 1 || len(kept) != 1 || kept[0].Text != "clear" {
			t.Errorf("got %v with %d dropped", kept, dropped)
		}
	})

	t.Run("wraps engine failures", func(t *testing.T) {
		t.Parallel()

		engine := &mockEngine{err: errors.New("tesseract crashed")}
		a := NewAssembler(engine, WithExecutor(quickExecutor()))
		_, err := a.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), nil, 0)
		if !errors.Is(err, ErrEngineFailure) {
			t.Fatalf("expected ErrEngineFailure, got %v", err)
		}
		if engine.callCount != 2 {
			t.Errorf("got %d calls, expected a retry", engine.callCount)
		}
	})

	t.Run("does not retry a build without OCR", func(t *testing.T) {
		t.Parallel()

		engine := &mockEngine{err: ErrOCRNotEnabled}
		a := NewAssembler(engine, WithExecutor(quickExecutor()))
		_, err := a.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), nil, 0)
		if !errors.Is(err, ErrOCRNotEnabled) || !errors.Is(err, ErrEngineFailure) {
			t.Fatalf("expected wrapped ErrOCRNotEnabled, got %v", err)
		}
		if engine.callCount != 1 {
			t.Errorf("got %d calls, expected 1", engine.callCount)
		}
	})
}

// TestBuildText tests line reconstruction.
func TestBuildText(t *testing.T) {
	t.Parallel()

	t.Run("uses engine line boxes", func(t *testing.T) {
		t.Parallel()

		words := []Word{
			word("world", 60, 12, 110, 30),
			word("second", 10, 52, 70, 70),
			word("hello", 10, 10, 50, 28),
		}
		lines := []Line{{Box: image.Rect(5, 5, 120, 35)}, {Box: image.Rect(5, 45, 120, 75)}}
		if got := BuildText(words, lines); got != "hello world\nsecond\n" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("groups by row without line boxes", func(t *testing.T) {
		t.Parallel()

		words := []Word{
			word("b", 40, 12, 50, 30),
			word("c", 10, 60, 20, 80),
			word("a", 10, 10, 20, 28),
		}
		if got := BuildText(words, nil); got != "a b\nc\n" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("normalizes to NFC", func(t *testing.T) {
		t.Parallel()

		got := BuildText([]Word{word("Re\u0301sume\u0301", 0, 0, 10, 10)}, nil)
		if got != "R\u00e9sum\u00e9\n" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty input gives empty text", func(t *testing.T) {
		t.Parallel()

		if got := BuildText(nil, nil); got != "" {
			t.Errorf("got %q", got)
		}
	})
}

// TestWritePage tests the OCR artifacts.
func TestWritePage(t *testing.T) {
	t.Parallel()

	t.Run("writes text and a searchable pdf", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		page := Page{Text: "Form 2\n", Words: []Word{word("Form", 10, 10, 50, 30), word("2", 60, 10, 70, 30)}}
		img := image.NewGray(image.Rect(0, 0, 300, 150))

		out, err := WritePage(page, img, 150, filepath.Join(dir, "OCR_x.txt"), filepath.Join(dir, "OCR_x.pdf"), false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		text, err := os.ReadFile(out.TextPath)
		if err != nil || string(text) != "Form 2\n" {
			t.Errorf("unexpected text file %q: %v", text, err)
		}
		pdf, err := os.ReadFile(out.PDFPath)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
			t.Error("expected a PDF header")
		}
	})

	t.Run("reports files that already exist", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		txt := filepath.Join(dir, "OCR_x.txt")
		if err := os.WriteFile(txt, []byte("old"), 0600); err != nil {
			t.Fatal(err)
		}
		out, err := WritePage(Page{}, image.NewGray(image.Rect(0, 0, 10, 10)), 0, txt, filepath.Join(dir, "OCR_x.pdf"), false)
		if err == nil {
			t.Fatal("expected an error for the existing text file")
		}
		if out.TextPath != "" || out.PDFPath == "" {
			t.Errorf("unexpected artifacts %+v", out)
		}
	})
}
