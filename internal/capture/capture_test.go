package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/device"
	"github.com/nao1215/prism/internal/model"
)

// mockDevice yields one scripted pass per Acquire call.
type mockDevice struct {
	passes  [][]device.Frame
	failAt  map[int]int // pass -> position that yields an error
	acquire int
	hints   []int
	duplex  []bool
	cancels int
}

func (d *mockDevice) Acquire(_ context.Context, countHint int, duplex bool) iter.Seq2[device.Frame, error] {
	pass := d.acquire
	d.acquire++
	d.hints = append(d.hints, countHint)
	d.duplex = append(d.duplex, duplex)
	return func(yield func(device.Frame, error) bool) {
		if pass >= len(d.passes) {
			return
		}
		for i, f := range d.passes[pass] {
			if at, ok := d.failAt[pass]; ok && at == i {
				yield(device.Frame{}, fmt.Errorf("%w: paper jam", device.ErrAcquisition))
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

func (d *mockDevice) Cancel(context.Context) error {
	d.cancels++
	return nil
}

func frames(n int, shade uint8) []device.Frame {
	out := make([]device.Frame, n)
	for i := range out {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		img.SetGray(0, 0, color.Gray{Y: shade + uint8(i)})
		out[i] = device.Frame{Image: img, DPI: 300, Format: "png", Source: fmt.Sprintf("p%d", i)}
	}
	return out
}

func testRequest() model.DocumentRequest {
	return model.NewDocumentRequest("0012345678", model.Form2, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
}

func newTestManager(t *testing.T, dev Device, opts ...Option) (*Manager, artifact.Layout) {
	t.Helper()
	layout := artifact.NewLayout(t.TempDir())
	if err := layout.EnsureOutputDirs(); err != nil {
		t.Fatal(err)
	}
	return NewManager(dev, layout, opts...), layout
}

// TestCaptureDuplex tests single-pass capture.
func TestCaptureDuplex(t *testing.T) {
	t.Parallel()

	t.Run("three sheets give six alternating pages", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{frames(6, 10)}}
		var hooked int
		m, layout := newTestManager(t, dev, WithPageHook(func(*model.Page) { hooked++ }))
		doc := model.NewDocument("s", testRequest())

		if err := m.Capture(context.Background(), doc, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Pages) != 6 {
			t.Fatalf("got %d pages, expected 6", len(doc.Pages))
		}
		for i, p := range doc.Pages {
			want := model.SideFront
			if i%2 == 1 {
				want = model.SideBack
			}
			if p.Side != want {
				t.Errorf("page %d: got %v, expected %v", i, p.Side, want)
			}
			if p.Sequence() != i+1 {
				t.Errorf("page %d: got sequence %d", i, p.Sequence())
			}
			if _, err := os.Stat(p.RawPath); err != nil {
				t.Errorf("raw artifact missing: %v", err)
			}
			if p.RawSHA256 == "" {
				t.Error("expected a digest")
			}
		}
		if doc.Pages[0].Stem != "2024-06-01_Form2-0012345678_1_front" {
			t.Errorf("unexpected stem %q", doc.Pages[0].Stem)
		}
		if got := filepath.Base(doc.Pages[1].RawPath); got != "2024-06-01_Form2-0012345678_2_back.png" {
			t.Errorf("unexpected file %q", got)
		}
		if filepath.Dir(doc.Pages[1].RawPath) != layout.Scans {
			t.Errorf("raw written outside Scans: %s", doc.Pages[1].RawPath)
		}
		if hooked != 6 {
			t.Errorf("hook called %d times, expected 6", hooked)
		}
		if dev.acquire != 1 || !dev.duplex[0] {
			t.Errorf("expected one duplex acquisition, got %d %v", dev.acquire, dev.duplex)
		}
		if len(doc.Warnings) != 0 {
			t.Errorf("unexpected warnings %v", doc.Warnings)
		}
	})

	t.Run("odd page count is a warning", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestManager(t, &mockDevice{passes: [][]device.Frame{frames(3, 0)}})
		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Warnings) != 1 {
			t.Errorf("expected one warning, got %v", doc.Warnings)
		}
	})

	t.Run("no pages is an acquisition failure", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestManager(t, &mockDevice{passes: [][]device.Frame{nil}})
		doc := model.NewDocument("s", testRequest())
		err := m.Capture(context.Background(), doc, true)
		if !errors.Is(err, device.ErrAcquisition) || !errors.Is(err, ErrNoPages) {
			t.Fatalf("expected ErrAcquisition and ErrNoPages, got %v", err)
		}
		var docErr *model.DocumentError
		if !errors.As(err, &docErr) || docErr.WID != "0012345678" {
			t.Errorf("expected a DocumentError naming the WID, got %v", err)
		}
	})

	t.Run("continues the sequence after earlier scans", func(t *testing.T) {
		t.Parallel()

		m, layout := newTestManager(t, &mockDevice{passes: [][]device.Frame{frames(2, 0)}})
		existing := layout.RawPath(testRequest().Stem(2, model.SideBack))
		if err := os.WriteFile(existing, []byte("old"), 0600); err != nil {
			t.Fatal(err)
		}

		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.Pages[0].Sequence() != 3 || doc.Pages[1].Sequence() != 4 {
			t.Errorf("got sequences %d and %d, expected 3 and 4", doc.Pages[0].Sequence(), doc.Pages[1].Sequence())
		}
		data, err := os.ReadFile(existing)
		if err != nil || string(data) != "old" {
			t.Error("existing scan was modified")
		}
	})

	t.Run("skips to the next sheet after an odd number of earlier scans", func(t *testing.T) {
		t.Parallel()

		m, layout := newTestManager(t, &mockDevice{passes: [][]device.Frame{frames(2, 0)}})
		leftover := layout.RawPath(testRequest().Stem(1, model.SideFront))
		if err := os.WriteFile(leftover, []byte("old"), 0600); err != nil {
			t.Fatal(err)
		}

		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.Pages[0].Sequence() != 3 || doc.Pages[1].Sequence() != 4 {
			t.Errorf("got sequences %d and %d, expected 3 and 4", doc.Pages[0].Sequence(), doc.Pages[1].Sequence())
		}
		if got := filepath.Base(doc.Pages[0].RawPath); got != "2024-06-01_Form2-0012345678_3_front.png" {
			t.Errorf("unexpected front file %q", got)
		}
		if got := filepath.Base(doc.Pages[1].RawPath); got != "2024-06-01_Form2-0012345678_4_back.png" {
			t.Errorf("unexpected back file %q", got)
		}
	})

	t.Run("cancels the job on a device error", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{frames(4, 0)}, failAt: map[int]int{0: 2}}
		m, _ := newTestManager(t, dev)
		doc := model.NewDocument("s", testRequest())

		err := m.Capture(context.Background(), doc, true)
		if !errors.Is(err, device.ErrAcquisition) {
			t.Fatalf("expected ErrAcquisition, got %v", err)
		}
		if dev.cancels != 1 {
			t.Errorf("got %d cancels, expected 1", dev.cancels)
		}
		if len(doc.Pages) != 2 {
			t.Errorf("got %d pages, expected the 2 written before the error", len(doc.Pages))
		}
		for _, p := range doc.Pages {
			if _, err := os.Stat(p.RawPath); err != nil {
				t.Errorf("raw artifact removed: %v", err)
			}
		}
	})
}

// TestCaptureSimplex tests two-pass capture.
func TestCaptureSimplex(t *testing.T) {
	t.Parallel()

	t.Run("pairs fronts and backs by index", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{frames(2, 10), frames(2, 100)}}
		var prompts []model.Side
		m, _ := newTestManager(t, dev, WithPassPrompt(func(_ context.Context, side model.Side) error {
			prompts = append(prompts, side)
			return nil
		}))
		doc := model.NewDocument("s", testRequest())

		if err := m.Capture(context.Background(), doc, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(prompts) != 2 || prompts[0] != model.SideFront || prompts[1] != model.SideBack {
			t.Errorf("unexpected prompts %v", prompts)
		}
		wantSides := []model.Side{model.SideFront, model.SideBack, model.SideFront, model.SideBack}
		if len(doc.Pages) != len(wantSides) {
			t.Fatalf("got %d pages, expected 4", len(doc.Pages))
		}
		for i, p := range doc.Pages {
			if p.Side != wantSides[i] || p.Sequence() != i+1 {
				t.Errorf("page %d: got %v seq %d", i, p.Side, p.Sequence())
			}
		}
		// The second page is the first frame of the back pass.
		if doc.Pages[1].Image.(*image.Gray).GrayAt(0, 0).Y != 100 {
			t.Error("back page paired with the wrong frame")
		}
		if dev.hints[1] != 2 {
			t.Errorf("back pass hint %d, expected 2", dev.hints[1])
		}
		if dev.duplex[0] || dev.duplex[1] {
			t.Error("simplex capture requested duplex")
		}
	})

	t.Run("pass count mismatch is only a warning", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestManager(t, &mockDevice{passes: [][]device.Frame{frames(3, 0), frames(2, 0)}})
		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(doc.Pages) != 5 {
			t.Errorf("got %d pages, expected 5", len(doc.Pages))
		}
		if len(doc.Warnings) != 1 {
			t.Errorf("expected a mismatch warning, got %v", doc.Warnings)
		}
	})

	t.Run("empty front pass fails", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{nil, frames(2, 0)}}
		m, _ := newTestManager(t, dev)
		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, false); !errors.Is(err, ErrNoPages) {
			t.Fatalf("expected ErrNoPages, got %v", err)
		}
		if dev.acquire != 1 {
			t.Errorf("back pass ran after an empty front pass")
		}
	})

	t.Run("back pass error names the side", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{frames(2, 0), frames(2, 0)}, failAt: map[int]int{1: 1}}
		m, _ := newTestManager(t, dev)
		doc := model.NewDocument("s", testRequest())

		err := m.Capture(context.Background(), doc, false)
		if !errors.Is(err, device.ErrAcquisition) {
			t.Fatalf("expected ErrAcquisition, got %v", err)
		}
		var docErr *model.DocumentError
		if !errors.As(err, &docErr) || !docErr.HasSide || docErr.Side != model.SideBack {
			t.Fatalf("expected a back-side DocumentError, got %#v", err)
		}
		if !strings.Contains(err.Error(), "back pass") {
			t.Errorf("message does not name the side: %q", err.Error())
		}
		if dev.cancels != 1 {
			t.Errorf("got %d cancels, expected 1", dev.cancels)
		}
		if len(doc.Pages) != 3 {
			t.Errorf("got %d pages, expected 2 fronts and 1 back", len(doc.Pages))
		}
	})

	t.Run("empty front pass names the side", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestManager(t, &mockDevice{passes: [][]device.Frame{nil}})
		doc := model.NewDocument("s", testRequest())
		err := m.Capture(context.Background(), doc, false)
		var docErr *model.DocumentError
		if !errors.As(err, &docErr) || !docErr.HasSide || docErr.Side != model.SideFront {
			t.Fatalf("expected a front-side DocumentError, got %v", err)
		}
	})

	t.Run("prompt error stops before scanning", func(t *testing.T) {
		t.Parallel()

		dev := &mockDevice{passes: [][]device.Frame{frames(1, 0)}}
		m, _ := newTestManager(t, dev, WithPassPrompt(func(context.Context, model.Side) error {
			return context.Canceled
		}))
		doc := model.NewDocument("s", testRequest())
		if err := m.Capture(context.Background(), doc, false); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if dev.acquire != 0 {
			t.Error("device acquired after the prompt failed")
		}
	})
}
