package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// testPNG returns an encoded w x h PNG filled with c.
func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// mockBackend is a scripted Backend that records lifecycle calls.
type mockBackend struct {
	name     string
	probeErr error
	openErr  error
	duplex   bool
	frames   []Frame
	failAt   int  // yield an error instead of frames[failAt]; -1 disables
	block    bool // block after the frames until ctx is done

	mu            sync.Mutex
	calls         []string
	cancelCount   int
	closeCount    int
	cancelCtxLive bool
}

func newMockBackend(frames int) *mockBackend {
	b := &mockBackend{name: "mock", failAt: -1, duplex: true}
	for i := 0; i < frames; i++ {
		b.frames = append(b.frames, Frame{
			Image:  image.NewNRGBA(image.Rect(0, 0, 4, 4)),
			DPI:    300,
			Format: "png",
			Source: fmt.Sprintf("frame-%d", i),
		})
	}
	return b
}

func (b *mockBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

func (b *mockBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *mockBackend) Name() string { return b.name }

func (b *mockBackend) Probe(_ context.Context) (Capabilities, error) {
	b.record("probe")
	if b.probeErr != nil {
		return Capabilities{}, b.probeErr
	}
	return Capabilities{Backend: b.name, Device: "mock0", Duplex: b.duplex}, nil
}

func (b *mockBackend) Open(_ context.Context) error {
	b.record("open")
	return b.openErr
}

func (b *mockBackend) SupportsDuplex() bool { return b.duplex }

func (b *mockBackend) Acquire(ctx context.Context, _ int, _ bool) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		b.record("acquire")
		for i, f := range b.frames {
			if i == b.failAt {
				yield(Frame{}, errors.New("paper jam"))
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if b.block {
			<-ctx.Done()
			yield(Frame{}, ctx.Err())
		}
	}
}

func (b *mockBackend) Cancel(ctx context.Context) error {
	b.record("cancel")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCount++
	b.cancelCtxLive = ctx.Err() == nil
	return nil
}

func (b *mockBackend) Close() error {
	b.record("close")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCount++
	return nil
}

// mockProcess is a Process controlled by the test.
type mockProcess struct {
	done      chan struct{}
	err       error
	once      sync.Once
	interrupt int
	kill      int
	mu        sync.Mutex
}

func newMockProcess() *mockProcess {
	return &mockProcess{done: make(chan struct{})}
}

func (p *mockProcess) exit(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *mockProcess) Done() <-chan struct{} { return p.done }

func (p *mockProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *mockProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupt++
	p.mu.Unlock()
	p.exit(errors.New("interrupted"))
	return nil
}

func (p *mockProcess) Kill() error {
	p.mu.Lock()
	p.kill++
	p.mu.Unlock()
	p.exit(errors.New("killed"))
	return nil
}

// mockRunner answers Output calls from a table and simulates started
// processes by writing page files into the batch directory.
type mockRunner struct {
	t        *testing.T
	outputs  map[string]string
	failures map[string]error
	pages    int
	exitErr  error
	keepOpen bool

	mu      sync.Mutex
	started [][]string
	procs   []*mockProcess
}

func (r *mockRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	out := r.outputs[key]
	if err, ok := r.failures[key]; ok {
		return []byte(out), err
	}
	return []byte(out), nil
}

func (r *mockRunner) Start(_ context.Context, name string, args ...string) (Process, error) {
	r.mu.Lock()
	r.started = append(r.started, append([]string{name}, args...))
	r.mu.Unlock()

	for _, arg := range args {
		var target string
		switch {
		case strings.HasPrefix(arg, "--batch="):
			target = strings.TrimPrefix(arg, "--batch=")
		case strings.HasPrefix(arg, "--file="):
			target = strings.TrimSuffix(strings.TrimPrefix(arg, "--file="), ".png") + "-%03d.png"
		}
		if target == "" {
			continue
		}
		for i := 1; i <= r.pages; i++ {
			path := fmt.Sprintf(target, i)
			if err := os.WriteFile(path, testPNG(r.t, 8, 10, color.White), 0600); err != nil {
				r.t.Fatal(err)
			}
		}
		// A page still being written must not be yielded.
		if r.keepOpen {
			partial := filepath.Join(filepath.Dir(target), "page-099.png.part")
			_ = os.WriteFile(partial, []byte("partial"), 0600)
		}
	}

	p := newMockProcess()
	r.mu.Lock()
	r.procs = append(r.procs, p)
	r.mu.Unlock()
	if !r.keepOpen {
		p.exit(r.exitErr)
	}
	return p, nil
}

func (r *mockRunner) lastArgs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.started) == 0 {
		return nil
	}
	return r.started[len(r.started)-1]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
