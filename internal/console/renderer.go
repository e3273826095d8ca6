package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

const bannerWidth = 60

// Renderer writes events to an operator stream.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	phase   *color.Color
	warning *color.Color
	failure *color.Color
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithColor forces colour output on or off. Without it color.NoColor
// decides, which is false only on terminals.
func WithColor(enabled bool) RendererOption {
	return func(r *Renderer) {
		for _, c := range []*color.Color{r.phase, r.warning, r.failure} {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewRenderer returns a Renderer writing to out.
func NewRenderer(out io.Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{
		out:     out,
		phase:   color.New(color.FgCyan, color.Bold),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Emit implements Emitter.
func (r *Renderer) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case KindPhase:
		_, _ = fmt.Fprintln(r.out)
		_, _ = r.phase.Fprintln(r.out, banner(e.Message))
	case KindWarning:
		_, _ = r.warning.Fprintf(r.out, "WARNING: %s\n", e.Message)
	case KindError:
		_, _ = r.failure.Fprintf(r.out, "ERROR: %s\n", e.Message)
	default:
		_, _ = fmt.Fprintln(r.out, e.Message)
	}
}

// banner centres title in a line of '='.
func banner(title string) string {
	title = " " + strings.ToUpper(title) + " "
	pad := bannerWidth - len(title)
	if pad < 2 {
		return title
	}
	left := pad / 2
	return strings.Repeat("=", left) + title + strings.Repeat("=", pad-left)
}
