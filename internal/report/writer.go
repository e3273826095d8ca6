package report

import (
	"io"
	"strings"
	"time"

	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/model"
)

// History is the set of ledger documents to render.
type History struct {
	// Generated is when the history was read from the ledger.
	Generated time.Time `json:"generated"`

	// Filter describes the query, e.g. "wid=0012345678". Empty for all.
	Filter string `json:"filter,omitempty"`

	// Documents are newest first.
	Documents []database.DocumentRecord `json:"documents"`
}

// StatusCounts returns the number of documents per status.
func (h *History) StatusCounts() map[model.DocumentStatus]int {
	counts := make(map[model.DocumentStatus]int)
	for _, d := range h.Documents {
		counts[d.Status]++
	}
	return counts
}

// PageCounts returns the total raw and redacted pages.
func (h *History) PageCounts() (raw, redacted int) {
	for _, d := range h.Documents {
		raw += d.Pages
		redacted += d.Redacted
	}
	return raw, redacted
}

// statusOrder is the display order of statuses.
var statusOrder = []model.DocumentStatus{
	model.StatusComplete,
	model.StatusRedactionFailed,
	model.StatusCaptureFailed,
	model.StatusCancelled,
	model.StatusPending,
}

// Writer defines the interface for history output.
type Writer interface {
	// Write outputs h and returns the number of bytes written.
	Write(h *History) (int, error)
}

// MultiWriter writes to multiple Writers in turn and stops on the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs h to all configured Writers.
func (m *MultiWriter) Write(h *History) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(h)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for history writers.
type baseWriter struct {
	output  io.Writer
	maskWID bool
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// wid returns the WID as displayed, keeping only the last four digits when
// masking is on.
func (b baseWriter) wid(w model.WID) string {
	s := w.String()
	if !b.maskWID || len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Option configures any writer in this package.
type Option func(*baseWriter)

// WithMaskedWID shows only the last four digits of each WID.
func WithMaskedWID(mask bool) Option {
	return func(b *baseWriter) {
		b.maskWID = mask
	}
}

// formatTime renders t in local time, or "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// duration renders the processing time of d.
func duration(d database.DocumentRecord) string {
	if d.Finished.IsZero() || d.Created.IsZero() {
		return "-"
	}
	return d.Finished.Sub(d.Created).Round(time.Millisecond).String()
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
