package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs the history as plain text.
type SimpleWriter struct {
	baseWriter

	// verbose adds warnings and performed steps per document.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables per-document details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithSimpleOptions applies shared writer options.
func WithSimpleOptions(opts ...Option) SimpleWriterOption {
	return func(w *SimpleWriter) {
		for _, opt := range opts {
			opt(&w.baseWriter)
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs h in human-readable form.
func (w *SimpleWriter) Write(h *History) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, h)
	w.writeSummary(&sb, h)
	w.writeDocuments(&sb, h)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, h *History) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        PRISM DOCUMENT HISTORY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Generated:  %s\n", formatTime(h.Generated))
	if h.Filter != "" {
		fmt.Fprintf(sb, "Filter:     %s\n", h.Filter)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, h *History) {
	sb.WriteString("SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")

	counts := h.StatusCounts()
	for _, status := range statusOrder {
		if counts[status] == 0 {
			continue
		}
		fmt.Fprintf(sb, "  %-18s %d\n", string(status)+":", counts[status])
	}
	raw, redacted := h.PageCounts()
	fmt.Fprintf(sb, "  %-18s %d\n", "documents:", len(h.Documents))
	fmt.Fprintf(sb, "  %-18s %d raw, %d redacted\n", "pages:", raw, redacted)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeDocuments(sb *strings.Builder, h *History) {
	sb.WriteString("DOCUMENTS\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")

	if len(h.Documents) == 0 {
		sb.WriteString("  No documents recorded.\n")
		return
	}

	for _, d := range h.Documents {
		fmt.Fprintf(sb, "  #%d  %s  Form %s  WID %s  %s  pages %d/%d  %s\n",
			d.ID, d.Date, d.FormType, w.wid(d.WID), d.Status, d.Redacted, d.Pages, formatTime(d.Created))
		if d.Error != "" {
			fmt.Fprintf(sb, "       error: %s\n", d.Error)
		}
		if !w.verbose {
			continue
		}
		fmt.Fprintf(sb, "       session: %s  duration: %s\n", d.SessionID, duration(d))
		if len(d.Steps) > 0 {
			fmt.Fprintf(sb, "       steps: %s\n", strings.Join(d.Steps, " -> "))
		}
		for _, warning := range d.Warnings {
			fmt.Fprintf(sb, "       warning: %s\n", warning)
		}
	}
}
