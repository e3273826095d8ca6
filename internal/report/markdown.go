package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/prism/internal/model"
)

// MarkdownWriter outputs the history in Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...Option) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(&w.baseWriter)
	}
	return w
}

// Write outputs h in Markdown.
func (w *MarkdownWriter) Write(h *History) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, h)
	w.writeSummary(md, h)
	w.writeDocuments(md, h)
	w.writeWarnings(md, h)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, h *History) {
	md.H1("PRISM Document History")
	md.PlainText("")

	rows := [][]string{
		{"Generated", formatTime(h.Generated)},
		{"Documents", strconv.Itoa(len(h.Documents))},
	}
	if h.Filter != "" {
		rows = append(rows, []string{"Filter", "`" + h.Filter + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, h *History) {
	md.H2("Status Summary")
	md.PlainText("")

	counts := h.StatusCounts()
	rows := make([][]string, 0, len(statusOrder)+1)
	for _, status := range statusOrder {
		rows = append(rows, []string{statusLabel(status), strconv.Itoa(counts[status])})
	}
	raw, redacted := h.PageCounts()
	rows = append(rows, []string{"**Pages (redacted / raw)**", "**" + strconv.Itoa(redacted) + " / " + strconv.Itoa(raw) + "**"})
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(h.Documents) > 0 {
		w.writePieChart(md, counts)
	}
	w.writeAlert(md, counts, len(h.Documents))
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[model.DocumentStatus]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Document Status"),
		piechart.WithShowData(true),
	)
	for _, status := range statusOrder {
		if counts[status] > 0 {
			chart.LabelAndIntValue(string(status), uint64(counts[status]))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, counts map[model.DocumentStatus]int, total int) {
	switch {
	case counts[model.StatusRedactionFailed] > 0:
		md.Cautionf("%d document(s) have pages without a redacted artifact.", counts[model.StatusRedactionFailed])
	case counts[model.StatusCaptureFailed] > 0:
		md.Warningf("%d document(s) failed during capture.", counts[model.StatusCaptureFailed])
	case counts[model.StatusCancelled] > 0:
		md.Importantf("%d document(s) were interrupted.", counts[model.StatusCancelled])
	case total > 0:
		md.Tip("Every document was captured and redacted.")
	default:
		md.Note("No documents recorded.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDocuments(md *markdown.Markdown, h *History) {
	md.H2("Documents")
	md.PlainText("")

	if len(h.Documents) == 0 {
		md.PlainText("No documents recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(h.Documents))
	for i, d := range h.Documents {
		errMsg := d.Error
		if errMsg == "" {
			errMsg = "-"
		}
		rows[i] = []string{
			strconv.FormatInt(d.ID, 10),
			d.Date,
			d.FormType.String(),
			"`" + w.wid(d.WID) + "`",
			statusLabel(d.Status),
			strconv.Itoa(d.Redacted) + "/" + strconv.Itoa(d.Pages),
			duration(d),
			truncateString(errMsg, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Date", "Form", "WID", "Status", "Redacted", "Duration", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, h *History) {
	for _, d := range h.Documents {
		if len(d.Warnings) == 0 {
			continue
		}
		md.Details("Document "+strconv.FormatInt(d.ID, 10)+" warnings", bulletText(d.Warnings))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by prism*")
}

func bulletText(items []string) string {
	var s string
	for i, item := range items {
		if i > 0 {
			s += "\n"
		}
		s += "- " + item
	}
	return s
}

func statusLabel(s model.DocumentStatus) string {
	switch s {
	case model.StatusComplete:
		return "✅ complete"
	case model.StatusRedactionFailed:
		return "❌ redaction failed"
	case model.StatusCaptureFailed:
		return "⚠️ capture failed"
	case model.StatusCancelled:
		return "⏹ cancelled"
	default:
		return string(s)
	}
}
