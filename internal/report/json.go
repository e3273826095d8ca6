package report

import (
	"encoding/json"
	"io"
)

// JSONWriter outputs the history as JSON.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed output.
	indent bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// WithJSONOptions applies shared writer options.
func WithJSONOptions(opts ...Option) JSONWriterOption {
	return func(w *JSONWriter) {
		for _, opt := range opts {
			opt(&w.baseWriter)
		}
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type jsonDocument struct {
	ID        int64    `json:"id"`
	SessionID string   `json:"session_id"`
	WID       string   `json:"wid"`
	FormType  int      `json:"form_type"`
	Date      string   `json:"date"`
	Status    string   `json:"status"`
	Error     string   `json:"error,omitempty"`
	Pages     int      `json:"pages"`
	Redacted  int      `json:"redacted"`
	Warnings  []string `json:"warnings,omitempty"`
	Steps     []string `json:"steps,omitempty"`
	Created   string   `json:"created"`
	Finished  string   `json:"finished,omitempty"`
}

type jsonHistory struct {
	Generated string         `json:"generated"`
	Filter    string         `json:"filter,omitempty"`
	Documents []jsonDocument `json:"documents"`
}

// Write outputs h as one JSON object followed by a newline.
func (w *JSONWriter) Write(h *History) (int, error) {
	out := jsonHistory{
		Generated: h.Generated.UTC().Format(timeFormatJSON),
		Filter:    h.Filter,
		Documents: make([]jsonDocument, 0, len(h.Documents)),
	}
	for _, d := range h.Documents {
		doc := jsonDocument{
			ID:        d.ID,
			SessionID: d.SessionID,
			WID:       w.wid(d.WID),
			FormType:  int(d.FormType),
			Date:      d.Date,
			Status:    string(d.Status),
			Error:     d.Error,
			Pages:     d.Pages,
			Redacted:  d.Redacted,
			Warnings:  d.Warnings,
			Steps:     d.Steps,
			Created:   d.Created.UTC().Format(timeFormatJSON),
		}
		if !d.Finished.IsZero() {
			doc.Finished = d.Finished.UTC().Format(timeFormatJSON)
		}
		out.Documents = append(out.Documents, doc)
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(out, "", "  ")
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

const timeFormatJSON = "2006-01-02T15:04:05Z07:00"
