package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/model"
)

// createTestHistory creates a history with one complete and one failed
// document.
func createTestHistory() *History {
	created := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return &History{
		Generated: created.Add(time.Hour),
		Filter:    "wid=0012345678",
		Documents: []database.DocumentRecord{
			{
				ID:        2,
				SessionID: "s1",
				WID:       "0012345678",
				FormType:  model.Form3,
				Date:      "2024-06-01",
				Status:    model.StatusRedactionFailed,
				Error:     "redact: overlay missing",
				Pages:     2,
				Redacted:  1,
				Warnings:  []string{"OCR skipped for page 1"},
				Steps:     []string{"capture", "redact"},
				Created:   created.Add(time.Minute),
				Finished:  created.Add(time.Minute + 1500*time.Millisecond),
			},
			{
				ID:        1,
				SessionID: "s1",
				WID:       "0012345678",
				FormType:  model.Form2,
				Date:      "2024-06-01",
				Status:    model.StatusComplete,
				Pages:     2,
				Redacted:  2,
				Steps:     []string{"capture", "redact", "ocr"},
				Created:   created,
				Finished:  created.Add(3 * time.Second),
			},
		},
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	h := createTestHistory()
	counts := h.StatusCounts()
	if counts[model.StatusComplete] != 1 || counts[model.StatusRedactionFailed] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
	raw, redacted := h.PageCounts()
	if raw != 4 || redacted != 3 {
		t.Errorf("expected 4 raw and 3 redacted, got %d and %d", raw, redacted)
	}
}

// TestSimpleWriter tests the plain text history writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"PRISM DOCUMENT HISTORY", "wid=0012345678", "complete:", "redaction_failed:", "4 raw, 3 redacted"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("lists documents with errors", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "#2  2024-06-01  Form 3  WID 0012345678") {
			t.Errorf("expected document line, got:\n%s", output)
		}
		if !strings.Contains(output, "error: redact: overlay missing") {
			t.Error("expected error line")
		}
		if strings.Contains(output, "warning:") {
			t.Error("warnings should only appear in verbose mode")
		}
	})

	t.Run("verbose adds steps and warnings", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestHistory()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "steps: capture -> redact -> ocr") {
			t.Error("expected steps line")
		}
		if !strings.Contains(output, "warning: OCR skipped for page 1") {
			t.Error("expected warning line")
		}
		if !strings.Contains(output, "duration: 1.5s") {
			t.Error("expected duration")
		}
	})

	t.Run("masks WIDs", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithSimpleOptions(WithMaskedWID(true)))
		h := createTestHistory()
		h.Filter = ""
		if _, err := w.Write(h); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "0012345678") {
			t.Error("expected WID to be masked")
		}
		if !strings.Contains(buf.String(), "******5678") {
			t.Error("expected last four digits")
		}
	})

	t.Run("handles an empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(&History{}); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No documents recorded.") {
			t.Error("expected empty message")
		}
	})
}

// TestMarkdownWriter tests the Markdown history writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables and a chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		for _, want := range []string{"# PRISM Document History", "## Status Summary", "## Documents", "pie", "`0012345678`", "redaction failed"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
		if !strings.Contains(output, "[!CAUTION]") {
			t.Error("expected a caution alert for failed redaction")
		}
	})

	t.Run("writes tip when everything succeeded", func(t *testing.T) {
		t.Parallel()

		h := createTestHistory()
		h.Documents = h.Documents[1:]
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(h); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "[!TIP]") {
			t.Error("expected a tip alert")
		}
	})

	t.Run("handles an empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(&History{}); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "pie") {
			t.Error("expected no chart for an empty history")
		}
	})
}

// TestJSONWriter tests the JSON history writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestHistory()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got jsonHistory
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got.Documents) != 2 || got.Documents[0].Status != "redaction_failed" {
			t.Errorf("unexpected documents %+v", got.Documents)
		}
		if got.Documents[1].Finished != "2024-06-01T10:00:03Z" {
			t.Errorf("unexpected finished time %q", got.Documents[1].Finished)
		}
		if !strings.Contains(buf.String(), "\n  \"generated\"") {
			t.Error("expected indented output")
		}
	})

	t.Run("masks WIDs", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithJSONOptions(WithMaskedWID(true))).Write(createTestHistory()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `"wid":"******5678"`) {
			t.Errorf("expected masked WID, got %s", buf.String())
		}
	})
}

type failWriter struct{}

func (failWriter) Write(*History) (int, error) {
	return 0, errors.New("disk full")
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to every writer", func(t *testing.T) {
		t.Parallel()

		var a, b bytes.Buffer
		n, err := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b)).Write(createTestHistory())
		if err != nil {
			t.Fatal(err)
		}
		if n != a.Len()+b.Len() {
			t.Errorf("expected %d bytes, got %d", a.Len()+b.Len(), n)
		}
	})

	t.Run("stops on the first error", func(t *testing.T) {
		t.Parallel()

		var b bytes.Buffer
		_, err := NewMultiWriter(failWriter{}, NewJSONWriter(&b)).Write(createTestHistory())
		if err == nil {
			t.Fatal("expected error")
		}
		if b.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	if got := truncateString("abcdefgh", 5); got != "ab..." {
		t.Errorf("got %q", got)
	}
	if got := truncateString("abc", 5); got != "abc" {
		t.Errorf("got %q", got)
	}
}
