package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/model"
)

// TestCollector tests the textfile output.
func TestCollector(t *testing.T) {
	t.Parallel()

	t.Run("writes recorded measurements", func(t *testing.T) {
		t.Parallel()

		c := NewCollector()
		c.PageCaptured(model.SideFront)
		c.PageCaptured(model.SideBack)
		c.PageRedacted(model.SideFront, 20*time.Millisecond)
		c.OCRFailed("disabled")

		doc := model.NewDocument("s", model.DocumentRequest{})
		doc.Status = model.StatusComplete
		doc.AddWarning("odd page count")
		doc.FinishedAt = doc.StartedAt.Add(3 * time.Second)
		c.DocumentFinished(doc)

		path := filepath.Join(t.TempDir(), "prism.prom")
		if err := c.WriteTextfile(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		out := string(data)
		for _, want := range []string{
			`prism_documents_total{status="complete"} 1`,
			`prism_pages_total{side="back",stage="captured"} 1`,
			`prism_pages_total{side="front",stage="redacted"} 1`,
			`prism_ocr_failures_total{reason="disabled"} 1`,
			`prism_document_warnings_total 1`,
			`prism_document_duration_seconds_count 1`,
			`prism_redaction_duration_seconds_count{side="front"} 1`,
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output does not contain %q", want)
			}
		}
	})

	t.Run("fails for an unwritable path", func(t *testing.T) {
		t.Parallel()

		c := NewCollector()
		if err := c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "prism.prom")); err == nil {
			t.Error("expected error")
		}
	})
}
