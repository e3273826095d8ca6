package ocr

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/nao1215/prism/internal/artifact"
)

// Artifacts are the files written for one page.
type Artifacts struct {
	TextPath string
	PDFPath  string
}

// WritePage writes the text file and the searchable PDF of page. A failed
// step does not remove the file written before it; the returned Artifacts
// names what was written.
func WritePage(page Page, redacted image.Image, dpi int, textPath, pdfPath string, replace bool) (Artifacts, error) {
	var out Artifacts
	var errs []error

	if _, err := artifact.WriteBytes(textPath, replace, []byte(page.Text)); err != nil {
		errs = append(errs, fmt.Errorf("text: %w", err))
	} else {
		out.TextPath = textPath
	}

	_, err := artifact.Write(pdfPath, replace, func(w io.Writer) error {
		return WriteSearchablePDF(w, redacted, dpi, page.Words)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("pdf: %w", err))
	} else {
		out.PDFPath = pdfPath
	}

	return out, errors.Join(errs...)
}

// Summary is a short description of page for operator messages.
func Summary(page Page) string {
	lines := 0
	if page.Text != "" {
		lines = strings.Count(page.Text, "\n")
	}
	return fmt.Sprintf("%d words on %d lines, %d discarded under the mask", len(page.Words), lines, page.Dropped)
}
