package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pointsPerInch = 72.0
	defaultDPI    = 300

	// invisibleText is PDF text rendering mode 3: neither fill nor stroke.
	invisibleText = 3
)

// WriteSearchablePDF writes a one-page PDF showing img at its physical size
// with each word as invisible text over its box.
func WriteSearchablePDF(w io.Writer, img image.Image, dpi int, words []Word) error {
	if dpi <= 0 {
		dpi = defaultDPI
	}
	scale := pointsPerInch / float64(dpi)
	b := img.Bounds()
	pageW, pageH := float64(b.Dx())*scale, float64(b.Dy())*scale

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("prism", true)
	pdf.AddPage()

	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return fmt.Errorf("failed to encode page image: %w", err)
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("page", opts, &raster)
	pdf.ImageOptions("page", 0, 0, pageW, pageH, false, opts, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextRenderingMode(invisibleText)
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	for _, word := range words {
		box := word.Box.Sub(b.Min)
		size := float64(box.Dy()) * scale
		if size < 1 {
			size = 1
		}
		pdf.SetFontSize(size)
		pdf.Text(float64(box.Min.X)*scale, float64(box.Max.Y)*scale, translate(word.Text))
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to build PDF: %w", err)
	}
	return pdf.Output(w)
}
