package ocr

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrEngineFailure is returned when the engine could not recognize a page.
	ErrEngineFailure = errors.New("OCR engine failure")

	// ErrOCRNotEnabled is returned by the engine of builds without OCR support.
	ErrOCRNotEnabled = errors.New("OCR support not enabled in this build (rebuild with -tags ocr)")
)

// Input is one page handed to an engine.
type Input struct {
	// Image is the redacted raster.
	Image image.Image

	// DPI helps the engine pick text sizes. Zero means unknown.
	DPI int

	// Languages are engine language codes such as "eng".
	Languages []string
}

// Word is one recognized word in pixel coordinates of the input image.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// Line is a recognized text line box. Words are assigned to lines by
// position.
type Line struct {
	Box image.Rectangle
}

// Result is the engine output for one page.
type Result struct {
	// Text is the engine's own plain text rendering.
	Text string

	// Words holds positioned word boxes.
	Words []Word

	// Lines holds text line boxes, when the engine reports them.
	Lines []Line
}

// Engine recognizes text in images.
type Engine interface {
	// Name identifies the engine in logs.
	Name() string

	// Recognize runs OCR on in. Failures wrap ErrEngineFailure.
	Recognize(ctx context.Context, in Input) (Result, error)
}
