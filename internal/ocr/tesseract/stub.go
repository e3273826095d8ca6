//go:build !ocr

package tesseract

import (
	"context"

	"github.com/nao1215/prism/internal/ocr"
)

// Available reports whether this build includes Tesseract.
func Available() bool { return false }

type disabled struct{}

// New returns an engine that reports ocr.ErrOCRNotEnabled.
func New() ocr.Engine { return disabled{} }

func (disabled) Name() string { return "tesseract" }

func (disabled) Recognize(context.Context, ocr.Input) (ocr.Result, error) {
	return ocr.Result{}, ocr.ErrOCRNotEnabled
}
