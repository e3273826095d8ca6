//go:build ocr

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/nao1215/prism/internal/ocr"
)

// Available reports whether this build includes Tesseract.
func Available() bool { return true }

// Engine recognizes text with a fresh gosseract client per page.
type Engine struct {
	newClient func() *gosseract.Client
}

// New returns a Tesseract engine.
func New() ocr.Engine {
	return &Engine{newClient: gosseract.NewClient}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return "tesseract" }

// Recognize implements ocr.Engine.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, in.Image); err != nil {
		return ocr.Result{}, fmt.Errorf("%w: encode image: %v", ocr.ErrEngineFailure, err)
	}

	c := e.newClient()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return ocr.Result{}, fmt.Errorf("%w: set image: %v", ocr.ErrEngineFailure, err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("%w: set languages: %v", ocr.ErrEngineFailure, err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("%w: set dpi: %v", ocr.ErrEngineFailure, err)
		}
	}

	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%w: recognize: %v", ocr.ErrEngineFailure, err)
	}

	words, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%w: word boxes: %v", ocr.ErrEngineFailure, err)
	}
	lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%w: line boxes: %v", ocr.ErrEngineFailure, err)
	}

	origin := in.Image.Bounds().Min
	res := ocr.Result{
		Text:  strings.TrimSpace(text),
		Words: make([]ocr.Word, 0, len(words)),
		Lines: make([]ocr.Line, 0, len(lines)),
	}
	for _, b := range words {
		res.Words = append(res.Words, ocr.Word{
			Text:       b.Word,
			Box:        b.Box.Add(origin),
			Confidence: b.Confidence / 100,
		})
	}
	for _, b := range lines {
		res.Lines = append(res.Lines, ocr.Line{Box: b.Box.Add(origin)})
	}
	return res, nil
}
