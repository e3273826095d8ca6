package redact

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/nao1215/prism/internal/model"
)

// DefaultAspectTolerance is the largest relative aspect-ratio difference for
// which an overlay is resampled to the scan size.
const DefaultAspectTolerance = 0.02

// Result is a redacted page.
type Result struct {
	// Image is the redacted raster, zero-origin, the size of the scan.
	Image draw.Image

	// Mask is the overlay fitted to the scan. A pixel is occluded when its
	// alpha is non-zero.
	Mask *image.NRGBA

	// Normalized is true when the overlay had to be resampled.
	Normalized bool
}

// Occluded reports whether the pixel at (x, y) of mask is covered.
func Occluded(mask *image.NRGBA, x, y int) bool {
	return mask.NRGBAAt(x, y).A > 0
}

// Fit returns overlay at the size of a w x h scan. The overlay is returned
// as is when the sizes agree; it is resampled with nearest-neighbour
// interpolation when the aspect ratios are within tolerance.
func Fit(overlay *image.NRGBA, w, h int, tolerance float64) (*image.NRGBA, bool, error) {
	ob := overlay.Bounds()
	if ob.Dx() == w && ob.Dy() == h {
		return overlay, false, nil
	}
	if w <= 0 || h <= 0 || ob.Dx() <= 0 || ob.Dy() <= 0 {
		return nil, false, fmt.Errorf("%w: scan %dx%d, overlay %dx%d", ErrDimensionMismatch, w, h, ob.Dx(), ob.Dy())
	}

	scanAspect := float64(w) / float64(h)
	overlayAspect := float64(ob.Dx()) / float64(ob.Dy())
	if math.Abs(scanAspect/overlayAspect-1) > tolerance {
		return nil, false, fmt.Errorf("%w: scan %dx%d, overlay %dx%d (aspect %.4f vs %.4f)",
			ErrDimensionMismatch, w, h, ob.Dx(), ob.Dy(), scanAspect, overlayAspect)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), overlay, ob, xdraw.Src, nil)
	return toNRGBA(scaled), true, nil
}

// Composite occludes raw with overlay. Pixels where the fitted overlay has
// any opacity take the overlay colour at full opacity; all others are the
// raw pixel unchanged.
func Composite(raw image.Image, overlay *image.NRGBA, tolerance float64) (Result, error) {
	rb := raw.Bounds()
	w, h := rb.Dx(), rb.Dy()

	mask, normalized, err := Fit(overlay, w, h, tolerance)
	if err != nil {
		return Result{}, err
	}

	canvas := newCanvas(raw, w, h)
	draw.Draw(canvas, canvas.Bounds(), raw, rb.Min, draw.Src)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := mask.NRGBAAt(x, y)
			if o.A == 0 {
				continue
			}
			canvas.Set(x, y, color.NRGBA{R: o.R, G: o.G, B: o.B, A: 0xff})
		}
	}

	return Result{Image: canvas, Mask: mask, Normalized: normalized}, nil
}

// newCanvas returns an output image deep enough to hold raw's pixels
// exactly.
func newCanvas(raw image.Image, w, h int) draw.Image {
	r := image.Rect(0, 0, w, h)
	switch raw.ColorModel() {
	case color.RGBA64Model, color.NRGBA64Model, color.Gray16Model:
		return image.NewNRGBA64(r)
	default:
		return image.NewNRGBA(r)
	}
}

// Verify re-checks a redacted image against the raw scan and the fitted
// mask: every occluded pixel must be the opaque mask colour and every other
// pixel must equal the raw pixel in the redacted image's colour model.
func Verify(raw image.Image, mask *image.NRGBA, redacted image.Image) error {
	rb, mb, db := raw.Bounds(), mask.Bounds(), redacted.Bounds()
	if rb.Dx() != db.Dx() || rb.Dy() != db.Dy() || mb.Dx() != db.Dx() || mb.Dy() != db.Dy() {
		return fmt.Errorf("%w: raw %dx%d, mask %dx%d, redacted %dx%d",
			ErrVerification, rb.Dx(), rb.Dy(), mb.Dx(), mb.Dy(), db.Dx(), db.Dy())
	}

	cm := redacted.ColorModel()
	for y := 0; y < db.Dy(); y++ {
		for x := 0; x < db.Dx(); x++ {
			got := redacted.At(db.Min.X+x, db.Min.Y+y)
			o := mask.NRGBAAt(mb.Min.X+x, mb.Min.Y+y)

			var want color.Color
			if o.A > 0 {
				want = cm.Convert(color.NRGBA{R: o.R, G: o.G, B: o.B, A: 0xff})
			} else {
				want = cm.Convert(raw.At(rb.Min.X+x, rb.Min.Y+y))
			}
			if !sameColor(got, want) {
				kind := "passthrough"
				if o.A > 0 {
					kind = "occlusion"
				}
				return fmt.Errorf("%w: %s pixel (%d,%d) differs", ErrVerification, kind, x, y)
			}
		}
	}
	return nil
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

// Compositor redacts pages with the overlays of a store.
type Compositor struct {
	overlays  *OverlayStore
	tolerance float64
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithAspectTolerance sets the aspect-ratio tolerance for resampling.
func WithAspectTolerance(tolerance float64) Option {
	return func(c *Compositor) {
		c.tolerance = tolerance
	}
}

// NewCompositor returns a Compositor using overlays.
func NewCompositor(overlays *OverlayStore, opts ...Option) *Compositor {
	c := &Compositor{
		overlays:  overlays,
		tolerance: DefaultAspectTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Overlays returns the overlay store.
func (c *Compositor) Overlays() *OverlayStore {
	return c.overlays
}

// Redact composites raw with the overlay for form and side and verifies the
// result. No Result is returned unless verification passed.
func (c *Compositor) Redact(raw image.Image, form model.FormType, side model.Side) (Result, error) {
	overlay, err := c.overlays.Load(form, side)
	if err != nil {
		return Result{}, err
	}
	res, err := Composite(raw, overlay, c.tolerance)
	if err != nil {
		return Result{}, err
	}
	if err := Verify(raw, res.Mask, res.Image); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Mask returns the overlay for form and side fitted to a w x h page, the
// same mask Redact applied to a page of that size.
func (c *Compositor) Mask(form model.FormType, side model.Side, w, h int) (*image.NRGBA, error) {
	overlay, err := c.overlays.Load(form, side)
	if err != nil {
		return nil, err
	}
	mask, _, err := Fit(overlay, w, h, c.tolerance)
	return mask, err
}
