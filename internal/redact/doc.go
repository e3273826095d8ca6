// Package redact occludes privacy-protected regions of a page image with a
// pre-authored overlay.
//
// Each form type has one overlay per side. Wherever an overlay pixel has any
// opacity the redacted image takes the overlay colour, fully opaque; every
// other pixel is copied from the raw scan unchanged. Overlays whose size
// differs from the scan are resampled with nearest-neighbour interpolation
// so the mask stays binary, but only when the aspect ratios agree within a
// tolerance. The result is verified pixel by pixel before it may be written.
package redact
