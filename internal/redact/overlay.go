package redact

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nao1215/prism/internal/model"
)

type overlayKey struct {
	form model.FormType
	side model.Side
}

// OverlayStore loads overlays from a directory and caches them per form and
// side. Overlay files are never written.
type OverlayStore struct {
	dir string

	mu    sync.Mutex
	cache map[overlayKey]*image.NRGBA
}

// NewOverlayStore returns a store reading from dir.
func NewOverlayStore(dir string) *OverlayStore {
	return &OverlayStore{
		dir:   dir,
		cache: make(map[overlayKey]*image.NRGBA),
	}
}

// OverlayName returns the file name of the overlay for form and side,
// e.g. "Form-2-front.png".
func OverlayName(form model.FormType, side model.Side) string {
	return fmt.Sprintf("Form-%s-%s.png", form, side)
}

// Path returns the overlay path for form and side.
func (s *OverlayStore) Path(form model.FormType, side model.Side) string {
	return filepath.Join(s.dir, OverlayName(form, side))
}

// Load returns the overlay for form and side.
func (s *OverlayStore) Load(form model.FormType, side model.Side) (*image.NRGBA, error) {
	key := overlayKey{form: form, side: side}

	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.cache[key]; ok {
		return img, nil
	}

	path := s.Path(form, side)
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrOverlayMissing, path)
		}
		return nil, fmt.Errorf("failed to open overlay %s: %w", path, err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode overlay %s: %w", path, err)
	}

	img := toNRGBA(decoded)
	s.cache[key] = img
	return img, nil
}

// Missing lists the overlay files that do not exist for the given forms.
func (s *OverlayStore) Missing(forms ...model.FormType) []string {
	var missing []string
	for _, form := range forms {
		for _, side := range model.Sides {
			if _, err := os.Stat(s.Path(form, side)); err != nil {
				missing = append(missing, s.Path(form, side))
			}
		}
	}
	return missing
}

// toNRGBA copies img into a zero-origin NRGBA image.
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
