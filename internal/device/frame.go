package device

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dsoprea/go-exif/v3"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
)

// centimetresPerInch converts EXIF resolution unit 3 to DPI.
const centimetresPerInch = 2.54

// DecodeFile reads and decodes the page image at path.
func DecodeFile(path string, fallbackDPI int) (Frame, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Frame{}, acquisitionError("failed to read %s: %v", path, err)
	}
	return Decode(data, path, fallbackDPI)
}

// Decode turns raw scanner output into a Frame. Non-image data is rejected
// as an acquisition failure. The DPI comes from EXIF metadata for JPEG and
// TIFF output and falls back to fallbackDPI otherwise.
func Decode(data []byte, source string, fallbackDPI int) (Frame, error) {
	if !filetype.IsImage(data) {
		return Frame{}, acquisitionError("%s is not an image", source)
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return Frame{}, acquisitionError("failed to detect type of %s: %v", source, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, acquisitionError("failed to decode %s (%s): %v", source, kind.Extension, err)
	}

	dpi := fallbackDPI
	if kind.Extension == "jpg" || kind.Extension == "tif" {
		if d, ok := exifDPI(data); ok {
			dpi = d
		}
	}

	return Frame{
		Image:  img,
		DPI:    dpi,
		Format: kind.Extension,
		Source: source,
	}, nil
}

// exifDPI reads XResolution and ResolutionUnit from embedded EXIF.
func exifDPI(data []byte) (int, bool) {
	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 0, false
	}
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return 0, false
	}

	var resolution float64
	unit := "2"
	for _, entry := range entries {
		switch entry.TagName {
		case "XResolution":
			if r, ok := parseRational(entry.Formatted); ok {
				resolution = r
			}
		case "ResolutionUnit":
			unit = firstField(entry.Formatted)
		}
	}
	if resolution <= 0 {
		return 0, false
	}
	if unit == "3" {
		resolution *= centimetresPerInch
	}
	return int(math.Round(resolution)), true
}

// parseRational parses "300/1", "[300/1]" or "300".
func parseRational(s string) (float64, bool) {
	field := firstField(s)
	num, den, found := strings.Cut(field, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	if !found {
		return n, true
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return n / d, true
}

func firstField(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// String implements fmt.Stringer for log output.
func (f Frame) String() string {
	b := image.Rectangle{}
	if f.Image != nil {
		b = f.Image.Bounds()
	}
	return fmt.Sprintf("%s %dx%d %ddpi", f.Format, b.Dx(), b.Dy(), f.DPI)
}
