package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default directory names, relative to the workspace root.
const (
	DefaultOverlayDir    = "redaction-overlays"
	DefaultScansDir      = "Scans"
	DefaultRedactionsDir = "Redactions"
	DefaultOCRDir        = "OCR"
)

// File name prefixes and the image extension.
const (
	RedactedPrefix = "REDACTED_"
	OCRPrefix      = "OCR_"
	ImageExt       = ".png"
	TextExt        = ".txt"
	PDFExt         = ".pdf"
)

// Layout holds the directories artifacts are read from and written to.
type Layout struct {
	// Overlays holds Form-{2|3}-{front|back}.png. Read-only.
	Overlays string

	// Scans receives RawArtifacts.
	Scans string

	// Redactions receives RedactedArtifacts.
	Redactions string

	// OCR receives text and searchable-page artifacts.
	OCR string
}

// NewLayout returns the default layout under root.
func NewLayout(root string) Layout {
	return Layout{
		Overlays:   filepath.Join(root, DefaultOverlayDir),
		Scans:      filepath.Join(root, DefaultScansDir),
		Redactions: filepath.Join(root, DefaultRedactionsDir),
		OCR:        filepath.Join(root, DefaultOCRDir),
	}
}

// EnsureOutputDirs creates the output directories if they are missing.
// The overlay directory is an input and is not created.
func (l Layout) EnsureOutputDirs() error {
	for _, dir := range []string{l.Scans, l.Redactions, l.OCR} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RawPath returns the RawArtifact path for stem.
func (l Layout) RawPath(stem string) string {
	return filepath.Join(l.Scans, stem+ImageExt)
}

// RedactedPath returns the RedactedArtifact path for stem.
func (l Layout) RedactedPath(stem string) string {
	return filepath.Join(l.Redactions, RedactedPrefix+stem+ImageExt)
}

// TextPath returns the OCR text path for stem.
func (l Layout) TextPath(stem string) string {
	return filepath.Join(l.OCR, OCRPrefix+stem+TextExt)
}

// PDFPath returns the searchable-page path for stem.
func (l Layout) PDFPath(stem string) string {
	return filepath.Join(l.OCR, OCRPrefix+stem+PDFExt)
}
