package model

import "image"

// Page is one acquired page image with its side assignment and the
// artifacts written for it.
type Page struct {
	// SequenceIndex is the zero-based position of the page in the file name
	// sequence. The number used in file names is SequenceIndex+1.
	SequenceIndex int `json:"sequence_index"`

	// Side is assigned from the page's position in physical scan order.
	Side Side `json:"side"`

	// Image is the decoded raster. It is released once the page is written.
	Image image.Image `json:"-"`

	// DPI is the resolution reported by the device, or the configured one.
	DPI int `json:"dpi"`

	// Stem is the file name stem shared by all artifacts of the page.
	Stem string `json:"stem"`

	// RawPath is the written RawArtifact.
	RawPath string `json:"raw_path,omitempty"`

	// RedactedPath is the written RedactedArtifact. Empty when redaction
	// did not complete.
	RedactedPath string `json:"redacted_path,omitempty"`

	// TextPath and PDFPath are the OCR products, when OCR ran.
	TextPath string `json:"text_path,omitempty"`
	PDFPath  string `json:"pdf_path,omitempty"`

	// RawSHA256 and RedactedSHA256 are hex digests of the written files.
	RawSHA256      string `json:"raw_sha256,omitempty"`
	RedactedSHA256 string `json:"redacted_sha256,omitempty"`

	// Normalized is true when the overlay had to be resampled to fit.
	Normalized bool `json:"normalized,omitempty"`
}

// Sequence returns the 1-based sequence number used in file names.
func (p *Page) Sequence() int {
	return p.SequenceIndex + 1
}

// Redacted reports whether a RedactedArtifact exists for the page.
func (p *Page) Redacted() bool {
	return p.RedactedPath != ""
}
