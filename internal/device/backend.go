package device

import (
	"context"
	"image"
	"iter"
)

// Capabilities describes a probed device.
type Capabilities struct {
	// Backend is the name of the backend that found the device.
	Backend string `json:"backend"`

	// Device is the backend specific device identifier (a SANE name, an
	// HPLIP URI or an inbox path).
	Device string `json:"device"`

	// Description is a human readable model description.
	Description string `json:"description,omitempty"`

	// Duplex reports whether both sides of a sheet can be captured in one pass.
	Duplex bool `json:"duplex"`
}

// Frame is one page image as delivered by a device, in physical scan order.
type Frame struct {
	// Image is the decoded raster.
	Image image.Image

	// DPI is the resolution from the file metadata, or the configured one.
	DPI int

	// Format is the detected file type (e.g. "png", "jpg", "tif").
	Format string

	// Source is the file the frame was read from, for diagnostics.
	Source string
}

// Backend is one acquisition mechanism.
//
// Acquire must be lazy, ordered, finite and restartable per call. It is
// never called concurrently. On a device error it yields an error wrapping
// ErrAcquisition and stops, leaving the backend in a state where Cancel then
// Close are safe. Close must be idempotent.
type Backend interface {
	// Name is the backend name used in configuration ("sane", "hpaio", "folder").
	Name() string

	// Probe locates a device. It returns ErrDeviceNotFound when there is none.
	Probe(ctx context.Context) (Capabilities, error)

	// Open claims the device. It returns ErrDeviceBusy when the unit is held
	// elsewhere.
	Open(ctx context.Context) error

	// SupportsDuplex reports the probed duplex capability.
	SupportsDuplex() bool

	// Acquire starts a job and yields its pages. countHint is the expected
	// number of pages, or 0 when unknown.
	Acquire(ctx context.Context, countHint int, duplex bool) iter.Seq2[Frame, error]

	// Cancel abandons the in-flight job, if any. Best effort.
	Cancel(ctx context.Context) error

	// Close releases the device session.
	Close() error
}
