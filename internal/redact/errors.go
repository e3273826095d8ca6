package redact

import "errors"

var (
	// ErrOverlayMissing is returned when no overlay exists for a form and side.
	ErrOverlayMissing = errors.New("redaction overlay missing")

	// ErrDimensionMismatch is returned when the overlay cannot be fitted to the
	// scan without distorting it beyond the aspect tolerance.
	ErrDimensionMismatch = errors.New("overlay and scan dimensions do not match")

	// ErrVerification is returned when a redacted image fails the pixel check.
	ErrVerification = errors.New("redaction verification failed")
)
