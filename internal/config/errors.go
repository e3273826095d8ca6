package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrUnknownBackend is returned when backend is not auto, sane, hpaio
	// or folder.
	ErrUnknownBackend = errors.New("invalid backend: must be auto, sane, hpaio or folder")

	// ErrInboxRequired is returned when the folder backend has no inbox.
	ErrInboxRequired = errors.New("folder backend requires an inbox directory")

	// ErrInvalidResolution is returned when the resolution is not positive.
	ErrInvalidResolution = errors.New("invalid resolution: must be positive")

	// ErrInvalidAspectTolerance is returned when the aspect tolerance is
	// outside [0, 0.5].
	ErrInvalidAspectTolerance = errors.New("invalid aspect tolerance: must be between 0 and 0.5")

	// ErrInvalidRetryAttempts is returned when OCR attempts is below one.
	ErrInvalidRetryAttempts = errors.New("invalid OCR retry attempts: must be at least 1")

	// ErrInvalidJobs is returned when the redact job count is below one.
	ErrInvalidJobs = errors.New("invalid jobs: must be at least 1")

	// ErrNoLanguages is returned when OCR has no language.
	ErrNoLanguages = errors.New("at least one OCR language is required")
)
