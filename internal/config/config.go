package config

import (
	"path/filepath"
	"slices"

	"github.com/adrg/xdg"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/device"
	"github.com/nao1215/prism/internal/redact"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "prism"

	// DefaultBackend probes hpaio then sane.
	DefaultBackend = device.BackendAuto

	// DefaultResolution is the scan resolution in DPI.
	DefaultResolution = device.DefaultResolution

	// DefaultMode is the scan colour mode.
	DefaultMode = device.DefaultMode

	// DefaultOCRRetryAttempts is the number of engine calls per page.
	DefaultOCRRetryAttempts = 2

	// DefaultJobs is the concurrency of the redact command.
	DefaultJobs = 4

	// DefaultLanguage is the OCR language.
	DefaultLanguage = "eng"

	// DatabaseFile is the ledger file name inside DBDir.
	DatabaseFile = "prism.db"

	maxAspectTolerance = 0.5
)

// Config holds all PRISM options. It is populated from defaults, then the
// .prism file, then command line flags.
type Config struct {
	// Workdir is the root that relative directories are resolved against.
	Workdir string

	// OverlayDir holds Form-{2|3}-{front|back}.png.
	OverlayDir string

	// ScansDir, RedactionsDir and OCRDir receive the artifacts.
	ScansDir      string
	RedactionsDir string
	OCRDir        string

	// Backend is auto, sane, hpaio or folder.
	Backend string

	// Device pins a scanner device name or URI. Empty takes the first found.
	Device string

	// Inbox is the directory read by the folder backend.
	Inbox string

	// Resolution is the scan resolution in DPI.
	Resolution int

	// Mode is the scanner colour mode, e.g. "Color" or "Gray".
	Mode string

	// OCR is the default answer of the OCR prompt.
	OCR bool

	// Languages are the OCR engine languages.
	Languages []string

	// AspectTolerance bounds the overlay resampling.
	AspectTolerance float64

	// MetricsFile receives Prometheus metrics at teardown. Empty disables.
	MetricsFile string

	// DBDir holds the ledger database. Defaults to the XDG data directory.
	DBDir string

	// OCRRetryAttempts is the number of engine calls per page.
	OCRRetryAttempts int

	// Jobs is the concurrency of the redact command.
	Jobs int

	// Force lets the redact command replace existing outputs.
	Force bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit configuration file.
	ConfigFilePath string
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		Workdir:          ".",
		OverlayDir:       artifact.DefaultOverlayDir,
		ScansDir:         artifact.DefaultScansDir,
		RedactionsDir:    artifact.DefaultRedactionsDir,
		OCRDir:           artifact.DefaultOCRDir,
		Backend:          DefaultBackend,
		Resolution:       DefaultResolution,
		Mode:             DefaultMode,
		OCR:              true,
		Languages:        []string{DefaultLanguage},
		AspectTolerance:  redact.DefaultAspectTolerance,
		DBDir:            XDGDataDir(),
		OCRRetryAttempts: DefaultOCRRetryAttempts,
		Jobs:             DefaultJobs,
	}
}

// XDGDataDir returns the XDG data directory for PRISM.
// On Linux: ~/.local/share/prism
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for PRISM.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// resolve joins a relative dir with the workdir.
func (c *Config) resolve(dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Workdir, dir)
}

// Layout returns the artifact directories.
func (c *Config) Layout() artifact.Layout {
	return artifact.Layout{
		Overlays:   c.resolve(c.OverlayDir),
		Scans:      c.resolve(c.ScansDir),
		Redactions: c.resolve(c.RedactionsDir),
		OCR:        c.resolve(c.OCRDir),
	}
}

// InboxPath returns the resolved inbox directory.
func (c *Config) InboxPath() string {
	return c.resolve(c.Inbox)
}

// DatabasePath returns the ledger file path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DBDir, DatabaseFile)
}

// MetricsPath returns the resolved metrics file, or "" when disabled.
func (c *Config) MetricsPath() string {
	return c.resolve(c.MetricsFile)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	backends := []string{device.BackendAuto, device.BackendSane, device.BackendHPAIO, device.BackendFolder}
	if !slices.Contains(backends, c.Backend) {
		return ErrUnknownBackend
	}
	if c.Backend == device.BackendFolder && c.Inbox == "" {
		return ErrInboxRequired
	}
	if c.Resolution <= 0 {
		return ErrInvalidResolution
	}
	if c.AspectTolerance < 0 || c.AspectTolerance > maxAspectTolerance {
		return ErrInvalidAspectTolerance
	}
	if c.OCRRetryAttempts < 1 {
		return ErrInvalidRetryAttempts
	}
	if c.Jobs < 1 {
		return ErrInvalidJobs
	}
	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}
	return nil
}

// DeviceOptions returns the backend selection for device discovery.
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		Backend:    c.Backend,
		Device:     c.Device,
		Inbox:      c.InboxPath(),
		Resolution: c.Resolution,
		Mode:       c.Mode,
	}
}
