package config

// File is the structure of the .prism configuration file. Unset keys keep
// the current value of the Config they are applied to.
type File struct {
	Workdir          *string  `yaml:"workdir,omitempty"`
	OverlayDir       *string  `yaml:"overlay_dir,omitempty"`
	ScansDir         *string  `yaml:"scans_dir,omitempty"`
	RedactionsDir    *string  `yaml:"redactions_dir,omitempty"`
	OCRDir           *string  `yaml:"ocr_dir,omitempty"`
	Backend          *string  `yaml:"backend,omitempty"`
	Device           *string  `yaml:"device,omitempty"`
	Inbox            *string  `yaml:"inbox,omitempty"`
	Resolution       *int     `yaml:"resolution,omitempty"`
	Mode             *string  `yaml:"mode,omitempty"`
	OCR              *bool    `yaml:"ocr,omitempty"`
	Languages        []string `yaml:"languages,omitempty"`
	AspectTolerance  *float64 `yaml:"aspect_tolerance,omitempty"`
	MetricsFile      *string  `yaml:"metrics_file,omitempty"`
	DBDir            *string  `yaml:"db_dir,omitempty"`
	OCRRetryAttempts *int     `yaml:"ocr_retry_attempts,omitempty"`
}

// Apply copies every key set in f onto cfg.
func (f *File) Apply(cfg *Config) {
	setString(&cfg.Workdir, f.Workdir)
	setString(&cfg.OverlayDir, f.OverlayDir)
	setString(&cfg.ScansDir, f.ScansDir)
	setString(&cfg.RedactionsDir, f.RedactionsDir)
	setString(&cfg.OCRDir, f.OCRDir)
	setString(&cfg.Backend, f.Backend)
	setString(&cfg.Device, f.Device)
	setString(&cfg.Inbox, f.Inbox)
	setString(&cfg.Mode, f.Mode)
	setString(&cfg.MetricsFile, f.MetricsFile)
	setString(&cfg.DBDir, f.DBDir)
	if f.Resolution != nil {
		cfg.Resolution = *f.Resolution
	}
	if f.OCR != nil {
		cfg.OCR = *f.OCR
	}
	if len(f.Languages) > 0 {
		cfg.Languages = f.Languages
	}
	if f.AspectTolerance != nil {
		cfg.AspectTolerance = *f.AspectTolerance
	}
	if f.OCRRetryAttempts != nil {
		cfg.OCRRetryAttempts = *f.OCRRetryAttempts
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
