package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/prism/internal/config"
	"github.com/nao1215/prism/internal/device"
	prismlog "github.com/nao1215/prism/internal/log"
	"github.com/nao1215/prism/internal/ocr"
	"github.com/nao1215/prism/internal/ocr/tesseract"
	"github.com/nao1215/prism/internal/resilience"
	"github.com/nao1215/prism/internal/session"
)

// addWorkspaceFlags registers the flags locating artifacts and the ledger.
func addWorkspaceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("workdir", "w", "", "Workspace root holding the overlay and artifact directories (default: .)")
	cmd.Flags().String("db-dir", "", "Ledger directory (default: XDG data directory)")
}

// addDeviceFlags registers the flags selecting a scanner.
func addDeviceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("backend", "b", "", "Device backend: auto, sane, hpaio or folder (default: auto)")
	cmd.Flags().StringP("device", "d", "", "Scanner device name or URI (default: first found)")
	cmd.Flags().StringP("inbox", "i", "", "Inbox directory read by the folder backend")
	cmd.Flags().IntP("resolution", "r", 0, "Scan resolution in DPI (default: 300)")
	cmd.Flags().String("mode", "", "Scanner colour mode (default: Color)")
}

// addOCRFlags registers the OCR flags.
func addOCRFlags(cmd *cobra.Command, usage string) {
	cmd.Flags().Bool("ocr", false, usage)
	cmd.Flags().StringSlice("languages", nil, "OCR languages (default: eng)")
}

// loadConfig builds the configuration: defaults, then the .prism file,
// then the flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// applyFlags copies the flags that were set onto cfg.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "workdir":
			cfg.Workdir = f.Value.String()
		case "db-dir":
			cfg.DBDir = f.Value.String()
		case "backend":
			cfg.Backend = f.Value.String()
		case "device":
			cfg.Device = f.Value.String()
		case "inbox":
			cfg.Inbox = f.Value.String()
		case "mode":
			cfg.Mode = f.Value.String()
		case "metrics-file":
			cfg.MetricsFile = f.Value.String()
		case "resolution":
			cfg.Resolution, err = fs.GetInt(f.Name)
		case "jobs":
			cfg.Jobs, err = fs.GetInt(f.Name)
		case "ocr":
			cfg.OCR, err = fs.GetBool(f.Name)
		case "force":
			cfg.Force, err = fs.GetBool(f.Name)
		case "verbose":
			cfg.Verbose, err = fs.GetBool(f.Name)
		case "languages":
			cfg.Languages, err = fs.GetStringSlice(f.Name)
		}
	})
	return err
}

// setupLogger installs the masking logger on stderr.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	logger := prismlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)
	return logger
}

// newAssembler returns the OCR assembler for cfg.
func newAssembler(cfg *config.Config, logger *slog.Logger) *ocr.Assembler {
	policy := resilience.DefaultPolicy()
	policy.Attempts = cfg.OCRRetryAttempts
	return ocr.NewAssembler(tesseract.New(),
		ocr.WithLanguages(cfg.Languages...),
		ocr.WithExecutor(resilience.NewExecutor(policy, resilience.WithLogger(logger))),
		ocr.WithLogger(logger),
	)
}

// deviceFinder discovers the scanner selected by cfg. chooser picks one
// when several are listed and no device is pinned.
func deviceFinder(cfg *config.Config, logger *slog.Logger, chooser device.Chooser) session.Finder {
	return session.FinderFunc(func(ctx context.Context) (*device.Handle, error) {
		opts := cfg.DeviceOptions()
		opts.Logger = logger
		opts.Choose = chooser
		backends, err := device.Candidates(opts)
		if err != nil {
			return nil, err
		}
		return device.Discover(ctx, backends, device.WithHandleLogger(logger))
	})
}
