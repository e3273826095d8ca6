package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/console"
	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/metrics"
	"github.com/nao1215/prism/internal/model"
	"github.com/nao1215/prism/internal/ocr/tesseract"
	"github.com/nao1215/prism/internal/redact"
	"github.com/nao1215/prism/internal/session"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive scanning session",
		Long: `Run finds a scanner, claims it, and then loops over documents:

  1. Enter the WID printed on the form (10 digits)
  2. Enter the form type (2 or 3)
  3. Load the sheets and confirm each pass

Each page is saved to Scans/, redacted into Redactions/ and, when OCR is
enabled, read into OCR/. Press Ctrl+C at any time; the scanner is always
released before PRISM exits.

Examples:
  # Use the first scanner found
  prism run

  # Use a SANE device at 600 DPI
  prism run -b sane -d "fujitsu:fi-7160:12345" -r 600

  # Process pre-scanned images from a folder
  prism run -b folder -i ./inbox`,
		RunE: runRunCmd,
	}

	addWorkspaceFlags(cmd)
	addDeviceFlags(cmd)
	addOCRFlags(cmd, "Default answer of the OCR prompt")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when the session ends")
	cmd.Flags().Bool("no-color", false, "Disable colored output")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return err
	}
	var rendererOpts []console.RendererOption
	if noColor {
		rendererOpts = append(rendererOpts, console.WithColor(false))
	}
	events := console.NewRenderer(cmd.OutOrStdout(), rendererOpts...)
	prompter := console.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	layout := cfg.Layout()
	overlays := redact.NewOverlayStore(layout.Overlays)
	if missing := overlays.Missing(model.Form2, model.Form3); len(missing) > 0 {
		events.Emit(console.Warning("missing redaction overlays, documents of these forms will fail redaction:\n  %s",
			strings.Join(missing, "\n  ")))
	}
	compositor := redact.NewCompositor(overlays, redact.WithAspectTolerance(cfg.AspectTolerance))

	ledger, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	opts := []session.Option{
		session.WithEvents(events),
		session.WithLedger(ledger),
		session.WithMetrics(metrics.NewCollector(), cfg.MetricsPath()),
		session.WithOCRDefault(cfg.OCR),
		session.WithLogger(logger),
	}
	if tesseract.Available() {
		opts = append(opts, session.WithAssembler(newAssembler(cfg, logger)))
	}

	s := session.New(deviceFinder(cfg, logger, session.ChooseDevice(prompter, events)), prompter, compositor, layout, opts...)
	return s.Run(cmd.Context())
}
