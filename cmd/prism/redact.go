package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/prism/internal/artifact"
	"github.com/nao1215/prism/internal/config"
	"github.com/nao1215/prism/internal/console"
	"github.com/nao1215/prism/internal/database"
	"github.com/nao1215/prism/internal/metrics"
	"github.com/nao1215/prism/internal/model"
	"github.com/nao1215/prism/internal/ocr/tesseract"
	"github.com/nao1215/prism/internal/pipeline"
	"github.com/nao1215/prism/internal/redact"
)

// offlineBackend is the ledger backend name of redact runs.
const offlineBackend = "offline"

// NewRedactCmd creates the redact command.
func NewRedactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact [raw files...]",
		Short: "Redact existing raw scans again",
		Long: `Redact runs redaction, and OCR with --ocr, over raw scans that are
already in Scans/. Without arguments every raw scan is processed.

Pages that already have a redacted copy are skipped unless --force is
given, in which case the copy is replaced. Files whose names do not follow
the {date}_Form{N}-{wid}_{seq}_{side}.png scheme are ignored.

Examples:
  # Redact every raw scan that has no redacted copy yet
  prism redact

  # Replace redactions after an overlay was corrected
  prism redact --force Scans/2024-06-01_Form2-0012345678_*.png

  # Also produce OCR text, eight documents at a time
  prism redact --ocr -j 8`,
		RunE: runRedactCmd,
	}

	addWorkspaceFlags(cmd)
	addOCRFlags(cmd, "Run OCR on the redacted pages")
	cmd.Flags().BoolP("force", "f", false, "Replace existing redacted and OCR files")
	cmd.Flags().IntP("jobs", "j", config.DefaultJobs, "Number of documents processed at once")
	cmd.Flags().IntP("resolution", "r", 0, "Resolution of the raw scans in DPI (default: 300)")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when done")

	return cmd
}

// runRedactCmd executes the redact command.
func runRedactCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd, cfg)
	ctx := cmd.Context()
	layout := cfg.Layout()

	paths := args
	if len(paths) == 0 {
		paths, err = filepath.Glob(filepath.Join(layout.Scans, "*"+artifact.ImageExt))
		if err != nil {
			return fmt.Errorf("failed to list raw scans: %w", err)
		}
	}
	docs, err := collectDocuments(paths, layout, cfg, uuid.NewString(), logger)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No raw scans to redact.")
		return nil
	}
	if err := layout.EnsureOutputDirs(); err != nil {
		return err
	}

	ocrEnabled := cfg.OCR && cmd.Flags().Changed("ocr")
	if ocrEnabled && !tesseract.Available() {
		logger.Warn("OCR requested but this build has no OCR engine")
		ocrEnabled = false
	}

	ledger, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer ledger.Close()

	sessionID := docs[0].SessionID
	started := time.Now()
	if err := ledger.StartSession(ctx, database.Session{
		ID:      sessionID,
		Started: started,
		Backend: offlineBackend,
		Device:  layout.Scans,
		OCR:     ocrEnabled,
	}); err != nil {
		return err
	}

	events := console.NewRenderer(cmd.OutOrStdout())
	collector := metrics.NewCollector()
	compositor := redact.NewCompositor(redact.NewOverlayStore(layout.Overlays),
		redact.WithAspectTolerance(cfg.AspectTolerance))
	stepOpts := []pipeline.StepOption{
		pipeline.WithEvents(events),
		pipeline.WithRecorder(collector),
		pipeline.WithStepLogger(logger),
		pipeline.WithReplace(cfg.Force),
	}
	var assemblerSteps []pipeline.Step
	if ocrEnabled {
		assemblerSteps = append(assemblerSteps,
			pipeline.NewOCRStep(newAssembler(cfg, logger), compositor, layout, stepOpts...))
	}

	factory := func() *pipeline.Pipeline {
		p := pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithFinally(pipeline.NewLedgerStep(ledger, stepOpts...), pipeline.NewRecordStep(stepOpts...)),
		)
		p.AddStep(pipeline.NewRedactStep(compositor, layout, stepOpts...))
		p.AddSteps(assemblerSteps...)
		return p
	}
	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.Jobs),
		pipeline.WithBatchLogger(logger),
	)

	events.Emit(console.Phase("Redaction"))
	batchErr := bp.ProcessBatch(ctx, docs)

	endCtx := context.WithoutCancel(ctx)
	if err := ledger.EndSession(endCtx, sessionID, time.Now()); err != nil {
		logger.Warn("failed to close ledger session", "error", err)
	}
	if path := cfg.MetricsPath(); path != "" {
		if err := collector.WriteTextfile(path); err != nil {
			logger.Warn("failed to write metrics", "error", err)
		}
	}

	failed := printRedactSummary(cmd.OutOrStdout(), docs, time.Since(started))
	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
}

// collectDocuments groups raw artifacts into documents, one per request
// prefix, with pages in sequence order. Pages with a redacted copy are
// marked redacted unless cfg.Force is set.
func collectDocuments(paths []string, layout artifact.Layout, cfg *config.Config, sessionID string, logger *slog.Logger) ([]*model.Document, error) {
	byPrefix := make(map[string]*model.Document)
	var prefixes []string

	for _, path := range paths {
		base := filepath.Base(path)
		if strings.HasPrefix(base, artifact.RedactedPrefix) || strings.HasPrefix(base, artifact.OCRPrefix) {
			logger.Debug("skipping derived artifact", "path", path)
			continue
		}
		info, err := artifact.ParseStem(base)
		if err != nil {
			logger.Warn("skipping file", "path", path, "error", err)
			continue
		}
		sum, err := artifact.Digest(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read raw scan: %w", err)
		}

		prefix := info.Request.Prefix()
		doc, ok := byPrefix[prefix]
		if !ok {
			doc = model.NewDocument(sessionID, info.Request)
			byPrefix[prefix] = doc
			prefixes = append(prefixes, prefix)
		}

		page := &model.Page{
			SequenceIndex: info.Sequence - 1,
			Side:          info.Side,
			DPI:           cfg.Resolution,
			Stem:          info.Stem(),
			RawPath:       path,
			RawSHA256:     sum,
		}
		if !cfg.Force {
			if err := markExisting(page, layout); err != nil {
				return nil, err
			}
		}
		doc.Pages = append(doc.Pages, page)
	}

	slices.Sort(prefixes)
	docs := make([]*model.Document, 0, len(prefixes))
	for _, prefix := range prefixes {
		doc := byPrefix[prefix]
		slices.SortFunc(doc.Pages, func(a, b *model.Page) int {
			return a.SequenceIndex - b.SequenceIndex
		})
		docs = append(docs, doc)
	}
	return docs, nil
}

// markExisting records an existing redacted copy on page.
func markExisting(page *model.Page, layout artifact.Layout) error {
	path := layout.RedactedPath(page.Stem)
	sum, err := artifact.Digest(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read redacted copy: %w", err)
	}
	page.RedactedPath = path
	page.RedactedSHA256 = sum
	return nil
}

// printRedactSummary writes one line per document and returns the number
// of documents that did not complete.
func printRedactSummary(w io.Writer, docs []*model.Document, elapsed time.Duration) int {
	failed := 0
	fmt.Fprintln(w)
	for _, doc := range docs {
		line := fmt.Sprintf("%s  %d page(s)  %s", doc.Request.Prefix(), len(doc.Pages), doc.Status)
		if doc.ErrorMessage != "" {
			line += ": " + doc.ErrorMessage
		}
		if doc.Status != model.StatusComplete {
			failed++
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d document(s), %d failed, in %s\n", len(docs), failed, elapsed.Round(time.Millisecond))
	return failed
}
