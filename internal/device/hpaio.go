package device

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	hpProbeCmd = "hp-probe"
	hpScanCmd  = "hp-scan"
)

// hpDeviceURI matches HPLIP device URIs such as "hp:/usb/OfficeJet_Pro?serial=X".
var hpDeviceURI = regexp.MustCompile(`\bhp(?:aio)?:/\S+`)

// HPAIO drives the HPLIP hp-probe and hp-scan tools.
type HPAIO struct {
	runner     Runner
	logger     *slog.Logger
	device     string
	resolution int
	mode       string
	tempDir    string
	chooser    Chooser

	jobs jobTracker

	mu   sync.Mutex
	caps Capabilities
}

// HPAIOOption configures an HPAIO backend.
type HPAIOOption func(*HPAIO)

// WithHPAIORunner sets the command runner.
func WithHPAIORunner(r Runner) HPAIOOption {
	return func(h *HPAIO) { h.runner = r }
}

// WithHPAIODevice pins the device URI.
func WithHPAIODevice(uri string) HPAIOOption {
	return func(h *HPAIO) { h.device = uri }
}

// WithHPAIOChooser sets how one of several listed scanners is picked.
func WithHPAIOChooser(c Chooser) HPAIOOption {
	return func(h *HPAIO) { h.chooser = c }
}

// WithHPAIOResolution sets the scan resolution in DPI.
func WithHPAIOResolution(dpi int) HPAIOOption {
	return func(h *HPAIO) { h.resolution = dpi }
}

// WithHPAIOMode sets the scan mode.
func WithHPAIOMode(mode string) HPAIOOption {
	return func(h *HPAIO) { h.mode = mode }
}

// WithHPAIOTempDir sets where job directories are created.
func WithHPAIOTempDir(dir string) HPAIOOption {
	return func(h *HPAIO) { h.tempDir = dir }
}

// WithHPAIOLogger sets the logger.
func WithHPAIOLogger(logger *slog.Logger) HPAIOOption {
	return func(h *HPAIO) { h.logger = logger }
}

// NewHPAIO returns an HPLIP backend.
func NewHPAIO(opts ...HPAIOOption) *HPAIO {
	h := &HPAIO{
		runner:     NewExecRunner(),
		logger:     slog.Default(),
		resolution: DefaultResolution,
		mode:       DefaultMode,
		jobs:       jobTracker{grace: DefaultInterruptGrace},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements Backend.
func (h *HPAIO) Name() string { return "hpaio" }

// Probe finds an HP scanner on USB and checks for a feeder.
func (h *HPAIO) Probe(ctx context.Context) (Capabilities, error) {
	uri := h.device
	if uri == "" {
		out, err := h.runner.Output(ctx, hpProbeCmd, "-b", "usb", "-t", "scan")
		if err != nil {
			return Capabilities{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		var listed []Capabilities
		for _, u := range hpDeviceURI.FindAllString(string(out), -1) {
			listed = append(listed, Capabilities{Backend: h.Name(), Device: u, Description: hpModel(u)})
		}
		picked, err := choose(ctx, listed, "", h.chooser)
		if err != nil {
			return Capabilities{}, err
		}
		uri = picked.Device
	}

	caps := Capabilities{Backend: h.Name(), Device: uri, Description: hpModel(uri)}
	out, err := h.runner.Output(ctx, hpScanCmd, "-l", "-d", uri)
	if err != nil {
		h.logger.Debug("could not read scanner capabilities", "device", uri, "error", err)
	}
	lower := strings.ToLower(string(out))
	caps.Duplex = strings.Contains(lower, "duplex") || strings.Contains(lower, "adf")

	h.mu.Lock()
	h.caps = caps
	h.mu.Unlock()
	return caps, nil
}

// hpModel extracts the model from "hp:/usb/Model_Name?serial=...".
func hpModel(uri string) string {
	rest := uri
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	rest, _, _ = strings.Cut(rest, "?")
	return strings.ReplaceAll(rest, "_", " ")
}

// Open implements Backend. hp-scan claims the device per job.
func (h *HPAIO) Open(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.caps.Device == "" {
		return fmt.Errorf("%w: open before probe", ErrInvalidState)
	}
	return nil
}

// SupportsDuplex implements Backend.
func (h *HPAIO) SupportsDuplex() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caps.Duplex
}

// Acquire runs one hp-scan job and yields the pages it wrote once it exits.
// hp-scan reports nothing per page, so pages are collected at the end.
func (h *HPAIO) Acquire(ctx context.Context, _ int, duplex bool) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if h.jobs.isClosed() {
			yield(Frame{}, ErrHandleClosed)
			return
		}
		h.mu.Lock()
		uri := h.caps.Device
		h.mu.Unlock()

		dir, err := os.MkdirTemp(h.tempDir, "prism-hpaio-*")
		if err != nil {
			yield(Frame{}, acquisitionError("failed to create job directory: %v", err))
			return
		}

		args := []string{
			"--mode=" + strings.ToLower(h.mode),
			"--resolution=" + strconv.Itoa(h.resolution),
			"--device=" + uri,
		}
		if duplex {
			args = append(args, "--adf", "--duplex")
		}
		args = append(args, "--file="+filepath.Join(dir, "page.png"))

		proc, err := h.runner.Start(ctx, hpScanCmd, args...)
		if err != nil {
			_ = os.RemoveAll(dir)
			yield(Frame{}, acquisitionError("%v", err))
			return
		}

		job := &batchJob{
			dir:    dir,
			proc:   proc,
			poll:   DefaultPollInterval,
			atExit: true,
			decode: func(path string) (Frame, error) {
				return DecodeFile(path, h.resolution)
			},
		}
		h.jobs.start(job)
		defer h.jobs.settle(job)

		h.logger.Debug("hp-scan started", "device", uri, "duplex", duplex)
		job.run(ctx, yield)
	}
}

// Cancel interrupts a running hp-scan.
func (h *HPAIO) Cancel(ctx context.Context) error {
	return h.jobs.cancel(ctx)
}

// Close stops any job left running. It is idempotent.
func (h *HPAIO) Close() error {
	return h.jobs.close()
}
