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
	"time"
)

// Defaults shared by the CLI backends.
const (
	DefaultResolution = 300
	DefaultMode       = "Color"
)

const (
	scanimageCmd         = "scanimage"
	defaultDuplexSource  = "ADF Duplex"
	saneBatchPattern     = "page-%03d.png"
	outOfDocumentsMarker = "out of documents"
)

var (
	// saneDeviceLine matches "device `epson2:libusb:001:004' is a Epson ..." lines.
	saneDeviceLine = regexp.MustCompile("device [`']([^'`]+)' is an? (.+)")

	// saneSourceOption matches the --source option of "scanimage --help -d".
	saneSourceOption = regexp.MustCompile(`--source\s+([^\[\n]+)`)
)

// Sane drives the scanimage CLI from sane-utils.
type Sane struct {
	runner     Runner
	logger     *slog.Logger
	device     string
	resolution int
	mode       string
	tempDir    string
	poll       time.Duration
	chooser    Chooser

	jobs jobTracker

	mu           sync.Mutex
	caps         Capabilities
	duplexSource string
	feederSource string
}

// SaneOption configures a Sane backend.
type SaneOption func(*Sane)

// WithSaneRunner sets the command runner.
func WithSaneRunner(r Runner) SaneOption {
	return func(s *Sane) { s.runner = r }
}

// WithSaneDevice pins the SANE device name instead of taking the first one listed.
func WithSaneDevice(name string) SaneOption {
	return func(s *Sane) { s.device = name }
}

// WithSaneChooser sets how one of several listed devices is picked.
func WithSaneChooser(c Chooser) SaneOption {
	return func(s *Sane) { s.chooser = c }
}

// WithSaneResolution sets the scan resolution in DPI.
func WithSaneResolution(dpi int) SaneOption {
	return func(s *Sane) { s.resolution = dpi }
}

// WithSaneMode sets the scan mode ("Color", "Gray", "Lineart").
func WithSaneMode(mode string) SaneOption {
	return func(s *Sane) { s.mode = mode }
}

// WithSaneTempDir sets where batch directories are created.
func WithSaneTempDir(dir string) SaneOption {
	return func(s *Sane) { s.tempDir = dir }
}

// WithSanePollInterval sets how often the batch directory is checked.
func WithSanePollInterval(d time.Duration) SaneOption {
	return func(s *Sane) { s.poll = d }
}

// WithSaneLogger sets the logger.
func WithSaneLogger(logger *slog.Logger) SaneOption {
	return func(s *Sane) { s.logger = logger }
}

// NewSane returns a scanimage backend.
func NewSane(opts ...SaneOption) *Sane {
	s := &Sane{
		runner:     NewExecRunner(),
		logger:     slog.Default(),
		resolution: DefaultResolution,
		mode:       DefaultMode,
		poll:       DefaultPollInterval,
		jobs:       jobTracker{grace: DefaultInterruptGrace},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Backend.
func (s *Sane) Name() string { return "sane" }

// Probe lists SANE devices and inspects the options of the selected one.
func (s *Sane) Probe(ctx context.Context) (Capabilities, error) {
	out, err := s.runner.Output(ctx, scanimageCmd, "-L")
	if err != nil {
		return Capabilities{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}

	caps, err := choose(ctx, s.listDevices(string(out)), s.device, s.chooser)
	if err != nil {
		return Capabilities{}, err
	}
	name := caps.Device
	help, err := s.runner.Output(ctx, scanimageCmd, "--help", "-d", name)
	if err != nil {
		s.logger.Debug("could not read device options", "device", name, "error", err)
	}
	sources := saneSources(string(help))
	source, duplex := saneDuplexSource(string(help), sources)
	caps.Duplex = duplex

	s.mu.Lock()
	s.caps = caps
	s.duplexSource = source
	s.feederSource = saneFeederSource(sources)
	s.mu.Unlock()
	return caps, nil
}

// listDevices parses the "scanimage -L" listing.
func (s *Sane) listDevices(listing string) []Capabilities {
	var devices []Capabilities
	for _, line := range strings.Split(listing, "\n") {
		m := saneDeviceLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		devices = append(devices, Capabilities{Backend: s.Name(), Device: m[1], Description: strings.TrimSpace(m[2])})
	}
	return devices
}

// saneSources returns the entries of the --source list in "scanimage --help -d" output.
func saneSources(help string) []string {
	m := saneSourceOption.FindStringSubmatch(help)
	if m == nil {
		return nil
	}
	var sources []string
	for _, v := range strings.Split(m[1], "|") {
		if v = strings.TrimSpace(v); v != "" {
			sources = append(sources, v)
		}
	}
	return sources
}

// saneDuplexSource inspects "scanimage --help -d" output. Duplex is offered
// when the options mention duplex or an ADF. The returned source is the
// duplex entry of the --source list when there is one.
func saneDuplexSource(help string, sources []string) (string, bool) {
	lower := strings.ToLower(help)
	if !strings.Contains(lower, "duplex") && !strings.Contains(lower, "adf") {
		return "", false
	}
	for _, v := range sources {
		if strings.Contains(strings.ToLower(v), "duplex") {
			return v, true
		}
	}
	return defaultDuplexSource, true
}

// saneFeederSource returns the single-sided feeder entry of the --source
// list ("ADF", "ADF Front", "Automatic Document Feeder"), or "" when the
// device only scans from a flatbed.
func saneFeederSource(sources []string) string {
	for _, v := range sources {
		lower := strings.ToLower(v)
		if strings.Contains(lower, "duplex") || strings.Contains(lower, "back") {
			continue
		}
		if strings.Contains(lower, "adf") || strings.Contains(lower, "feeder") {
			return v
		}
	}
	return ""
}

// Open checks the device can be claimed. scanimage opens the device per
// invocation, so this is a set-options-only run that fails when the unit is
// held elsewhere.
func (s *Sane) Open(ctx context.Context) error {
	s.mu.Lock()
	name := s.caps.Device
	s.mu.Unlock()
	if name == "" {
		return fmt.Errorf("%w: open before probe", ErrInvalidState)
	}

	out, err := s.runner.Output(ctx, scanimageCmd, "-d", name, "--dont-scan")
	if err != nil {
		if strings.Contains(strings.ToLower(string(out)+err.Error()), "busy") {
			return fmt.Errorf("%w: %s", ErrDeviceBusy, name)
		}
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	return nil
}

// SupportsDuplex implements Backend.
func (s *Sane) SupportsDuplex() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps.Duplex
}

// Acquire runs scanimage in batch mode and yields pages as they are written.
func (s *Sane) Acquire(ctx context.Context, countHint int, duplex bool) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if s.jobs.isClosed() {
			yield(Frame{}, ErrHandleClosed)
			return
		}
		s.mu.Lock()
		name, source := s.caps.Device, s.duplexSource
		if !duplex {
			source = s.feederSource
		}
		s.mu.Unlock()

		dir, err := os.MkdirTemp(s.tempDir, "prism-sane-*")
		if err != nil {
			yield(Frame{}, acquisitionError("failed to create batch directory: %v", err))
			return
		}

		args := []string{
			"-d", name,
			"--batch=" + filepath.Join(dir, saneBatchPattern),
			"--format=png",
			"--resolution=" + strconv.Itoa(s.resolution),
			"--mode=" + s.mode,
		}
		if source != "" {
			args = append(args, "--source="+source)
		}
		switch {
		case countHint > 0:
			args = append(args, "--batch-count="+strconv.Itoa(countHint))
		case source == "":
			// A flatbed never runs out of documents, so it takes one page.
			args = append(args, "--batch-count=1")
		}

		proc, err := s.runner.Start(ctx, scanimageCmd, args...)
		if err != nil {
			_ = os.RemoveAll(dir)
			yield(Frame{}, acquisitionError("%v", err))
			return
		}

		job := &batchJob{
			dir:  dir,
			proc: proc,
			poll: s.poll,
			decode: func(path string) (Frame, error) {
				return DecodeFile(path, s.resolution)
			},
			benign: func(err error, pages int) bool {
				// An emptied feeder ends a batch that produced pages.
				return pages > 0 && strings.Contains(strings.ToLower(err.Error()), outOfDocumentsMarker)
			},
		}
		s.jobs.start(job)
		defer s.jobs.settle(job)

		s.logger.Debug("scanimage started", "device", name, "duplex", duplex, "dir", dir)
		job.run(ctx, yield)
	}
}

// Cancel interrupts a running scanimage, which makes it call sane_cancel.
func (s *Sane) Cancel(ctx context.Context) error {
	return s.jobs.cancel(ctx)
}

// Close stops any job left running. It is idempotent.
func (s *Sane) Close() error {
	return s.jobs.close()
}
