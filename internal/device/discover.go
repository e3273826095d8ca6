package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Backend names accepted in configuration.
const (
	BackendAuto   = "auto"
	BackendSane   = "sane"
	BackendHPAIO  = "hpaio"
	BackendFolder = "folder"
)

// Chooser picks one of several devices a backend listed and returns its
// index in choices.
type Chooser func(ctx context.Context, choices []Capabilities) (int, error)

// choose returns the device to use from listed. want pins a device by name.
// Without a pin, chooser is asked when more than one device is listed.
func choose(ctx context.Context, listed []Capabilities, want string, chooser Chooser) (Capabilities, error) {
	if want != "" {
		for _, c := range listed {
			if c.Device == want {
				return c, nil
			}
		}
		return Capabilities{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, want)
	}
	switch {
	case len(listed) == 0:
		return Capabilities{}, ErrDeviceNotFound
	case len(listed) == 1 || chooser == nil:
		return listed[0], nil
	}
	i, err := chooser(ctx, listed)
	if err != nil {
		return Capabilities{}, fmt.Errorf("%w: %w", ErrNoSelection, err)
	}
	if i < 0 || i >= len(listed) {
		return Capabilities{}, fmt.Errorf("%w: choice %d of %d", ErrNoSelection, i+1, len(listed))
	}
	return listed[i], nil
}

// Options selects and configures backends.
type Options struct {
	Backend    string
	Device     string
	Inbox      string
	Resolution int
	Mode       string
	TempDir    string
	Runner     Runner
	Logger     *slog.Logger

	// Choose picks a scanner when a backend lists several and Device is
	// empty. Nil takes the first one listed.
	Choose Chooser
}

// Candidates returns the backends to probe, in order, for opts.Backend.
// "auto" tries HPLIP first, then SANE, then the inbox when one is configured.
func Candidates(opts Options) ([]Backend, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = NewExecRunner()
	}

	sane := func() Backend {
		return NewSane(
			WithSaneRunner(opts.Runner),
			WithSaneDevice(opts.Device),
			WithSaneResolution(opts.Resolution),
			WithSaneMode(opts.Mode),
			WithSaneTempDir(opts.TempDir),
			WithSaneLogger(opts.Logger),
			WithSaneChooser(opts.Choose),
		)
	}
	hpaio := func() Backend {
		return NewHPAIO(
			WithHPAIORunner(opts.Runner),
			WithHPAIODevice(opts.Device),
			WithHPAIOResolution(opts.Resolution),
			WithHPAIOMode(opts.Mode),
			WithHPAIOTempDir(opts.TempDir),
			WithHPAIOLogger(opts.Logger),
			WithHPAIOChooser(opts.Choose),
		)
	}
	folder := func() Backend {
		return NewFolder(opts.Inbox, WithFolderDPI(opts.Resolution), WithFolderLogger(opts.Logger))
	}

	switch opts.Backend {
	case "", BackendAuto:
		backends := []Backend{hpaio(), sane()}
		if opts.Inbox != "" {
			backends = append(backends, folder())
		}
		return backends, nil
	case BackendSane:
		return []Backend{sane()}, nil
	case BackendHPAIO:
		return []Backend{hpaio()}, nil
	case BackendFolder:
		return []Backend{folder()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// Discover probes backends in order and returns a probed Handle for the
// first that finds a device. It returns ErrDeviceNotFound when none does,
// and stops at once when the operator declines to pick a scanner.
func Discover(ctx context.Context, backends []Backend, opts ...HandleOption) (*Handle, error) {
	var errs []error
	for _, b := range backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h := NewHandle(b, opts...)
		if _, err := h.Probe(ctx); err != nil {
			_ = h.Release(ctx)
			if errors.Is(err, ErrNoSelection) {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		return h, nil
	}
	if len(errs) == 0 {
		return nil, ErrDeviceNotFound
	}
	return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, errors.Join(errs...))
}
