package device

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"
)

// DefaultReleaseTimeout bounds the cancel and close calls made by Release.
const DefaultReleaseTimeout = 15 * time.Second

// Handle owns one Backend for the lifetime of a session and enforces the
// lifecycle Idle -> Probed -> Open -> Scanning -> (Cancelling) -> Closed.
type Handle struct {
	backend Backend
	logger  *slog.Logger

	releaseTimeout time.Duration

	mu    sync.Mutex
	state State
	caps  Capabilities

	releaseOnce sync.Once
	releaseErr  error
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// WithHandleLogger sets the logger for lifecycle events.
func WithHandleLogger(logger *slog.Logger) HandleOption {
	return func(h *Handle) {
		h.logger = logger
	}
}

// WithReleaseTimeout sets the upper bound for teardown.
func WithReleaseTimeout(d time.Duration) HandleOption {
	return func(h *Handle) {
		h.releaseTimeout = d
	}
}

// NewHandle wraps backend in an idle handle.
func NewHandle(backend Backend, opts ...HandleOption) *Handle {
	h := &Handle{
		backend:        backend,
		logger:         slog.Default(),
		releaseTimeout: DefaultReleaseTimeout,
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backend returns the wrapped backend name.
func (h *Handle) Backend() string {
	return h.backend.Name()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Capabilities returns the probed capabilities.
func (h *Handle) Capabilities() Capabilities {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.caps
}

// SupportsDuplex reports whether duplex capture can be offered.
func (h *Handle) SupportsDuplex() bool {
	return h.Capabilities().Duplex && h.backend.SupportsDuplex()
}

// Probe locates the device. It may be repeated until the handle is opened.
func (h *Handle) Probe(ctx context.Context) (Capabilities, error) {
	h.mu.Lock()
	switch h.state {
	case StateClosed:
		h.mu.Unlock()
		return Capabilities{}, ErrHandleClosed
	case StateIdle, StateProbed:
	default:
		state := h.state
		h.mu.Unlock()
		return Capabilities{}, fmt.Errorf("%w: probe while %s", ErrInvalidState, state)
	}
	h.mu.Unlock()

	caps, err := h.backend.Probe(ctx)
	if err != nil {
		return Capabilities{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateClosed {
		return Capabilities{}, ErrHandleClosed
	}
	h.caps = caps
	h.state = StateProbed
	h.logger.Debug("device probed", "backend", caps.Backend, "device", caps.Device, "duplex", caps.Duplex)
	return caps, nil
}

// Open claims the probed device.
func (h *Handle) Open(ctx context.Context) error {
	if err := h.check(StateProbed); err != nil {
		return err
	}
	if err := h.backend.Open(ctx); err != nil {
		return err
	}
	return h.transition(StateProbed, StateOpen)
}

// Acquire runs one job on the open device. Errors from the backend are
// yielded wrapped in ErrAcquisition, after which the handle stays in
// StateScanning until Cancel or Release. A consumer that stops early also
// leaves the job in flight.
func (h *Handle) Acquire(ctx context.Context, countHint int, duplex bool) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if err := h.transition(StateOpen, StateScanning); err != nil {
			yield(Frame{}, err)
			return
		}
		h.logger.Debug("acquisition started", "backend", h.backend.Name(), "duplex", duplex, "count_hint", countHint)

		for frame, err := range h.backend.Acquire(ctx, countHint, duplex) {
			if err != nil {
				if !errors.Is(err, ErrAcquisition) {
					err = fmt.Errorf("%w: %w", ErrAcquisition, err)
				}
				yield(Frame{}, err)
				return
			}
			if !yield(frame, nil) {
				return
			}
		}

		// The handle may have been released from another goroutine.
		_ = h.transition(StateScanning, StateOpen)
		h.logger.Debug("acquisition finished", "backend", h.backend.Name())
	}
}

// Cancel abandons the in-flight job. It does nothing unless the handle is
// scanning.
func (h *Handle) Cancel(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateScanning {
		h.mu.Unlock()
		return nil
	}
	h.state = StateCancelling
	h.mu.Unlock()

	err := h.backend.Cancel(ctx)

	h.mu.Lock()
	if h.state == StateCancelling {
		h.state = StateOpen
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("device cancel failed", "backend", h.backend.Name(), "error", err)
		return fmt.Errorf("failed to cancel scan job: %w", err)
	}
	return nil
}

// Release cancels any in-flight job and closes the backend. Only the first
// call does work; later calls return its result. The calls are made with a
// context detached from ctx so an interrupt cannot skip them.
func (h *Handle) Release(ctx context.Context) error {
	h.releaseOnce.Do(func() {
		detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.releaseTimeout)
		defer cancel()

		var errs []error
		if h.State() == StateScanning {
			if err := h.Cancel(detached); err != nil {
				errs = append(errs, err)
			}
		}
		if err := h.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close device: %w", err))
		}

		h.mu.Lock()
		h.state = StateClosed
		h.mu.Unlock()

		h.releaseErr = errors.Join(errs...)
		h.logger.Debug("device released", "backend", h.backend.Name())
	})
	return h.releaseErr
}

func (h *Handle) check(expected State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.checkLocked(expected)
}

func (h *Handle) checkLocked(expected State) error {
	if h.state == StateClosed {
		return ErrHandleClosed
	}
	if h.state != expected {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, h.state, expected)
	}
	return nil
}

func (h *Handle) transition(from, to State) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked(from); err != nil {
		return err
	}
	h.state = to
	return nil
}
