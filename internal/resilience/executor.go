package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Policy bounds retries and decides when a breaker opens.
type Policy struct {
	// Attempts is the total number of calls, first one included.
	Attempts int

	// InitialBackoff is the wait after the first failure; it grows by
	// Multiplier up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// BreakerMinRequests is the number of calls before the failure ratio
	// is considered.
	BreakerMinRequests uint32

	// BreakerFailureRatio opens the breaker when reached.
	BreakerFailureRatio float64

	// BreakerOpenTimeout is how long an open breaker rejects calls.
	BreakerOpenTimeout time.Duration

	// BreakerHalfOpenCalls is the number of trial calls once the timeout expires.
	BreakerHalfOpenCalls uint32
}

// DefaultPolicy returns the policy used for OCR.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:             2,
		InitialBackoff:       200 * time.Millisecond,
		MaxBackoff:           time.Second,
		Multiplier:           2,
		BreakerMinRequests:   3,
		BreakerFailureRatio:  0.6,
		BreakerOpenTimeout:   time.Minute,
		BreakerHalfOpenCalls: 1,
	}
}

func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.BreakerMinRequests == 0 {
		p.BreakerMinRequests = def.BreakerMinRequests
	}
	if p.BreakerFailureRatio <= 0 || p.BreakerFailureRatio > 1 {
		p.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if p.BreakerOpenTimeout <= 0 {
		p.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if p.BreakerHalfOpenCalls == 0 {
		p.BreakerHalfOpenCalls = def.BreakerHalfOpenCalls
	}
	return p
}

// Classification says how an error is handled.
type Classification struct {
	// Retry means another attempt may succeed.
	Retry bool

	// CountFailure means the error counts against the breaker.
	CountFailure bool
}

// Classifier classifies an error returned by an operation.
type Classifier func(err error) Classification

// Executor runs operations under a Policy with one breaker per operation name.
type Executor struct {
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for retries and breaker state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor returns an Executor for policy.
func NewExecutor(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		policy:   policy.normalize(),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn through the breaker for operation, retrying errors the
// classifier marks retryable. A nil classifier retries nothing and counts
// every error.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil operation")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classify == nil {
		classify = countEverything
	}

	breaker := e.breaker(op, classify)
	_, err := breaker.Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classify)
	})
	if IsCircuitOpen(err) {
		return fmt.Errorf("%s skipped: %w", op, err)
	}
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	backoff := e.policy.InitialBackoff
	var err error
	for attempt := 1; attempt <= e.policy.Attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err).Retry || attempt == e.policy.Attempts {
			return err
		}

		wait := min(backoff, e.policy.MaxBackoff)
		e.logger.Debug("retrying", "operation", op, "attempt", attempt, "wait", wait, "error", err)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		backoff = time.Duration(float64(backoff) * e.policy.Multiplier)
	}
	return err
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[op]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.policy.BreakerHalfOpenCalls,
		Timeout:     e.policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.policy.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).CountFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit breaker state changed", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[op] = b
	return b
}

// IsCircuitOpen reports whether err came from a breaker rejecting the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func countEverything(error) Classification {
	return Classification{CountFailure: true}
}
