package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/prism/internal/model"
)

// Step is one stage of document processing.
type Step interface {
	// Do executes the step on doc. Non-fatal problems are recorded as
	// warnings on doc and nil is returned.
	Do(ctx context.Context, doc *model.Document) error

	// Name returns the step's name for logging and the ledger.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps   []Step
	finally []Step
	logger  *slog.Logger

	// continueOnError keeps executing main steps after a failure.
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps running the remaining steps after one fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithFinally adds steps that run after the main steps whatever their
// outcome.
func WithFinally(steps ...Step) Option {
	return func(p *Pipeline) {
		p.finally = append(p.finally, steps...)
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps on doc and settles its status. It returns the
// first step error, or ctx.Err() when cancelled between steps.
func (p *Pipeline) Execute(ctx context.Context, doc *model.Document) error {
	err := p.run(ctx, doc)

	switch {
	case err != nil && doc.Status == model.StatusPending:
		status := model.StatusCaptureFailed
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			status = model.StatusCancelled
		}
		doc.Fail(status, err)
	case err == nil && doc.Status == model.StatusPending:
		doc.Status = model.StatusComplete
	}
	doc.FinishedAt = time.Now()

	detached := context.WithoutCancel(ctx)
	for _, step := range p.finally {
		if ferr := step.Do(detached, doc); ferr != nil {
			p.logger.Error("final step failed", "step", step.Name(), "error", ferr)
			continue
		}
		doc.PerformedSteps = append(doc.PerformedSteps, step.Name())
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, doc *model.Document) error {
	var first error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", err)
			if doc.Status == model.StatusPending {
				doc.Fail(model.StatusCancelled, err)
			}
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "prefix", doc.Request.Prefix())
		if err := step.Do(ctx, doc); err != nil {
			p.logger.Debug("step failed", "step", step.Name(), "error", err)
			if first == nil {
				first = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}
		doc.PerformedSteps = append(doc.PerformedSteps, step.Name())
	}
	return first
}

// StepCount returns the number of main steps.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order, final
// steps last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.finally))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.finally {
		names = append(names, step.Name())
	}
	return names
}
