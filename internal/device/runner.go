package device

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultInterruptGrace is how long a scan process may take to exit after
// SIGINT before it is killed.
const DefaultInterruptGrace = 10 * time.Second

// Runner executes the external tools the CLI backends drive.
type Runner interface {
	// Output runs a command to completion and returns its combined output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Start launches a long-running command.
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// Process is a started command.
type Process interface {
	// Done is closed when the process has exited.
	Done() <-chan struct{}

	// Err returns the exit error once Done is closed.
	Err() error

	// Interrupt asks the process to stop.
	Interrupt() error

	// Kill stops the process immediately.
	Kill() error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Grace is the time between SIGINT and SIGKILL when the context of a
	// started command is cancelled.
	Grace time.Duration
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Grace: DefaultInterruptGrace}
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool names are fixed by the backends
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Start implements Runner. Cancelling ctx sends SIGINT first, which
// scanimage handles by cancelling the SANE job, and kills the process if it
// has not exited after Grace.
func (r *ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // tool names are fixed by the backends
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.Grace

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	go func() {
		err := cmd.Wait()
		if err != nil {
			msg := strings.TrimSpace(p.stderr.String())
			if msg != "" {
				err = fmt.Errorf("%s: %w: %s", name, err, msg)
			} else {
				err = fmt.Errorf("%s: %w", name, err)
			}
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *execProcess) Interrupt() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return p.cmd.Process.Kill()
}

// stopProcess interrupts p and kills it if it has not exited within grace
// or before ctx is done.
func stopProcess(ctx context.Context, p Process, grace time.Duration) error {
	if err := p.Interrupt(); err != nil {
		return p.Kill()
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.Done():
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := p.Kill(); err != nil {
		return err
	}
	<-p.Done()
	return nil
}
