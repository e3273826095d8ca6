package device

import (
	"context"
	"sync"
	"time"
)

// jobTracker holds the single in-flight batch job of a CLI backend.
type jobTracker struct {
	grace time.Duration

	mu     sync.Mutex
	job    *batchJob
	closed bool
}

func (t *jobTracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *jobTracker) start(job *batchJob) {
	t.mu.Lock()
	t.job = job
	t.mu.Unlock()
}

// settle cleans up job if its process has exited. A job that is still
// running stays tracked for cancel or close.
func (t *jobTracker) settle(job *batchJob) {
	select {
	case <-job.proc.Done():
		t.finish(job)
	default:
	}
}

func (t *jobTracker) finish(job *batchJob) {
	job.remove()
	t.mu.Lock()
	if t.job == job {
		t.job = nil
	}
	t.mu.Unlock()
}

func (t *jobTracker) cancel(ctx context.Context) error {
	t.mu.Lock()
	job := t.job
	t.mu.Unlock()
	if job == nil {
		return nil
	}
	err := stopProcess(ctx, job.proc, t.grace)
	t.finish(job)
	return err
}

func (t *jobTracker) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	job := t.job
	t.mu.Unlock()

	if job == nil {
		return nil
	}
	err := job.proc.Kill()
	<-job.proc.Done()
	t.finish(job)
	return err
}
