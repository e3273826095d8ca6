package device

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is how often a batch directory is scanned for pages.
const DefaultPollInterval = 250 * time.Millisecond

// partialSuffix marks a page file that scanimage is still writing.
const partialSuffix = ".part"

// batchJob collects the page files a scan process writes into dir.
type batchJob struct {
	dir     string
	proc    Process
	poll    time.Duration
	atExit  bool // harvest only once the process has exited
	decode  func(path string) (Frame, error)
	benign  func(err error, pages int) bool
	cleanup sync.Once
}

// run yields every completed page file in lexical order. It returns when the
// process has exited and all pages were yielded, when yield returns false,
// or after yielding an error.
func (j *batchJob) run(ctx context.Context, yield func(Frame, error) bool) {
	seen := make(map[string]bool)
	pages := 0
	for {
		exited := false
		select {
		case <-j.proc.Done():
			exited = true
		default:
		}

		if exited || !j.atExit {
			ready, err := j.completed(seen)
			if err != nil {
				yield(Frame{}, acquisitionError("failed to list %s: %v", j.dir, err))
				return
			}
			for _, path := range ready {
				seen[path] = true
				frame, err := j.decode(path)
				if err != nil {
					yield(Frame{}, err)
					return
				}
				pages++
				if !yield(frame, nil) {
					return
				}
			}
		}

		if exited {
			if err := j.proc.Err(); err != nil && (j.benign == nil || !j.benign(err, pages)) {
				yield(Frame{}, acquisitionError("%v", err))
			}
			return
		}

		timer := time.NewTimer(j.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			yield(Frame{}, acquisitionError("interrupted: %v", ctx.Err()))
			return
		case <-j.proc.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
}

// completed returns page files not yet seen, skipping files that are still
// being written.
func (j *batchJob) completed(seen map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, err
	}
	var ready []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, partialSuffix) {
			continue
		}
		path := filepath.Join(j.dir, name)
		if seen[path] {
			continue
		}
		ready = append(ready, path)
	}
	slices.Sort(ready)
	return ready, nil
}

// remove deletes the batch directory.
func (j *batchJob) remove() {
	j.cleanup.Do(func() {
		_ = os.RemoveAll(j.dir)
	})
}
