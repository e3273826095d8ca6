package device

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Folder subdirectories and the lock file.
const (
	ConsumedDir = "consumed"
	RejectedDir = "rejected"
	lockFile    = ".prism.lock"
)

// Folder reads pre-scanned page images from an inbox directory, oldest name
// first. Files are taken as interleaved front/back pages, so duplex is
// always available. Consumed files move to inbox/consumed, files that are
// not images to inbox/rejected.
type Folder struct {
	inbox string
	dpi   int

	logger *slog.Logger

	mu     sync.Mutex
	locked bool
}

// FolderOption configures a Folder backend.
type FolderOption func(*Folder)

// WithFolderDPI sets the DPI for files without resolution metadata.
func WithFolderDPI(dpi int) FolderOption {
	return func(f *Folder) { f.dpi = dpi }
}

// WithFolderLogger sets the logger.
func WithFolderLogger(logger *slog.Logger) FolderOption {
	return func(f *Folder) { f.logger = logger }
}

// NewFolder returns an inbox backend reading from dir.
func NewFolder(dir string, opts ...FolderOption) *Folder {
	f := &Folder{
		inbox:  dir,
		dpi:    DefaultResolution,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Backend.
func (f *Folder) Name() string { return "folder" }

// Probe succeeds when the inbox directory exists.
func (f *Folder) Probe(_ context.Context) (Capabilities, error) {
	if f.inbox == "" {
		return Capabilities{}, fmt.Errorf("%w: no inbox configured", ErrDeviceNotFound)
	}
	info, err := os.Stat(f.inbox)
	if err != nil || !info.IsDir() {
		return Capabilities{}, fmt.Errorf("%w: inbox %s does not exist", ErrDeviceNotFound, f.inbox)
	}
	return Capabilities{
		Backend:     f.Name(),
		Device:      f.inbox,
		Description: "inbox directory",
		Duplex:      true,
	}, nil
}

// Open takes the inbox lock. A lock left by another session makes the
// inbox busy until that file is removed.
func (f *Folder) Open(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return nil
	}
	for _, sub := range []string{ConsumedDir, RejectedDir} {
		if err := os.MkdirAll(filepath.Join(f.inbox, sub), 0750); err != nil {
			return fmt.Errorf("failed to prepare inbox: %w", err)
		}
	}
	lock, err := os.OpenFile(filepath.Join(f.inbox, lockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s is locked by another session (remove %s if it is stale)",
				ErrDeviceBusy, f.inbox, lockFile)
		}
		return fmt.Errorf("failed to lock inbox: %w", err)
	}
	_, _ = fmt.Fprintf(lock, "%d\n", os.Getpid())
	_ = lock.Close()
	f.locked = true
	return nil
}

// SupportsDuplex implements Backend.
func (f *Folder) SupportsDuplex() bool { return true }

// Acquire yields the images currently in the inbox. With countHint > 0 at
// most that many are taken.
func (f *Folder) Acquire(ctx context.Context, countHint int, _ bool) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		names, err := f.pending()
		if err != nil {
			yield(Frame{}, acquisitionError("failed to list inbox: %v", err))
			return
		}
		if countHint > 0 && len(names) > countHint {
			names = names[:countHint]
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(Frame{}, acquisitionError("interrupted: %v", err))
				return
			}
			src := filepath.Join(f.inbox, name)
			frame, err := DecodeFile(src, f.dpi)
			if err != nil {
				if mvErr := os.Rename(src, filepath.Join(f.inbox, RejectedDir, name)); mvErr != nil {
					f.logger.Warn("failed to move rejected file", "file", name, "error", mvErr)
				}
				yield(Frame{}, err)
				return
			}
			if err := os.Rename(src, filepath.Join(f.inbox, ConsumedDir, name)); err != nil {
				yield(Frame{}, acquisitionError("failed to consume %s: %v", name, err))
				return
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// pending lists inbox files in lexical order, skipping hidden files.
func (f *Folder) pending() ([]string, error) {
	entries, err := os.ReadDir(f.inbox)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// Cancel implements Backend. Inbox reads stop at the next page boundary.
func (f *Folder) Cancel(_ context.Context) error { return nil }

// Close releases the inbox lock. It is idempotent.
func (f *Folder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.locked {
		return nil
	}
	f.locked = false
	if err := os.Remove(filepath.Join(f.inbox, lockFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to unlock inbox: %w", err)
	}
	return nil
}
