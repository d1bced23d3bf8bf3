package flock

import (
	"context"
	"fmt"
	"os"
	"time"

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// retryInterval is the pause between lock attempts.
const retryInterval = 50 * time.Millisecond

// File is an advisory lock backed by a lock file on disk.
// A File is not safe for concurrent use; create one per acquisition.
type File struct {
	path string
	file *os.File
}

// New returns an unlocked File for path. The file is created on Lock.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the lock file path.
func (f *File) Path() string {
	return f.path
}

// Lock acquires the lock, retrying until timeout elapses or ctx is done.
// It returns ErrLockTimedOut when the timeout elapses first.
func (f *File) Lock(ctx context.Context, timeout time.Duration) error {
	file, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-ctx.Done():
			_ = file.Close()
			return ctx.Err()
		default:
		}

		if err := Exclusive(file.Fd()); err == nil {
			f.file = file
			return nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()
			return fmt.Errorf("%w after %v: %s", tgerrors.ErrLockTimedOut, timeout, f.path)
		}

		timer := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			_ = file.Close()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Unlock releases the lock and closes the lock file. It is a no-op when the
// lock is not held.
func (f *File) Unlock() error {
	if f.file == nil {
		return nil
	}
	_ = Unlock(f.file.Fd())
	err := f.file.Close()
	f.file = nil
	return err
}
