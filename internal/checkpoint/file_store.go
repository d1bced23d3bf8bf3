package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/ctxutil"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/flock"
)

const (
	fileScheme = "file://"
	fileExt    = ".json"
	lockName   = ".checkpoints.lock"

	dirPerm  = 0o750
	filePerm = 0o600
)

// FileStore keeps checkpoint documents as JSON files in one directory.
// Writes are serialized across processes with an advisory lock file and land
// atomically via write-then-rename.
type FileStore struct {
	dir         string
	lockTimeout time.Duration
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithLockTimeout bounds how long Write waits for the directory lock.
func WithLockTimeout(d time.Duration) FileOption {
	return func(s *FileStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, tgerrors.Wrap(tgerrors.ErrInvalidArgument, "checkpoint directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve checkpoint directory: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	s := &FileStore{dir: abs, lockTimeout: constants.DefaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

// URI implements Store.
func (s *FileStore) URI(_, name string) string {
	return fileScheme + filepath.ToSlash(filepath.Join(s.dir, name+fileExt))
}

// Write implements Store.
func (s *FileStore) Write(ctx context.Context, uri string, data []byte) (int64, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return 0, err
	}

	path, err := s.pathFor(uri)
	if err != nil {
		return 0, err
	}

	lock := flock.New(filepath.Join(s.dir, lockName))
	if err := lock.Lock(ctx, s.lockTimeout); err != nil {
		return 0, fmt.Errorf("failed to lock checkpoint directory: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	if err := atomicWrite(path, data); err != nil {
		return 0, fmt.Errorf("failed to write checkpoint %s: %w", filepath.Base(path), err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat checkpoint: %w", err)
	}
	return info.Size(), nil
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, uri string) ([]byte, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	path, err := s.pathFor(uri)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path is confined to the store directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointNotFound, "%s", uri)
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, taskID string) ([]Entry, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}

	if err := validateTaskID(taskID); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(de.Name(), fileExt)
		if !ok || !belongsTo(name, taskID) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{URI: s.URI(taskID, name), SizeBytes: info.Size()})
	}
	return entries, nil
}

// pathFor maps a file:// URI to a path inside the store directory.
func (s *FileStore) pathFor(uri string) (string, error) {
	raw, ok := strings.CutPrefix(uri, fileScheme)
	if !ok {
		return "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "%q is not a file:// uri", uri)
	}

	path := filepath.Clean(filepath.FromSlash(raw))
	if filepath.Dir(path) != s.dir || !strings.HasSuffix(path, fileExt) {
		return "", tgerrors.Wrapf(tgerrors.ErrUnsupportedURI, "%q is outside %s", uri, s.dir)
	}
	return path, nil
}

// atomicWrite writes data to a temp file, syncs it and renames it over path.
func atomicWrite(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
