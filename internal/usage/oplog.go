package usage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/ctxutil"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/flock"
)

// maxLineBytes bounds a single log line. Records carry caller context maps,
// so allow more than bufio's 64KiB default.
const maxLineBytes = 1 << 20

// FileLog is an append-only JSON-lines operation log. Appends and reads
// take an advisory lock on a sibling ".lock" file, so several processes can
// share one log.
type FileLog struct {
	mu          sync.Mutex
	path        string
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// FileLogOption configures a FileLog.
type FileLogOption func(*FileLog)

// WithLogLockTimeout bounds how long Append and ReadSince wait for the lock.
func WithLogLockTimeout(d time.Duration) FileLogOption {
	return func(l *FileLog) {
		if d > 0 {
			l.lockTimeout = d
		}
	}
}

// NewFileLog returns a log at path, creating its directory.
func NewFileLog(path string, logger zerolog.Logger, opts ...FileLogOption) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create operation log directory: %w", err)
	}
	l := &FileLog{path: path, lockTimeout: constants.DefaultLockTimeout, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the log file location.
func (l *FileLog) Path() string {
	return l.path
}

// Append writes rec as one line and syncs it to disk.
func (l *FileLog) Append(ctx context.Context, rec domain.OperationRecord) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode operation record: %w", err)
	}
	line = append(line, '\n')

	unlock, err := l.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //#nosec G304 -- configured path
	if err != nil {
		return fmt.Errorf("failed to open operation log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append operation record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync operation log: %w", err)
	}
	return nil
}

// ReadSince returns every record stamped at or after since, in file order.
// Lines that do not decode are skipped. A missing file yields no records.
func (l *FileLog) ReadSince(ctx context.Context, since time.Time) ([]domain.OperationRecord, error) {
	unlock, err := l.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, err := os.Open(l.path) //#nosec G304 -- configured path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open operation log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var (
		records []domain.OperationRecord
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec domain.OperationRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil || rec.Timestamp.IsZero() {
			skipped++
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read operation log: %w", err)
	}

	if skipped > 0 {
		l.logger.Debug().Int("skipped", skipped).Str("path", l.path).Msg("skipped unreadable operation log lines")
	}
	return records, nil
}

// lock serializes access within the process and then across processes.
func (l *FileLog) lock(ctx context.Context) (func(), error) {
	l.mu.Lock()
	fl := flock.New(l.path + ".lock")
	if err := fl.Lock(ctx, l.lockTimeout); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("failed to lock operation log: %w", err)
	}
	return func() {
		_ = fl.Unlock()
		l.mu.Unlock()
	}, nil
}
