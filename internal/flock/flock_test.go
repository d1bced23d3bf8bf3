//go:build unix

package flock_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/flock"
)

func TestExclusive(t *testing.T) {
	t.Parallel()

	lockFile := filepath.Join(t.TempDir(), "test.lock")

	f1, err := os.OpenFile(lockFile, os.O_RDWR|os.O_CREATE, 0o600) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	defer func() { _ = f1.Close() }()

	f2, err := os.OpenFile(lockFile, os.O_RDWR, 0o600) // #nosec G304 -- test temp dir
	require.NoError(t, err)
	defer func() { _ = f2.Close() }()

	require.NoError(t, flock.Exclusive(f1.Fd()))
	require.Error(t, flock.Exclusive(f2.Fd()), "second descriptor must not get the lock")

	require.NoError(t, flock.Unlock(f1.Fd()))
	require.NoError(t, flock.Exclusive(f2.Fd()))
	require.NoError(t, flock.Unlock(f2.Fd()))
}

func TestFile_LockUnlock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ckpt.lock")
	lock := flock.New(path)
	assert.Equal(t, path, lock.Path())

	require.NoError(t, lock.Lock(context.Background(), time.Second))
	_, err := os.Stat(path)
	require.NoError(t, err, "lock file should exist while held")

	require.NoError(t, lock.Unlock())
	require.NoError(t, lock.Unlock(), "double unlock is a no-op")
}

func TestFile_LockTimesOut(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "busy.lock")
	holder := flock.New(path)
	require.NoError(t, holder.Lock(context.Background(), time.Second))
	defer func() { _ = holder.Unlock() }()

	err := flock.New(path).Lock(context.Background(), 120*time.Millisecond)
	require.ErrorIs(t, err, tgerrors.ErrLockTimedOut)
}

func TestFile_LockHonorsContext(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ctx.lock")
	holder := flock.New(path)
	require.NoError(t, holder.Lock(context.Background(), time.Second))
	defer func() { _ = holder.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := flock.New(path).Lock(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}
