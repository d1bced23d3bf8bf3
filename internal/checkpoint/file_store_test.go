package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/flock"
)

func TestFileStore_WriteReadList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	uri := s.URI("task-1", "task-1_100_0a1b2c3d")
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, "task-1_100_0a1b2c3d.json"))

	size, err := s.Write(ctx, uri, []byte(`{"task_id":"task-1"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(20), size)

	data, err := s.Read(ctx, uri)
	require.NoError(t, err)
	assert.JSONEq(t, `{"task_id":"task-1"}`, string(data))

	// A task whose id extends another's must not leak into its listing.
	other := s.URI("task-1_2", "task-1_2_200_0a1b2c3d")
	_, err = s.Write(ctx, other, []byte(`{}`))
	require.NoError(t, err)

	entries, err := s.List(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uri, entries[0].URI)
	assert.Equal(t, int64(20), entries[0].SizeBytes)

	// No temp files are left behind.
	files, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, f := range files {
		assert.False(t, strings.HasSuffix(f.Name(), ".tmp"), f.Name())
	}
}

func TestFileStore_ReadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Read(context.Background(), s.URI("t", "t_1_0a1b2c3d"))
	require.ErrorIs(t, err, tgerrors.ErrCheckpointNotFound)
}

func TestFileStore_RejectsForeignURIs(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, uri := range []string{
		"redis://tokengov:checkpoints:doc:t_1_0a1b2c3d",
		"file:///etc/passwd",
		"file://" + filepath.ToSlash(filepath.Join(s.Dir(), "..", "escape.json")),
		"file://" + filepath.ToSlash(filepath.Join(s.Dir(), "notes.txt")),
	} {
		_, err := s.Write(ctx, uri, []byte("{}"))
		require.ErrorIs(t, err, tgerrors.ErrUnsupportedURI, uri)
		_, err = s.Read(ctx, uri)
		require.ErrorIs(t, err, tgerrors.ErrUnsupportedURI, uri)
	}
}

func TestFileStore_ListRejectsPathLikeIDs(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"", "../x", "a/b", `a\b`} {
		_, err := s.List(context.Background(), id)
		require.ErrorIs(t, err, tgerrors.ErrInvalidArgument, id)
	}
}

func TestFileStore_WriteWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, WithLockTimeout(100*time.Millisecond))
	require.NoError(t, err)

	held := flock.New(filepath.Join(s.Dir(), lockName))
	require.NoError(t, held.Lock(context.Background(), time.Second))
	defer func() { _ = held.Unlock() }()

	_, err = s.Write(context.Background(), s.URI("t", "t_1_0a1b2c3d"), []byte("{}"))
	require.ErrorIs(t, err, tgerrors.ErrLockTimedOut)
}

func TestFileStore_CanceledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Write(ctx, s.URI("t", "t_1_0a1b2c3d"), []byte("{}"))
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.Read(ctx, s.URI("t", "t_1_0a1b2c3d"))
	require.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx, "t")
	require.ErrorIs(t, err, context.Canceled)

	deadline, stop := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer stop()
	_, err = s.Write(deadline, s.URI("t", "t_1_0a1b2c3d"), []byte("{}"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("")
	require.ErrorIs(t, err, tgerrors.ErrInvalidArgument)
}
