package usage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/flock"
)

func TestFileLog_AppendAndReadSince(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "operations.jsonl")
	l, err := NewFileLog(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, op := range []string{"a", "b", "c"} {
		require.NoError(t, l.Append(ctx, domain.OperationRecord{
			OperationID:   op,
			OperationType: constants.OperationTaskExecution,
			Phase:         constants.PhaseComplete,
			ActualTokens:  int64(100 * (i + 1)),
			Timestamp:     base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	all, err := l.ReadSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].OperationID)

	recent, err := l.ReadSince(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].OperationID)
}

func TestFileLog_SkipsGarbage(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "operations.jsonl")
	content := "not json\n\n{\"operation_id\":\"no-timestamp\"}\n" +
		`{"operation_id":"ok","operation_type":"x","phase":"complete","estimated_tokens":1,"timestamp":"2026-06-01T00:00:00Z"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	l, err := NewFileLog(path, zerolog.Nop())
	require.NoError(t, err)

	recs, err := l.ReadSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ok", recs[0].OperationID)
}

func TestFileLog_MissingFile(t *testing.T) {
	l, err := NewFileLog(filepath.Join(t.TempDir(), "none.jsonl"), zerolog.Nop())
	require.NoError(t, err)

	recs, err := l.ReadSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileLog_CanceledAppend(t *testing.T) {
	l, err := NewFileLog(filepath.Join(t.TempDir(), "ops.jsonl"), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Append(ctx, domain.OperationRecord{}), context.Canceled)
}

func TestFileLog_HonorsLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	l, err := NewFileLog(path, zerolog.Nop(), WithLogLockTimeout(100*time.Millisecond))
	require.NoError(t, err)

	other := flock.New(path + ".lock")
	require.NoError(t, other.Lock(ctx, time.Second))

	err = l.Append(ctx, domain.OperationRecord{OperationID: "blocked", Timestamp: time.Now()})
	require.ErrorIs(t, err, tgerrors.ErrLockTimedOut)
	_, err = l.ReadSince(ctx, time.Time{})
	require.ErrorIs(t, err, tgerrors.ErrLockTimedOut)

	require.NoError(t, other.Unlock())
	require.NoError(t, l.Append(ctx, domain.OperationRecord{OperationID: "after", Timestamp: time.Now()}))
	recs, err := l.ReadSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "after", recs[0].OperationID)
}

func TestFileLog_SharedAcrossWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	a, err := NewFileLog(path, zerolog.Nop())
	require.NoError(t, err)
	b, err := NewFileLog(path, zerolog.Nop())
	require.NoError(t, err)

	var g errgroup.Group
	for i := range 40 {
		l := a
		if i%2 == 1 {
			l = b
		}
		g.Go(func() error {
			return l.Append(ctx, domain.OperationRecord{
				OperationID:   fmt.Sprintf("op-%d", i),
				OperationType: constants.OperationTaskExecution,
				Phase:         constants.PhaseComplete,
				Timestamp:     time.Date(2026, 6, 1, 0, 0, i, 0, time.UTC),
			})
		})
	}
	require.NoError(t, g.Wait())

	recs, err := a.ReadSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, recs, 40)
}
