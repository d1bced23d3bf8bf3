package checkpoint

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/testutil"
)

// memStore is an in-memory Store with error injection.
type memStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	order    []string
	writeErr error
	listErr  error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (s *memStore) URI(_, name string) string { return "mem://" + name }

func (s *memStore) Write(_ context.Context, uri string, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.docs[uri] = append([]byte(nil), data...)
	s.order = append(s.order, uri)
	return int64(len(data)), nil
}

func (s *memStore) Read(_ context.Context, uri string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[uri]
	if !ok {
		return nil, tgerrors.ErrCheckpointNotFound
	}
	return data, nil
}

func (s *memStore) List(_ context.Context, taskID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Entry
	for _, uri := range s.order {
		if belongsTo(strings.TrimPrefix(uri, "mem://"), taskID) {
			out = append(out, Entry{URI: uri, SizeBytes: int64(len(s.docs[uri]))})
		}
	}
	return out, nil
}

func sampleTask() *domain.Task {
	return &domain.Task{
		ID:              "task-7",
		ProjectID:       "proj-1",
		Complexity:      constants.ComplexityVeryComplex,
		EstimatedTokens: 2000,
		ActualTokens:    500,
		SubtaskIDs:      []string{"a", "b"},
		Status:          constants.TaskStatusInProgress,
		CheckpointState: constants.CheckpointRequested,
	}
}

func TestManager_PrepareURIIsUnique(t *testing.T) {
	m := NewManager(newMemStore(), WithClock(clock.NewMock(time.Unix(1700000000, 0))))
	task := sampleTask()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		uri := m.PrepareURI(task)
		assert.True(t, strings.HasPrefix(uri, "mem://task-7_1700000000000000000_"), uri)
		assert.False(t, seen[uri], "duplicate uri %s", uri)
		seen[uri] = true
	}
}

func TestManager_CreateCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	m := NewManager(store, WithClock(clock.NewMock(now)))

	task := sampleTask()
	cp, ok := m.CreateCheckpoint(ctx, task)
	require.True(t, ok)
	require.NotNil(t, cp)

	assert.True(t, strings.HasPrefix(cp.ID, "ckpt-"))
	assert.Equal(t, constants.CheckpointSaved, task.CheckpointState)
	assert.Equal(t, cp.URI, task.CheckpointURI)
	assert.Positive(t, cp.SizeBytes)
	assert.Equal(t, now, cp.CreatedAt)
	assert.InDelta(t, 25.0, cp.Data.Progress.CompletionPercentage, 1e-9)
	assert.Equal(t, []string{"a", "b"}, cp.Data.Context.Subtasks)

	loaded, err := m.LoadCheckpoint(ctx, cp.URI)
	require.NoError(t, err)
	assert.Equal(t, "task-7", loaded.TaskID)
	assert.Equal(t, constants.TaskStatusInProgress, loaded.Status)
	assert.Equal(t, constants.ComplexityVeryComplex, loaded.Context.Complexity)
	assert.Equal(t, "proj-1", loaded.Context.ProjectID)
	assert.Equal(t, int64(500), loaded.Progress.ActualTokens)
}

func TestManager_CreateCheckpointZeroEstimate(t *testing.T) {
	m := NewManager(newMemStore())
	task := sampleTask()
	task.EstimatedTokens = 0

	cp, ok := m.CreateCheckpoint(context.Background(), task)
	require.True(t, ok)
	assert.InDelta(t, 0.0, cp.Data.Progress.CompletionPercentage, 1e-9)
}

func TestManager_CreateCheckpointFailureLeavesTask(t *testing.T) {
	store := newMemStore()
	store.writeErr = testutil.ErrMockStoreUnavailable
	m := NewManager(store)

	task := sampleTask()
	before := *task

	cp, ok := m.CreateCheckpoint(context.Background(), task)
	assert.False(t, ok)
	assert.Nil(t, cp)
	assert.Equal(t, before.CheckpointState, task.CheckpointState)
	assert.Empty(t, task.CheckpointURI)

	_, ok = m.CreateCheckpoint(context.Background(), nil)
	assert.False(t, ok)

	bad := sampleTask()
	bad.ID = "../escape"
	_, ok = m.CreateCheckpoint(context.Background(), bad)
	assert.False(t, ok)
}

func TestManager_RecheckpointSavedTask(t *testing.T) {
	mock := clock.NewMock(time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	m := NewManager(newMemStore(), WithClock(mock))
	task := sampleTask()

	first, ok := m.CreateCheckpoint(context.Background(), task)
	require.True(t, ok)

	mock.Advance(time.Minute)
	second, ok := m.CreateCheckpoint(context.Background(), task)
	require.True(t, ok)

	assert.NotEqual(t, first.URI, second.URI)
	assert.Equal(t, constants.CheckpointSaved, task.CheckpointState)
	assert.Equal(t, second.URI, task.CheckpointURI)
}

func TestManager_ListCheckpointsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	mock := clock.NewMock(time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	m := NewManager(store, WithClock(mock))
	task := sampleTask()

	var uris []string
	for i := 0; i < 3; i++ {
		cp, ok := m.CreateCheckpoint(ctx, task)
		require.True(t, ok)
		uris = append(uris, cp.URI)
		mock.Advance(time.Minute)
	}

	// A corrupt document is skipped.
	corrupt := m.PrepareURI(task)
	_, err := store.Write(ctx, corrupt, []byte("{not json"))
	require.NoError(t, err)

	refs := m.ListCheckpoints(ctx, task.ID)
	require.Len(t, refs, 3)
	assert.Equal(t, uris[2], refs[0].URI)
	assert.Equal(t, uris[0], refs[2].URI)
	assert.True(t, refs[0].Timestamp.After(refs[1].Timestamp))

	data, uri, err := m.Latest(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, uris[2], uri)
	assert.Equal(t, task.ID, data.TaskID)
}

func TestManager_ListCheckpointsStoreError(t *testing.T) {
	store := newMemStore()
	store.listErr = testutil.ErrMockStoreUnavailable
	m := NewManager(store)

	refs := m.ListCheckpoints(context.Background(), "task-7")
	assert.NotNil(t, refs)
	assert.Empty(t, refs)

	_, _, err := m.Latest(context.Background(), "task-7")
	require.ErrorIs(t, err, tgerrors.ErrCheckpointNotFound)
}

func TestManager_LoadCheckpointErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewManager(store)

	_, err := m.LoadCheckpoint(ctx, "mem://missing")
	require.ErrorIs(t, err, tgerrors.ErrCheckpointNotFound)

	_, err = store.Write(ctx, "mem://empty", []byte(`{}`))
	require.NoError(t, err)
	_, err = m.LoadCheckpoint(ctx, "mem://empty")
	require.ErrorIs(t, err, tgerrors.ErrCheckpointCorrupted)
}

func TestManager_WithFileStore(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	m := NewManager(fs)

	task := sampleTask()
	cp, ok := m.CreateCheckpoint(ctx, task)
	require.True(t, ok)

	refs := m.ListCheckpoints(ctx, task.ID)
	require.Len(t, refs, 1)
	assert.Equal(t, cp.URI, refs[0].URI)
	assert.Equal(t, cp.SizeBytes, refs[0].SizeBytes)
}
