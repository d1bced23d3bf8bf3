package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// Manager creates, lists and reloads checkpoints through a Store.
type Manager struct {
	store  Store
	clock  clock.Clock
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for names and timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "checkpoint").Logger()
	}
}

// NewManager returns a Manager writing to store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		clock:  clock.RealClock{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateCheckpointID returns a short unique checkpoint identifier.
func GenerateCheckpointID() string {
	return "ckpt-" + uuid.New().String()[:8]
}

// PrepareURI returns a fresh address for a checkpoint of task. Two calls never
// return the same URI, even within one clock tick.
func (m *Manager) PrepareURI(task *domain.Task) string {
	name := fmt.Sprintf("%s_%d_%s", task.ID, m.clock.Now().UnixNano(), uuid.New().String()[:8])
	return m.store.URI(task.ID, name)
}

// CreateCheckpoint snapshots task to the store. On success the task's
// checkpoint state becomes saved and its URI points at the new snapshot;
// the caller persists the task. On failure the error is logged, the task
// is left untouched and ok is false.
func (m *Manager) CreateCheckpoint(ctx context.Context, task *domain.Task) (*domain.Checkpoint, bool) {
	if task == nil {
		m.logger.Error().Msg("cannot checkpoint a nil task")
		return nil, false
	}
	log := m.logger.With().Str("task_id", task.ID).Logger()

	if err := validateTaskID(task.ID); err != nil {
		log.Error().Err(err).Msg("failed to create checkpoint")
		return nil, false
	}

	now := m.clock.Now().UTC()
	data := domain.CheckpointData{
		TaskID: task.ID,
		Status: task.Status,
		Progress: domain.CheckpointProgress{
			EstimatedTokens:      task.EstimatedTokens,
			ActualTokens:         task.ActualTokens,
			CompletionPercentage: task.CompletionPercentage(),
		},
		Context: domain.CheckpointContext{
			ProjectID:  task.ProjectID,
			Complexity: task.Complexity,
			Subtasks:   append([]string{}, task.SubtaskIDs...),
		},
		Timestamp: now,
	}

	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode checkpoint")
		return nil, false
	}

	uri := m.PrepareURI(task)
	size, err := m.store.Write(ctx, uri, payload)
	if err != nil {
		log.Error().Err(err).Str("uri", uri).Msg("failed to create checkpoint")
		return nil, false
	}

	task.CheckpointState = constants.CheckpointSaved
	task.CheckpointURI = uri

	log.Info().Str("uri", uri).Int64("size_bytes", size).Msg("checkpoint created")

	return &domain.Checkpoint{
		ID:        GenerateCheckpointID(),
		TaskID:    task.ID,
		URI:       uri,
		Data:      data,
		SizeBytes: size,
		CreatedAt: now,
	}, true
}

// LoadCheckpoint reads and decodes the checkpoint at uri.
func (m *Manager) LoadCheckpoint(ctx context.Context, uri string) (*domain.CheckpointData, error) {
	raw, err := m.store.Read(ctx, uri)
	if err != nil {
		return nil, err
	}

	var data domain.CheckpointData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointCorrupted, "%s: %v", uri, err)
	}
	if data.TaskID == "" {
		return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointCorrupted, "%s: missing task id", uri)
	}

	m.logger.Debug().Str("uri", uri).Str("task_id", data.TaskID).Msg("checkpoint loaded")
	return &data, nil
}

// ListCheckpoints returns the checkpoints of taskID, newest first. Entries
// that cannot be read or decoded are skipped with a warning; a store failure
// yields an empty list.
func (m *Manager) ListCheckpoints(ctx context.Context, taskID string) []domain.CheckpointRef {
	log := m.logger.With().Str("task_id", taskID).Logger()

	entries, err := m.store.List(ctx, taskID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list checkpoints")
		return []domain.CheckpointRef{}
	}

	refs := make([]domain.CheckpointRef, 0, len(entries))
	for _, e := range entries {
		data, err := m.LoadCheckpoint(ctx, e.URI)
		if err != nil {
			log.Warn().Err(err).Str("uri", e.URI).Msg("skipping unreadable checkpoint")
			continue
		}
		refs = append(refs, domain.CheckpointRef{
			URI:       e.URI,
			Timestamp: data.Timestamp,
			SizeBytes: e.SizeBytes,
		})
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Timestamp.After(refs[j].Timestamp)
	})
	return refs
}

// Latest returns the newest loadable checkpoint of taskID and its URI.
func (m *Manager) Latest(ctx context.Context, taskID string) (*domain.CheckpointData, string, error) {
	for _, ref := range m.ListCheckpoints(ctx, taskID) {
		data, err := m.LoadCheckpoint(ctx, ref.URI)
		if err == nil {
			return data, ref.URI, nil
		}
	}
	return nil, "", tgerrors.Wrapf(tgerrors.ErrCheckpointNotFound, "no checkpoint for task %s", taskID)
}
