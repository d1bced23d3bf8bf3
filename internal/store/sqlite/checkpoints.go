package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// RecordCheckpoint stores the metadata of a written checkpoint so it can be
// listed without touching the artifact store.
func (s *Store) RecordCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp.Data)
	if err != nil {
		return fmt.Errorf("store: encode checkpoint: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, task_id, uri, data, size_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.TaskID, cp.URI, string(data), cp.SizeBytes, formatTime(cp.CreatedAt),
	)
	switch {
	case isForeignKeyViolation(err):
		return tgerrors.Wrapf(tgerrors.ErrTaskNotFound, "task %s", cp.TaskID)
	case isUniqueViolation(err):
		return tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "checkpoint %s already recorded", cp.URI)
	case err != nil:
		return fmt.Errorf("store: record checkpoint: %w", err)
	}
	return nil
}

// CheckpointsForTask returns recorded checkpoints of taskID, newest first.
func (s *Store) CheckpointsForTask(ctx context.Context, taskID string) ([]*domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, uri, data, size_bytes, created_at FROM checkpoints
		 WHERE task_id = ? ORDER BY created_at DESC, id`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: checkpoints for %s: %w", taskID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Checkpoint
	for rows.Next() {
		var (
			cp            domain.Checkpoint
			data, created string
		)
		if err := rows.Scan(&cp.ID, &cp.TaskID, &cp.URI, &data, &cp.SizeBytes, &created); err != nil {
			return nil, fmt.Errorf("store: checkpoints for %s: %w", taskID, err)
		}
		if err := json.Unmarshal([]byte(data), &cp.Data); err != nil {
			return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointCorrupted, "%s: %v", cp.URI, err)
		}
		if cp.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}
