package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

const taskColumns = `id, project_id, parent_agent_id, name, description, complexity, estimated_tokens,
	actual_tokens, subtask_ids, checkpoint_state, checkpoint_uri, status, error_message,
	created_at, started_at, completed_at`

// CreateTask inserts t. The owning project must exist.
func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	subtasks, err := encodeSubtasks(t.SubtaskIDs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.ParentAgentID, t.Name, t.Description, string(t.Complexity), t.EstimatedTokens,
		t.ActualTokens, subtasks, string(t.CheckpointState), t.CheckpointURI, string(t.Status), t.ErrorMessage,
		formatTime(t.CreatedAt), formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt),
	)
	switch {
	case isUniqueViolation(err):
		return tgerrors.Wrapf(tgerrors.ErrTaskExists, "task %s", t.ID)
	case isForeignKeyViolation(err):
		return tgerrors.Wrapf(tgerrors.ErrProjectNotFound, "project %s", t.ProjectID)
	case err != nil:
		return fmt.Errorf("store: create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask returns the task with id or ErrTaskNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tgerrors.Wrapf(tgerrors.ErrTaskNotFound, "task %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask overwrites every mutable field of an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	return updateTask(ctx, s.db, t)
}

// FinishTask stores a task's terminal state and its usage record in one
// transaction, so a task is never completed without its tokens charged.
func (s *Store) FinishTask(ctx context.Context, t *domain.Task, r *domain.UsageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin finish task %s: %w", t.ID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateTask(ctx, tx, t); err != nil {
		return err
	}
	if err := appendUsage(ctx, tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit finish task %s: %w", t.ID, err)
	}
	return nil
}

func updateTask(ctx context.Context, ex execer, t *domain.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	subtasks, err := encodeSubtasks(t.SubtaskIDs)
	if err != nil {
		return err
	}

	res, err := ex.ExecContext(ctx,
		`UPDATE tasks SET parent_agent_id = ?, name = ?, description = ?, complexity = ?, estimated_tokens = ?,
			actual_tokens = ?, subtask_ids = ?, checkpoint_state = ?, checkpoint_uri = ?, status = ?,
			error_message = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		t.ParentAgentID, t.Name, t.Description, string(t.Complexity), t.EstimatedTokens,
		t.ActualTokens, subtasks, string(t.CheckpointState), t.CheckpointURI, string(t.Status),
		t.ErrorMessage, formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tgerrors.Wrapf(tgerrors.ErrTaskNotFound, "task %s", t.ID)
	}
	return nil
}

// ListTasksByProject returns the tasks of projectID ordered by creation time.
func (s *Store) ListTasksByProject(ctx context.Context, projectID string) ([]*domain.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = ? ORDER BY created_at, id`, projectID)
}

// ListTasksByStatus returns every task in status across all projects.
func (s *Store) ListTasksByStatus(ctx context.Context, status constants.TaskStatus) ([]*domain.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY created_at, id`, string(status))
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                           domain.Task
		complexity, cpState, status string
		subtasks, created           string
		started, completed          sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.ProjectID, &t.ParentAgentID, &t.Name, &t.Description, &complexity, &t.EstimatedTokens,
		&t.ActualTokens, &subtasks, &cpState, &t.CheckpointURI, &status, &t.ErrorMessage,
		&created, &started, &completed,
	); err != nil {
		return nil, err
	}

	t.Complexity = constants.Complexity(complexity)
	t.CheckpointState = constants.CheckpointState(cpState)
	t.Status = constants.TaskStatus(status)

	if err := json.Unmarshal([]byte(subtasks), &t.SubtaskIDs); err != nil {
		return nil, fmt.Errorf("store: decode subtasks of %s: %w", t.ID, err)
	}
	if len(t.SubtaskIDs) == 0 {
		t.SubtaskIDs = nil
	}

	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.StartedAt, err = parseTimePtr(started); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeSubtasks(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("store: encode subtasks: %w", err)
	}
	return string(b), nil
}
