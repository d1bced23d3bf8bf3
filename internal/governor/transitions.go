package governor

import (
	"fmt"
	"slices"
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// ValidTransitions lists the status changes the engine performs.
//
//	Pending → InProgress, Paused, Completed, Failed
//	InProgress → Paused, Completed, Failed
//	Paused → Pending, InProgress, Completed, Failed
//
//nolint:gochecknoglobals // read-only lookup table
var ValidTransitions = map[constants.TaskStatus][]constants.TaskStatus{
	constants.TaskStatusPending: {
		constants.TaskStatusInProgress,
		constants.TaskStatusPaused,
		constants.TaskStatusCompleted,
		constants.TaskStatusFailed,
	},
	constants.TaskStatusInProgress: {
		constants.TaskStatusPaused,
		constants.TaskStatusCompleted,
		constants.TaskStatusFailed,
	},
	constants.TaskStatusPaused: {
		constants.TaskStatusPending,
		constants.TaskStatusInProgress,
		constants.TaskStatusCompleted,
		constants.TaskStatusFailed,
	},
}

// IsValidTransition reports whether a task may move from one status to another.
// Staying in the same status is not a transition.
func IsValidTransition(from, to constants.TaskStatus) bool {
	if from == to {
		return false
	}
	return slices.Contains(ValidTransitions[from], to)
}

// transition validates and applies a status change in place. It stamps
// StartedAt on first admission and CompletedAt on terminal states. The caller
// persists the task.
func transition(task *domain.Task, to constants.TaskStatus, now time.Time) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", tgerrors.ErrInvalidTransition)
	}
	if task.Status.IsTerminal() {
		return tgerrors.Wrapf(tgerrors.ErrTerminalTask, "task %s is %s", task.ID, task.Status)
	}
	if !IsValidTransition(task.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", tgerrors.ErrInvalidTransition, task.Status, to)
	}

	task.Status = to
	switch {
	case to == constants.TaskStatusInProgress && task.StartedAt == nil:
		started := now
		task.StartedAt = &started
	case to.IsTerminal():
		completed := now
		task.CompletedAt = &completed
	}
	return nil
}
