package domain

import (
	"strings"
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// Task is a unit of governed work. The engine reads and writes it through
// the task store; subtask ids are informational only.
type Task struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`

	// ParentAgentID identifies the agent that submitted the task.
	ParentAgentID string `json:"parent_agent_id,omitempty"`

	// ProjectID links the task to the project whose budget it consumes.
	ProjectID string `json:"project_id"`

	// Name is a short human-readable label.
	Name string `json:"name"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// Complexity drives both estimates and the adaptive checkpoint threshold.
	Complexity constants.Complexity `json:"complexity"`

	// EstimatedTokens is the expected total cost of the task.
	EstimatedTokens int64 `json:"estimated_tokens"`

	// ActualTokens is the cost reported so far. Never negative.
	ActualTokens int64 `json:"actual_tokens"`

	// SubtaskIDs references child tasks. Not scheduled by the engine.
	SubtaskIDs []string `json:"subtask_ids,omitempty"`

	// CheckpointState only moves forward: none → requested → saved.
	CheckpointState constants.CheckpointState `json:"checkpoint_state"`

	// CheckpointURI points at the newest saved checkpoint, if any.
	CheckpointURI string `json:"checkpoint_uri,omitempty"`

	// Status is the execution status.
	Status constants.TaskStatus `json:"status"`

	// CreatedAt is when the task was registered.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is set when the task is first admitted.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is set when the task reaches completed or failed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ErrorMessage carries the failure reason for failed tasks.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks the invariants of a task record.
func (t *Task) Validate() error {
	if t == nil {
		return tgerrors.Wrap(tgerrors.ErrInvalidTask, "task is nil")
	}
	if strings.TrimSpace(t.ID) == "" {
		return tgerrors.Wrap(tgerrors.ErrInvalidTask, "id is required")
	}
	if strings.TrimSpace(t.ProjectID) == "" {
		return tgerrors.Wrap(tgerrors.ErrInvalidTask, "project id is required")
	}
	if t.EstimatedTokens < 0 {
		return tgerrors.Wrapf(tgerrors.ErrInvalidTask, "estimated tokens must not be negative, got %d", t.EstimatedTokens)
	}
	if t.ActualTokens < 0 {
		return tgerrors.Wrapf(tgerrors.ErrInvalidTask, "actual tokens must not be negative, got %d", t.ActualTokens)
	}
	if !t.Complexity.IsValid() {
		return tgerrors.Wrapf(tgerrors.ErrInvalidEnum, "complexity %q", t.Complexity)
	}
	if !t.Status.IsValid() {
		return tgerrors.Wrapf(tgerrors.ErrInvalidEnum, "status %q", t.Status)
	}
	if !t.CheckpointState.IsValid() {
		return tgerrors.Wrapf(tgerrors.ErrInvalidEnum, "checkpoint state %q", t.CheckpointState)
	}
	return nil
}

// Progress returns ActualTokens/EstimatedTokens, or 0 when either is not positive.
func (t *Task) Progress() float64 {
	if t.EstimatedTokens <= 0 || t.ActualTokens <= 0 {
		return 0
	}
	return float64(t.ActualTokens) / float64(t.EstimatedTokens)
}

// CompletionPercentage returns Progress expressed as a percentage.
// It returns 0 when no estimate is known.
func (t *Task) CompletionPercentage() float64 {
	if t.EstimatedTokens <= 0 {
		return 0
	}
	return float64(t.ActualTokens) / float64(t.EstimatedTokens) * 100
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.SubtaskIDs != nil {
		c.SubtaskIDs = append([]string(nil), t.SubtaskIDs...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	return &c
}
