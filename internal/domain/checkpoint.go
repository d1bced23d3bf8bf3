package domain

import (
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
)

// Checkpoint is an immutable snapshot of task progress stored at URI.
type Checkpoint struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	URI       string         `json:"uri"`
	Data      CheckpointData `json:"data"`
	SizeBytes int64          `json:"size_bytes"`
	CreatedAt time.Time      `json:"created_at"`
}

// CheckpointData is the serialized artifact body.
type CheckpointData struct {
	TaskID    string               `json:"task_id"`
	Status    constants.TaskStatus `json:"status"`
	Progress  CheckpointProgress   `json:"progress"`
	Context   CheckpointContext    `json:"context"`
	Timestamp time.Time            `json:"timestamp"`
}

// CheckpointProgress captures token progress at checkpoint time.
type CheckpointProgress struct {
	EstimatedTokens      int64   `json:"estimated_tokens"`
	ActualTokens         int64   `json:"actual_tokens"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// CheckpointContext captures what is needed to resume the task.
type CheckpointContext struct {
	ProjectID  string               `json:"project_id"`
	Complexity constants.Complexity `json:"complexity"`
	Subtasks   []string             `json:"subtasks"`
}

// CheckpointRef is one entry of a checkpoint listing.
type CheckpointRef struct {
	URI       string    `json:"uri"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
}
