package domain

import (
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
)

// Decision is the structured outcome of an engine call made at the boundary.
// Only the fields relevant to Status are populated.
type Decision struct {
	Status          constants.DecisionStatus `json:"status"`
	ProjectID       string                   `json:"project_id,omitempty"`
	TaskID          string                   `json:"task_id,omitempty"`
	Reason          string                   `json:"reason,omitempty"`
	Recommendation  string                   `json:"recommendation,omitempty"`
	Required        int64                    `json:"required,omitempty"`
	Available       int64                    `json:"available,omitempty"`
	RetryAfter      int                      `json:"retry_after,omitempty"`
	CheckpointURI   string                   `json:"checkpoint_uri,omitempty"`
	EstimatedTokens int64                    `json:"estimated_tokens,omitempty"`
	TokenBudget     int64                    `json:"token_budget,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

// CompletionResult is returned when a task finishes.
// Efficiency is estimated/actual and may exceed 1.
type CompletionResult struct {
	Status     constants.DecisionStatus `json:"status"`
	TaskID     string                   `json:"task_id"`
	TokensUsed int64                    `json:"tokens_used"`
	Efficiency float64                  `json:"efficiency"`
	Alerts     []Alert                  `json:"alerts"`
	Error      string                   `json:"error,omitempty"`
}

// Alert reports a project crossing a budget threshold.
type Alert struct {
	Level          constants.AlertLevel `json:"level"`
	ProjectID      string               `json:"project_id"`
	UsageRatio     float64              `json:"usage_ratio"`
	Message        string               `json:"message"`
	Recommendation string               `json:"recommendation"`
	RaisedAt       time.Time            `json:"raised_at"`
}

// ProjectStatus is the aggregated view returned by the engine's status call.
type ProjectStatus struct {
	ProjectID  string           `json:"project_id"`
	Name       string           `json:"name"`
	Active     bool             `json:"active"`
	Budget     BudgetStatus     `json:"budget"`
	Tasks      TaskStats        `json:"tasks"`
	Efficiency EfficiencyReport `json:"efficiency"`
	Monitoring MonitoringStatus `json:"monitoring"`
}

// BudgetStatus describes consumption against the project's budget.
type BudgetStatus struct {
	Total      int64                `json:"total"`
	Used       int64                `json:"used"`
	Remaining  int64                `json:"remaining"`
	Percentage float64              `json:"percentage"`
	AlertLevel constants.AlertLevel `json:"alert_level"`
}

// TaskStats counts a project's tasks by status.
type TaskStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Paused     int `json:"paused"`
}

// MonitoringStatus reports the engine's view of a project.
type MonitoringStatus struct {
	Active      bool `json:"active"`
	PausedTasks int  `json:"paused_tasks"`
	RateLimited bool `json:"rate_limited"`
}
