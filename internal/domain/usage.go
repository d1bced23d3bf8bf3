package domain

import (
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
)

// UsageRecord is an immutable, append-only entry in the usage ledger.
// The engine only ever sums these per project.
type UsageRecord struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	TaskID        string         `json:"task_id,omitempty"`
	AgentID       string         `json:"agent_id,omitempty"`
	TokensUsed    int64          `json:"tokens_used"`
	OperationType string         `json:"operation_type,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// OperationRecord is one line of the usage estimator's operation log.
// Every tracked operation produces a start record and, once finished, a
// complete record carrying the actual token count.
type OperationRecord struct {
	OperationID     string                   `json:"operation_id"`
	OperationType   string                   `json:"operation_type"`
	Phase           constants.OperationPhase `json:"phase"`
	ProjectID       string                   `json:"project_id,omitempty"`
	Context         map[string]any           `json:"context,omitempty"`
	EstimatedTokens int64                    `json:"estimated_tokens"`
	ActualTokens    int64                    `json:"actual_tokens,omitempty"`
	Success         bool                     `json:"success,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Efficiency      float64                  `json:"efficiency,omitempty"`
	DurationSeconds float64                  `json:"duration_seconds,omitempty"`
	Timestamp       time.Time                `json:"timestamp"`
}

// EfficiencyReport summarizes estimate accuracy for a project over a window.
// Status is no_data when no completed operation matched, which callers must
// not confuse with a zero efficiency.
type EfficiencyReport struct {
	Status            constants.EfficiencyStatus `json:"status"`
	ProjectID         string                     `json:"project_id"`
	TotalEstimated    int64                      `json:"total_estimated"`
	TotalActual       int64                      `json:"total_actual"`
	OverallEfficiency float64                    `json:"overall_efficiency"`
	AverageEfficiency float64                    `json:"average_efficiency"`
	OperationsCount   int                        `json:"operations_count"`
	PeriodDays        int                        `json:"period_days"`
}

// UsageSummary aggregates recent operations across all projects.
type UsageSummary struct {
	PeriodDays      int              `json:"period_days"`
	TotalTokens     int64            `json:"total_tokens"`
	OperationsCount int              `json:"operations_count"`
	ByOperation     map[string]int64 `json:"by_operation"`
}
