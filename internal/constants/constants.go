// Package constants provides centralized constant values used throughout tokengov.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Directory names and paths used by tokengov for organizing data.
const (
	// TokengovHome is the hidden directory name where tokengov stores all its data.
	// This directory is created in the user's home directory.
	TokengovHome = ".tokengov"

	// CheckpointsDir is the directory name where file checkpoints are written.
	CheckpointsDir = "checkpoints"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"
)

// Governance defaults. These mirror the values returned by config.DefaultConfig.
const (
	// DefaultTokenBudget is the budget assigned to projects registered without one.
	DefaultTokenBudget int64 = 100000

	// DefaultWarningThreshold is the usage ratio that raises a warning alert.
	DefaultWarningThreshold = 0.80

	// DefaultCriticalThreshold is the usage ratio that raises a critical alert.
	DefaultCriticalThreshold = 0.95

	// DefaultRateLimit is the number of admissions allowed per project per window.
	DefaultRateLimit = 5

	// RateLimitWindow is the sliding window used by the rate limiter.
	RateLimitWindow = 60 * time.Second
)

// Adaptive checkpoint thresholds expressed as actual/estimated token ratios.
const (
	CheckpointThresholdVeryComplex = 0.70
	CheckpointThresholdDefault     = 0.90
	CheckpointThresholdSimple      = 0.95
)

// Monitor loop intervals.
const (
	// DefaultUsageInterval is how often budgets of active projects are re-evaluated.
	DefaultUsageInterval = 300 * time.Second

	// DefaultProgressInterval is how often in-progress tasks are scanned for staleness.
	DefaultProgressInterval = 300 * time.Second

	// DefaultCheckpointInterval is how often requested checkpoints are materialized.
	DefaultCheckpointInterval = 180 * time.Second

	// DefaultReleaseInterval is how often paused tasks are re-tested for admission.
	DefaultReleaseInterval = 60 * time.Second

	// DefaultErrorBackoff is the pause taken by a loop after an internal error.
	DefaultErrorBackoff = 60 * time.Second

	// DefaultStaleThreshold is the age after which an in-progress task is reported as stalled.
	DefaultStaleThreshold = 2 * time.Hour

	// DefaultCheckpointWorkers bounds concurrent checkpoint writes during a sweep.
	DefaultCheckpointWorkers = 4
)

// Storage defaults.
const (
	// DefaultStoreTimeout bounds each call the engine makes into a storage collaborator.
	DefaultStoreTimeout = 10 * time.Second

	// DefaultLockTimeout is the timeout for acquiring checkpoint file locks.
	DefaultLockTimeout = 5 * time.Second

	// CheckpointBackendFile selects the local file checkpoint store.
	CheckpointBackendFile = "file"

	// CheckpointBackendRedis selects the Redis checkpoint store.
	CheckpointBackendRedis = "redis"
)

// Usage estimator defaults.
const (
	// DefaultHistoryDays is the window of operation history used for estimates.
	DefaultHistoryDays = 30

	// DefaultEfficiencyDays is the window used for efficiency analysis.
	DefaultEfficiencyDays = 7

	// DefaultFileCount is assumed for repository-scale operations that omit a file count.
	DefaultFileCount = 10
)

// Operation labels recorded in the usage ledger and the operation log.
const (
	OperationTaskCompletion    = "task_completion"
	OperationTaskFailure       = "task_failure"
	OperationTaskExecution     = "task_execution"
	OperationProjectCreation   = "project_creation"
	OperationTaskRegistration  = "task_registration"
	OperationCheckpointSave    = "checkpoint_save"
	OperationStatusReport      = "status_report"
	OperationErrorHandling     = "error_handling"
	OperationPRCreation        = "pr_creation"
	OperationRepoSetup         = "repo_setup"
	OperationProjectRegistered = "project_registration"
)

// Recommendations attached to decisions and alerts.
const (
	RecommendIncreaseBudget = "Increase budget or optimize token usage"
	RecommendCritical       = "Immediate action required - pause non-critical tasks"
	RecommendWarning        = "Review token usage and optimize if needed"
)

// DefaultUsageHistoryLimit is the number of usage records returned when no limit is given.
const DefaultUsageHistoryLimit = 100
