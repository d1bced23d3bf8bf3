package constants

// TaskStatus represents the execution status of a governed task.
// Status values use snake_case for JSON serialization compatibility.
type TaskStatus string

// Task status constants define the valid states a task can be in:
//
//	Pending → InProgress, Paused, Completed, Failed
//	InProgress → Paused, Completed, Failed
//	Paused → Pending, InProgress, Completed, Failed
const (
	// TaskStatusPending indicates a task is registered but not yet admitted.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusInProgress indicates the task was admitted and is consuming tokens.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusPaused indicates the task was throttled by the rate limiter
	// or paused by an operator. It re-enters Pending when released.
	TaskStatusPaused TaskStatus = "paused"

	// TaskStatusCompleted indicates the task finished and its usage was recorded.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the task ended with an error.
	TaskStatusFailed TaskStatus = "failed"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the declared task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusPaused, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ParseTaskStatus converts a string into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	status := TaskStatus(s)
	return status, status.IsValid()
}

// Complexity classifies the expected token cost of a task.
// The ordering simple < complex < very_complex is significant.
type Complexity string

const (
	// ComplexitySimple is the cheapest class of task.
	ComplexitySimple Complexity = "simple"

	// ComplexityComplex is the middle class of task.
	ComplexityComplex Complexity = "complex"

	// ComplexityVeryComplex is the most expensive class of task.
	ComplexityVeryComplex Complexity = "very_complex"
)

// String returns the string representation of the Complexity.
func (c Complexity) String() string {
	return string(c)
}

// IsValid reports whether c is one of the declared complexity classes.
func (c Complexity) IsValid() bool {
	return c.Rank() > 0
}

// Rank returns 1, 2 or 3 for simple, complex and very_complex, and 0 otherwise.
func (c Complexity) Rank() int {
	switch c {
	case ComplexitySimple:
		return 1
	case ComplexityComplex:
		return 2
	case ComplexityVeryComplex:
		return 3
	}
	return 0
}

// ParseComplexity converts a string into a Complexity.
// An empty string maps to ComplexitySimple.
func ParseComplexity(s string) (Complexity, bool) {
	if s == "" {
		return ComplexitySimple, true
	}
	c := Complexity(s)
	return c, c.IsValid()
}

// PriorityTier is the two-valued project priority.
type PriorityTier string

const (
	// PriorityHigh is the high priority tier.
	PriorityHigh PriorityTier = "tier_1"

	// PriorityLow is the low priority tier.
	PriorityLow PriorityTier = "tier_2"
)

// String returns the string representation of the PriorityTier.
func (p PriorityTier) String() string {
	return string(p)
}

// IsValid reports whether p is one of the declared tiers.
func (p PriorityTier) IsValid() bool {
	return p == PriorityHigh || p == PriorityLow
}

// ParsePriorityTier converts a string into a PriorityTier.
// It accepts the stored values as well as "high" and "low".
// An empty string maps to PriorityLow.
func ParsePriorityTier(s string) (PriorityTier, bool) {
	switch s {
	case "", "low", string(PriorityLow):
		return PriorityLow, true
	case "high", string(PriorityHigh):
		return PriorityHigh, true
	}
	return PriorityTier(s), false
}

// CheckpointState tracks the checkpoint sub-state of a task.
// It only moves forward: none → requested → saved.
type CheckpointState string

const (
	// CheckpointNone means no checkpoint was requested yet.
	CheckpointNone CheckpointState = "none"

	// CheckpointRequested means the engine asked for a checkpoint that was not written yet.
	CheckpointRequested CheckpointState = "requested"

	// CheckpointSaved means at least one checkpoint artifact exists for the task.
	CheckpointSaved CheckpointState = "saved"
)

// String returns the string representation of the CheckpointState.
func (s CheckpointState) String() string {
	return string(s)
}

// IsValid reports whether s is one of the declared checkpoint states.
func (s CheckpointState) IsValid() bool {
	return s == CheckpointNone || s == CheckpointRequested || s == CheckpointSaved
}

// ParseCheckpointState converts a string into a CheckpointState.
// An empty string maps to CheckpointNone.
func ParseCheckpointState(s string) (CheckpointState, bool) {
	if s == "" {
		return CheckpointNone, true
	}
	state := CheckpointState(s)
	return state, state.IsValid()
}

// AlertLevel classifies budget consumption.
type AlertLevel string

const (
	// AlertInfo means consumption is below every threshold.
	AlertInfo AlertLevel = "info"

	// AlertWarning means consumption reached the warning threshold.
	AlertWarning AlertLevel = "warning"

	// AlertCritical means consumption reached the critical threshold.
	AlertCritical AlertLevel = "critical"
)

// String returns the string representation of the AlertLevel.
func (l AlertLevel) String() string {
	return string(l)
}

// DecisionStatus tags the outcome of an engine operation.
type DecisionStatus string

const (
	DecisionRegistered          DecisionStatus = "registered"
	DecisionBlocked             DecisionStatus = "blocked"
	DecisionRateLimited         DecisionStatus = "rate_limited"
	DecisionCheckpointRequested DecisionStatus = "checkpoint_requested"
	DecisionApproved            DecisionStatus = "approved"
	DecisionCompleted           DecisionStatus = "completed"
	DecisionFailed              DecisionStatus = "failed"
	DecisionError               DecisionStatus = "error"
)

// String returns the string representation of the DecisionStatus.
func (s DecisionStatus) String() string {
	return string(s)
}

// OperationPhase marks a record in the operation log as the start or the end of an operation.
type OperationPhase string

const (
	PhaseStart    OperationPhase = "start"
	PhaseComplete OperationPhase = "complete"
)

// EfficiencyStatus distinguishes an efficiency report with data from one without.
type EfficiencyStatus string

const (
	EfficiencyOK     EfficiencyStatus = "ok"
	EfficiencyNoData EfficiencyStatus = "no_data"
)
