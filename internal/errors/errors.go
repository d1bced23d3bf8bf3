// Package errors provides centralized error handling for tokengov.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrProjectNotFound indicates the referenced project does not exist in the store.
	ErrProjectNotFound = errors.New("project not found")

	// ErrTaskNotFound indicates the referenced task does not exist in the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrProjectExists indicates an attempt to register a project id twice.
	ErrProjectExists = errors.New("project already exists")

	// ErrTaskExists indicates an attempt to register a task id twice.
	ErrTaskExists = errors.New("task already exists")

	// ErrBudgetExceeded indicates a task's estimate exceeds the project's remaining budget.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrRateLimited indicates the project exhausted its admissions for the current window.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCheckpointFailed indicates a checkpoint artifact could not be produced.
	ErrCheckpointFailed = errors.New("checkpoint failed")

	// ErrCheckpointNotFound indicates no checkpoint artifact exists at the given URI.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrCheckpointCorrupted indicates a checkpoint artifact exists but cannot be decoded.
	ErrCheckpointCorrupted = errors.New("checkpoint corrupted")

	// ErrUnsupportedURI indicates a checkpoint URI does not belong to the configured store.
	ErrUnsupportedURI = errors.New("unsupported checkpoint uri")

	// ErrMonitoring indicates an internal error inside a background monitor loop.
	ErrMonitoring = errors.New("monitoring error")

	// ErrMonitoringActive indicates Start was called while monitors were already running.
	ErrMonitoringActive = errors.New("monitoring already active")

	// ErrUnauthorized indicates the requester is not allowed to modify the resource.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition indicates a task status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTerminalTask indicates an operation on a completed or failed task.
	ErrTerminalTask = errors.New("task is in a terminal state")

	// ErrTaskNotPaused indicates a resume was requested for a task that is not paused.
	ErrTaskNotPaused = errors.New("task is not paused")

	// ErrInvalidEnum indicates an unknown value for a closed enumeration.
	ErrInvalidEnum = errors.New("invalid enum value")

	// ErrInvalidProject indicates a project failed validation.
	ErrInvalidProject = errors.New("invalid project")

	// ErrInvalidTask indicates a task failed validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidThresholds indicates alert thresholds outside (0,1] or warning >= critical.
	ErrInvalidThresholds = errors.New("invalid alert thresholds")

	// ErrLockTimedOut indicates a file lock could not be acquired within the timeout period.
	ErrLockTimedOut = errors.New("lock acquisition timed out")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidGovernor indicates an invalid governor configuration value.
	ErrConfigInvalidGovernor = errors.New("invalid governor configuration")

	// ErrConfigInvalidStorage indicates an invalid storage configuration value.
	ErrConfigInvalidStorage = errors.New("invalid storage configuration")

	// ErrConfigInvalidEstimator indicates an invalid estimator configuration value.
	ErrConfigInvalidEstimator = errors.New("invalid estimator configuration")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrInvalidArgument indicates a malformed command argument.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExitCode2Error wraps an error to indicate exit code 2 should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}
