package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

// errorEntry pairs a sentinel error with its user-facing info.
type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinel errors to their user-facing messages.
// Using a slice (not a map) because errors.Is() requires proper error chain traversal.
//
//nolint:gochecknoglobals // Pre-built mapping for efficiency
var errorInfoEntries = []errorEntry{
	// ===================
	// Governance
	// ===================
	{
		err: ErrBudgetExceeded,
		info: ErrorInfo{
			Message: "The task needs more tokens than the project has left.",
			Action:  "Increase the project budget with 'tokengov project update --budget' or reduce the estimate.",
		},
	},
	{
		err: ErrRateLimited,
		info: ErrorInfo{
			Message: "The project reached its admissions-per-minute limit. The task was paused.",
			Action:  "Wait for the retry-after interval; paused tasks are released automatically while 'tokengov serve' runs.",
		},
	},
	{
		err: ErrUnauthorized,
		info: ErrorInfo{
			Message: "Only the project owner can change this project.",
			Action:  "Pass the owner with --requester.",
		},
	},
	{
		err: ErrMonitoringActive,
		info: ErrorInfo{
			Message: "Monitoring is already running in this process.",
		},
	},
	{
		err: ErrInvalidThresholds,
		info: ErrorInfo{
			Message: "Alert thresholds must be between 0 and 1 with warning below critical.",
			Action:  "Fix governor.warning_threshold and governor.critical_threshold in your config.",
		},
	},

	// ===================
	// Records
	// ===================
	{
		err: ErrProjectNotFound,
		info: ErrorInfo{
			Message: "Project not found.",
			Action:  "List registered projects with 'tokengov project list'.",
		},
	},
	{
		err: ErrTaskNotFound,
		info: ErrorInfo{
			Message: "Task not found.",
			Action:  "Register the task first with 'tokengov task register'.",
		},
	},
	{
		err: ErrProjectExists,
		info: ErrorInfo{
			Message: "A project with this id is already registered.",
			Action:  "Use 'tokengov project update' to change it.",
		},
	},
	{
		err: ErrTaskExists,
		info: ErrorInfo{
			Message: "A task with this id is already registered.",
		},
	},
	{
		err: ErrTerminalTask,
		info: ErrorInfo{
			Message: "The task already completed or failed and cannot change.",
		},
	},
	{
		err: ErrTaskNotPaused,
		info: ErrorInfo{
			Message: "Only paused tasks can be resumed.",
			Action:  "Check the task status with 'tokengov task show'.",
		},
	},
	{
		err: ErrInvalidTransition,
		info: ErrorInfo{
			Message: "The requested status change is not allowed for this task.",
		},
	},
	{
		err: ErrInvalidProject,
		info: ErrorInfo{
			Message: "The project is invalid.",
			Action:  "Projects need a name and a positive token budget.",
		},
	},
	{
		err: ErrInvalidTask,
		info: ErrorInfo{
			Message: "The task is invalid.",
			Action:  "Tasks need a project id and non-negative token counts.",
		},
	},
	{
		err: ErrInvalidEnum,
		info: ErrorInfo{
			Message: "Unknown value.",
			Action:  "Complexity is simple|complex|very_complex and tier is high|low.",
		},
	},

	// ===================
	// Checkpoints
	// ===================
	{
		err: ErrCheckpointNotFound,
		info: ErrorInfo{
			Message: "No checkpoint exists at that location.",
			Action:  "List checkpoints with 'tokengov checkpoint list <task-id>'.",
		},
	},
	{
		err: ErrCheckpointCorrupted,
		info: ErrorInfo{
			Message: "The checkpoint exists but could not be decoded.",
			Action:  "Load an older checkpoint from 'tokengov checkpoint list'.",
		},
	},
	{
		err: ErrCheckpointFailed,
		info: ErrorInfo{
			Message: "The checkpoint could not be written. The task state was not changed.",
			Action:  "Check the checkpoint backend and retry; the sweep retries requested checkpoints.",
		},
	},
	{
		err: ErrUnsupportedURI,
		info: ErrorInfo{
			Message: "The checkpoint URI does not match the configured checkpoint backend.",
			Action:  "Check storage.checkpoint_backend in your config.",
		},
	},
	{
		err: ErrLockTimedOut,
		info: ErrorInfo{
			Message: "Timed out waiting for a checkpoint file lock.",
			Action:  "Another process may be writing checkpoints; retry shortly.",
		},
	},

	// ===================
	// Configuration
	// ===================
	{
		err: ErrConfigNil,
		info: ErrorInfo{
			Message: "Configuration was not loaded.",
		},
	},
	{
		err: ErrConfigInvalidGovernor,
		info: ErrorInfo{
			Message: "The governor configuration is invalid.",
			Action:  "Run 'tokengov config show' and fix the governor section.",
		},
	},
	{
		err: ErrConfigInvalidStorage,
		info: ErrorInfo{
			Message: "The storage configuration is invalid.",
			Action:  "Run 'tokengov config show' and fix the storage section.",
		},
	},
	{
		err: ErrConfigInvalidEstimator,
		info: ErrorInfo{
			Message: "The estimator configuration is invalid.",
			Action:  "Run 'tokengov config show' and fix the estimator section.",
		},
	},
	{
		err: ErrInvalidOutputFormat,
		info: ErrorInfo{
			Message: "Invalid output format.",
			Action:  "Use --output text or --output json.",
		},
	},
	{
		err: ErrInvalidArgument,
		info: ErrorInfo{
			Message: "Invalid argument.",
			Action:  "Run the command with --help to see the expected arguments.",
		},
	},
}

// errorInfoMap provides O(1) lookup for direct sentinel error matches.
//
//nolint:gochecknoglobals // Pre-built mapping for O(1) lookup performance
var errorInfoMap = buildErrorInfoMap()

func buildErrorInfoMap() map[error]ErrorInfo {
	m := make(map[error]ErrorInfo, len(errorInfoEntries))
	for _, entry := range errorInfoEntries {
		m[entry.err] = entry.info
	}
	return m
}

// getErrorInfo looks up the ErrorInfo for a given error.
// It first tries a direct map lookup for unwrapped sentinel errors,
// then falls back to errors.Is() traversal for wrapped errors.
func getErrorInfo(err error) ErrorInfo {
	if info, ok := errorInfoMap[err]; ok {
		return info
	}

	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}

	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly error message along with a suggested
// action the user can take to resolve or work around the issue.
// The action is empty when there is nothing useful to suggest.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}
