package governor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/usage"
)

// GenerateTaskID returns a new task id of the form task-xxxxxxxx.
func GenerateTaskID() string {
	return "task-" + uuid.New().String()[:8]
}

// RegisterTask stores a new pending task. The owning project must exist. A
// zero estimate is filled in by the usage estimator.
func (e *Engine) RegisterTask(ctx context.Context, t *domain.Task) (*domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, tgerrors.Wrap(tgerrors.ErrInvalidTask, "task is nil")
	}

	if _, err := e.getProject(ctx, t.ProjectID); err != nil {
		return nil, err
	}

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.Complexity == "" {
		t.Complexity = constants.ComplexitySimple
	}
	t.Status = constants.TaskStatusPending
	t.CheckpointState = constants.CheckpointNone
	t.CheckpointURI = ""
	t.StartedAt = nil
	t.CompletedAt = nil
	if t.CreatedAt.IsZero() {
		t.CreatedAt = e.now()
	}
	if t.EstimatedTokens == 0 {
		t.EstimatedTokens = e.deps.Estimator.Estimate(ctx, constants.OperationTaskExecution, map[string]any{
			usage.ContextComplexity: t.Complexity.String(),
			usage.ContextProjectID:  t.ProjectID,
		})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.deps.Tasks.CreateTask(sctx, t); err != nil {
		return nil, err
	}

	e.taskLogger(t).Info().
		Int64("estimated_tokens", t.EstimatedTokens).
		Str("complexity", t.Complexity.String()).
		Msg("task registered")

	return &domain.Decision{
		Status:          constants.DecisionRegistered,
		ProjectID:       t.ProjectID,
		TaskID:          t.ID,
		EstimatedTokens: t.EstimatedTokens,
	}, nil
}

// RecordProgress stores the tokens a running task has consumed so far. The
// next admission call compares it against the adaptive checkpoint threshold.
func (e *Engine) RecordProgress(ctx context.Context, taskID string, actual int64) (*domain.Task, error) {
	if actual < 0 {
		return nil, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "actual tokens must not be negative, got %d", actual)
	}

	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(task.ProjectID)
	defer unlock()

	// Re-read under the lock so a concurrent completion is not overwritten.
	if task, err = e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return nil, tgerrors.Wrapf(tgerrors.ErrTerminalTask, "task %s is %s", task.ID, task.Status)
	}
	task.ActualTokens = actual
	if err := e.updateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// TrackTaskExecution decides whether taskID may run now. The checks are
// strictly ordered and short-circuit:
//
//  1. budget: the estimate must fit the project's remaining budget, net of
//     the reservations of other admitted tasks
//  2. rate: the project's rate limiter must admit one more execution
//  3. checkpoint: a task past its adaptive threshold is asked to checkpoint
//
// A task passing all three is approved, moved to in_progress and its
// estimate is reserved until completion or failure. Failures are reported
// as an error decision, never as a returned error.
func (e *Engine) TrackTaskExecution(ctx context.Context, taskID string) *domain.Decision {
	if err := ctx.Err(); err != nil {
		return errorDecision("", taskID, err)
	}

	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return errorDecision("", taskID, err)
	}

	unlock := e.locks.lock(task.ProjectID)
	defer unlock()

	if task, err = e.getTask(ctx, taskID); err != nil {
		return errorDecision("", taskID, err)
	}
	if task.Status.IsTerminal() {
		return errorDecision(task.ProjectID, task.ID,
			tgerrors.Wrapf(tgerrors.ErrTerminalTask, "task %s is %s", task.ID, task.Status))
	}
	log := e.taskLogger(task)

	if d := e.checkBudget(ctx, task); d != nil {
		log.Warn().Str("reason", d.Reason).Int64("required", d.Required).Int64("available", d.Available).Msg("task blocked")
		return d
	}

	if !e.deps.Limiter.CanExecute(task.ProjectID) {
		if task.Status != constants.TaskStatusPaused {
			if err := transition(task, constants.TaskStatusPaused, e.now()); err != nil {
				return errorDecision(task.ProjectID, task.ID, err)
			}
			if err := e.updateTask(ctx, task); err != nil {
				return errorDecision(task.ProjectID, task.ID, err)
			}
		}
		e.ws.pause(task.ID, task.ProjectID, true)
		retry := e.deps.Limiter.RetryAfter(task.ProjectID)
		log.Info().Int("retry_after", retry).Msg("task rate limited")
		return &domain.Decision{
			Status:     constants.DecisionRateLimited,
			ProjectID:  task.ProjectID,
			TaskID:     task.ID,
			Reason:     "Project rate limit exceeded",
			RetryAfter: retry,
		}
	}

	if ShouldRequestCheckpoint(task) {
		if task.CheckpointState != constants.CheckpointRequested {
			task.CheckpointState = constants.CheckpointRequested
			if err := e.updateTask(ctx, task); err != nil {
				return errorDecision(task.ProjectID, task.ID, err)
			}
		}
		uri := e.deps.Checkpoints.PrepareURI(task)
		log.Info().Float64("progress", task.Progress()).Str("checkpoint_uri", uri).Msg("checkpoint requested")
		return &domain.Decision{
			Status:          constants.DecisionCheckpointRequested,
			ProjectID:       task.ProjectID,
			TaskID:          task.ID,
			Reason:          "Adaptive threshold reached",
			CheckpointURI:   uri,
			EstimatedTokens: task.EstimatedTokens,
		}
	}

	if task.Status != constants.TaskStatusInProgress {
		if err := transition(task, constants.TaskStatusInProgress, e.now()); err != nil {
			return errorDecision(task.ProjectID, task.ID, err)
		}
		if err := e.updateTask(ctx, task); err != nil {
			return errorDecision(task.ProjectID, task.ID, err)
		}
		e.openTracking(ctx, task)
	}
	e.ws.unpause(task.ID)
	e.ws.reserve(task.ProjectID, task.ID, task.EstimatedTokens)

	log.Debug().Int64("estimated_tokens", task.EstimatedTokens).Msg("task approved")
	return &domain.Decision{
		Status:          constants.DecisionApproved,
		ProjectID:       task.ProjectID,
		TaskID:          task.ID,
		EstimatedTokens: task.EstimatedTokens,
	}
}

// checkBudget returns a blocked decision when task does not fit, and nil otherwise.
func (e *Engine) checkBudget(ctx context.Context, task *domain.Task) *domain.Decision {
	blocked := func(reason string) *domain.Decision {
		return &domain.Decision{
			Status:    constants.DecisionBlocked,
			ProjectID: task.ProjectID,
			TaskID:    task.ID,
			Reason:    reason,
		}
	}

	project, err := e.getProject(ctx, task.ProjectID)
	if errors.Is(err, tgerrors.ErrProjectNotFound) {
		return blocked("Project not found")
	}
	if err != nil {
		return blocked(fmt.Sprintf("Budget check failed: %v", err))
	}

	used, err := e.usedTokens(ctx, task.ProjectID)
	if err != nil {
		return blocked(fmt.Sprintf("Budget check failed: %v", err))
	}

	remaining := project.TokenBudget - used - e.ws.reservedExcept(task.ProjectID, task.ID)
	if task.EstimatedTokens > remaining {
		d := blocked("Insufficient token budget")
		d.Recommendation = constants.RecommendIncreaseBudget
		d.Required = task.EstimatedTokens
		d.Available = remaining
		d.TokenBudget = project.TokenBudget
		return d
	}
	return nil
}

// CheckpointThreshold returns the progress ratio at which a task of the
// given complexity is asked to checkpoint.
func CheckpointThreshold(c constants.Complexity) float64 {
	switch c {
	case constants.ComplexityVeryComplex:
		return constants.CheckpointThresholdVeryComplex
	case constants.ComplexitySimple:
		return constants.CheckpointThresholdSimple
	default:
		return constants.CheckpointThresholdDefault
	}
}

// ShouldRequestCheckpoint reports whether task reached its adaptive
// threshold. Tasks without both an estimate and reported usage never do,
// and a task whose checkpoint is already saved is not asked again.
func ShouldRequestCheckpoint(task *domain.Task) bool {
	if task.EstimatedTokens <= 0 || task.ActualTokens <= 0 {
		return false
	}
	if task.CheckpointState == constants.CheckpointSaved {
		return false
	}
	return task.Progress() >= CheckpointThreshold(task.Complexity)
}

// openTracking starts an estimator record for an admitted task so its
// completion carries a real duration.
func (e *Engine) openTracking(ctx context.Context, task *domain.Task) {
	tr, err := e.deps.Estimator.TrackOperation(ctx, constants.OperationTaskExecution, map[string]any{
		usage.ContextProjectID:  task.ProjectID,
		usage.ContextTaskID:     task.ID,
		usage.ContextComplexity: task.Complexity.String(),
	}, task.EstimatedTokens)
	if err != nil {
		e.taskLogger(task).Warn().Err(err).Msg("failed to open operation tracking")
		return
	}
	e.ws.setTracking(task.ID, tr)
}
