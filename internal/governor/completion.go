package governor

import (
	"context"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/usage"
)

// HandleTaskCompletion marks taskID completed with actual tokens consumed,
// appends a task_completion usage record, releases the task's budget
// reservation and evaluates the project's budget alerts.
//
// Efficiency is estimated/actual, so a task that used half its estimate
// reports 2.0. It is 1.0 when actual is zero.
func (e *Engine) HandleTaskCompletion(ctx context.Context, taskID string, actual int64) *domain.CompletionResult {
	task, alerts, err := e.finish(ctx, taskID, actual, constants.TaskStatusCompleted, "")
	if err != nil {
		return &domain.CompletionResult{Status: constants.DecisionError, TaskID: taskID, Error: err.Error()}
	}

	efficiency := 1.0
	if actual > 0 {
		efficiency = float64(task.EstimatedTokens) / float64(actual)
	}

	e.taskLogger(task).Info().
		Int64("tokens_used", actual).
		Float64("efficiency", efficiency).
		Int("alerts", len(alerts)).
		Msg("task completed")

	return &domain.CompletionResult{
		Status:     constants.DecisionCompleted,
		TaskID:     task.ID,
		TokensUsed: actual,
		Efficiency: efficiency,
		Alerts:     alerts,
	}
}

// HandleTaskFailure marks taskID failed. Tokens consumed before the failure
// are still charged to the project.
func (e *Engine) HandleTaskFailure(ctx context.Context, taskID string, actual int64, errText string) *domain.CompletionResult {
	task, alerts, err := e.finish(ctx, taskID, actual, constants.TaskStatusFailed, errText)
	if err != nil {
		return &domain.CompletionResult{Status: constants.DecisionError, TaskID: taskID, Error: err.Error()}
	}

	e.taskLogger(task).Warn().Int64("tokens_used", actual).Str("error", errText).Msg("task failed")

	return &domain.CompletionResult{
		Status:     constants.DecisionFailed,
		TaskID:     task.ID,
		TokensUsed: actual,
		Efficiency: usage.Efficiency(task.EstimatedTokens, actual),
		Alerts:     alerts,
		Error:      errText,
	}
}

func (e *Engine) finish(ctx context.Context, taskID string, actual int64, to constants.TaskStatus, errText string) (*domain.Task, []domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if actual < 0 {
		return nil, nil, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "actual tokens must not be negative, got %d", actual)
	}

	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}

	task, err = e.finishLocked(ctx, taskID, task.ProjectID, actual, to, errText)
	if err != nil {
		return nil, nil, err
	}

	e.recordOperation(ctx, task, actual, to == constants.TaskStatusCompleted, errText)
	return task, e.CheckBudgetAlerts(ctx, task.ProjectID), nil
}

func (e *Engine) finishLocked(ctx context.Context, taskID, projectID string, actual int64, to constants.TaskStatus, errText string) (*domain.Task, error) {
	unlock := e.locks.lock(projectID)
	defer unlock()

	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	prev := task.Clone()
	now := e.now()
	if err := transition(task, to, now); err != nil {
		return nil, err
	}
	task.ActualTokens = actual
	task.ErrorMessage = errText

	opType := constants.OperationTaskCompletion
	if to == constants.TaskStatusFailed {
		opType = constants.OperationTaskFailure
	}
	rec := &domain.UsageRecord{
		ProjectID:     task.ProjectID,
		TaskID:        task.ID,
		AgentID:       task.ParentAgentID,
		TokensUsed:    actual,
		OperationType: opType,
		Timestamp:     now,
		Metadata: map[string]any{
			"task_name":        task.Name,
			"complexity":       task.Complexity.String(),
			"estimated_tokens": task.EstimatedTokens,
		},
	}
	if err := e.storeFinished(ctx, prev, task, rec); err != nil {
		return nil, err
	}

	e.ws.release(task.ProjectID, task.ID)
	e.ws.unpause(task.ID)
	return task, nil
}

// storeFinished persists the terminal task and its usage record. Stores
// implementing TaskFinisher do both atomically. Otherwise a failed append
// puts prev back, so the task stays unfinished and the caller can retry.
func (e *Engine) storeFinished(ctx context.Context, prev, task *domain.Task, rec *domain.UsageRecord) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if f, ok := e.deps.Tasks.(TaskFinisher); ok {
		return f.FinishTask(sctx, task, rec)
	}
	if err := e.deps.Tasks.UpdateTask(sctx, task); err != nil {
		return err
	}
	if err := e.deps.Usage.AppendUsage(sctx, rec); err != nil {
		if rerr := e.deps.Tasks.UpdateTask(sctx, prev); rerr != nil {
			e.taskLogger(task).Error().Err(rerr).Msg("failed to restore task after usage append failed")
		}
		return err
	}
	return nil
}

// recordOperation closes the estimator record for task. Estimator failures
// are logged and never fail the completion.
func (e *Engine) recordOperation(ctx context.Context, task *domain.Task, actual int64, success bool, errText string) {
	log := e.taskLogger(task)

	tr := e.ws.takeTracking(task.ID)
	if tr == nil {
		var err error
		tr, err = e.deps.Estimator.TrackOperation(ctx, constants.OperationTaskExecution, map[string]any{
			usage.ContextProjectID:  task.ProjectID,
			usage.ContextTaskID:     task.ID,
			usage.ContextComplexity: task.Complexity.String(),
		}, task.EstimatedTokens)
		if err != nil {
			log.Warn().Err(err).Msg("failed to record operation")
			return
		}
	}
	if _, err := e.deps.Estimator.CompleteOperation(ctx, tr, actual, success, errText); err != nil {
		log.Warn().Err(err).Msg("failed to record operation")
	}
}

// PauseTask pauses a pending or in-progress task on operator request. Unlike
// a rate-limit pause, the release monitor leaves it alone until ResumeTask.
func (e *Engine) PauseTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := e.mutateTask(ctx, taskID, func(task *domain.Task) error {
		if task.Status == constants.TaskStatusPaused {
			return tgerrors.Wrapf(tgerrors.ErrInvalidTransition, "task %s is already paused", task.ID)
		}
		return transition(task, constants.TaskStatusPaused, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.ws.release(task.ProjectID, task.ID)
	e.ws.pause(task.ID, task.ProjectID, false)
	e.taskLogger(task).Info().Msg("task paused")
	return task, nil
}

// ResumeTask returns a paused task to pending so it can be admitted again.
func (e *Engine) ResumeTask(ctx context.Context, taskID string) (*domain.Task, error) {
	task, err := e.mutateTask(ctx, taskID, func(task *domain.Task) error {
		if task.Status != constants.TaskStatusPaused {
			return tgerrors.Wrapf(tgerrors.ErrTaskNotPaused, "task %s is %s", task.ID, task.Status)
		}
		return transition(task, constants.TaskStatusPending, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.ws.unpause(task.ID)
	e.taskLogger(task).Info().Msg("task resumed")
	return task, nil
}

// mutateTask applies fn to a fresh copy of taskID under its project lock and
// persists the result.
func (e *Engine) mutateTask(ctx context.Context, taskID string, fn func(*domain.Task) error) (*domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.lock(task.ProjectID)
	defer unlock()

	if task, err = e.getTask(ctx, taskID); err != nil {
		return nil, err
	}
	if err := fn(task); err != nil {
		return nil, err
	}
	if err := e.updateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}
