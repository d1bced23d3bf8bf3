package governor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/ctxutil"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// Start runs the four monitor loops and blocks until all of them have
// exited, which happens after Stop or when ctx is canceled. It returns
// ErrMonitoringActive if the monitors are already running.
func (e *Engine) Start(ctx context.Context) error {
	e.monMu.Lock()
	if e.monitoring {
		e.monMu.Unlock()
		return tgerrors.ErrMonitoringActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.monRun++
	run := e.monRun
	e.monitoring = true
	e.cancel = cancel
	e.monMu.Unlock()

	defer func() {
		e.monMu.Lock()
		if e.monRun == run {
			e.monitoring = false
			e.cancel = nil
		}
		e.monMu.Unlock()
		cancel()
	}()

	e.logger.Info().
		Dur("usage_interval", e.intervals.Usage).
		Dur("progress_interval", e.intervals.Progress).
		Dur("checkpoint_interval", e.intervals.Checkpoint).
		Dur("release_interval", e.intervals.Release).
		Msg("monitoring started")

	var g errgroup.Group
	loops := []struct {
		name     string
		interval time.Duration
		body     func(context.Context) error
	}{
		{"usage", e.intervals.Usage, e.usageIteration},
		{"progress", e.intervals.Progress, e.progressIteration},
		{"checkpoint", e.intervals.Checkpoint, e.checkpointIteration},
		{"release", e.intervals.Release, e.releaseIteration},
	}
	for _, l := range loops {
		g.Go(func() error {
			e.runLoop(runCtx, l.name, l.interval, l.body)
			return nil
		})
	}
	err := g.Wait()

	e.logger.Info().Msg("monitoring stopped")
	return err
}

// Stop signals the monitor loops to exit at their next wake point.
func (e *Engine) Stop() {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	if !e.monitoring {
		return
	}
	e.monitoring = false
	if e.cancel != nil {
		e.cancel()
	}
}

// IsMonitoring reports whether the monitor loops are running.
func (e *Engine) IsMonitoring() bool {
	e.monMu.Lock()
	defer e.monMu.Unlock()
	return e.monitoring
}

// runLoop calls body every interval until ctx ends. Each iteration runs on a
// context that is not canceled by Stop, so a stop request takes effect
// between iterations and never in the middle of one. An iteration that
// fails or panics is logged and followed by the error backoff instead of
// the regular interval.
func (e *Engine) runLoop(ctx context.Context, name string, interval time.Duration, body func(context.Context) error) {
	log := e.logger.With().Str("loop", name).Logger()
	iterCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		wait := interval
		if err := e.safeIteration(iterCtx, name, body); err != nil {
			log.Error().Err(err).Dur("backoff", e.intervals.ErrorBackoff).Msg("monitor iteration failed")
			wait = e.intervals.ErrorBackoff
		}

		if ctxutil.Sleep(ctx, wait) != nil {
			log.Debug().Msg("monitor loop exiting")
			return
		}
	}
}

func (e *Engine) safeIteration(ctx context.Context, name string, body func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s loop panicked: %v", tgerrors.ErrMonitoring, name, r)
		}
	}()
	if err := body(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", tgerrors.ErrMonitoring, name, err)
	}
	return nil
}

// usageIteration re-evaluates budget alerts for every active project.
func (e *Engine) usageIteration(ctx context.Context) error {
	var errs []error
	for _, id := range e.ws.activeProjects() {
		if _, err := e.budgetAlerts(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// progressIteration reports in-progress tasks that look stalled. It only
// logs; no remediation is attempted.
func (e *Engine) progressIteration(ctx context.Context) error {
	stalled, err := e.StalledTasks(ctx)
	if err != nil {
		return err
	}
	now := e.now()
	for _, t := range stalled {
		e.taskLogger(t).Warn().
			Dur("running_for", taskAge(t, now)).
			Dur("stale_threshold", e.staleThreshold).
			Msg("task may be stalled")
	}
	return nil
}

// checkpointIteration materializes every requested checkpoint across the
// active projects, writing at most checkpointWorkers at a time. A failed
// checkpoint leaves the task requested for the next sweep.
func (e *Engine) checkpointIteration(ctx context.Context) error {
	var pending []*domain.Task
	var errs []error
	for _, id := range e.ws.activeProjects() {
		sctx, cancel := e.storeCtx(ctx)
		tasks, err := e.deps.Tasks.ListTasksByProject(sctx, id)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("project %s: %w", id, err))
			continue
		}
		for _, t := range tasks {
			if t.CheckpointState == constants.CheckpointRequested {
				pending = append(pending, t)
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(e.checkpointWorkers)
	for _, t := range pending {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					e.taskLogger(t).Error().Interface("panic", r).Msg("checkpoint worker panicked, sweep will retry")
				}
			}()
			if _, err := e.materialize(ctx, t); err != nil {
				e.taskLogger(t).Warn().Err(err).Msg("checkpoint sweep will retry")
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(pending) > 0 {
		e.logger.Debug().Int("requested", len(pending)).Msg("checkpoint sweep finished")
	}
	return errors.Join(errs...)
}

// CreateCheckpoint writes a checkpoint for taskID now, whatever its
// checkpoint state, and records it on the task.
func (e *Engine) CreateCheckpoint(ctx context.Context, taskID string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	task, err := e.getTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.materialize(ctx, task)
}

// materialize writes the artifact without holding any lock, then stores the
// saved state under the project lock on a fresh copy of the task.
func (e *Engine) materialize(ctx context.Context, snapshot *domain.Task) (*domain.Checkpoint, error) {
	cp, ok := e.deps.Checkpoints.CreateCheckpoint(ctx, snapshot.Clone())
	if !ok {
		return nil, tgerrors.Wrapf(tgerrors.ErrCheckpointFailed, "task %s", snapshot.ID)
	}

	unlock := e.locks.lock(snapshot.ProjectID)
	defer unlock()

	task, err := e.getTask(ctx, snapshot.ID)
	if err != nil {
		return nil, err
	}
	task.CheckpointState = constants.CheckpointSaved
	task.CheckpointURI = cp.URI
	if err := e.updateTask(ctx, task); err != nil {
		return nil, err
	}

	if e.recorder != nil {
		sctx, cancel := e.storeCtx(ctx)
		err := e.recorder.RecordCheckpoint(sctx, cp)
		cancel()
		if err != nil {
			e.taskLogger(task).Warn().Err(err).Str("checkpoint_uri", cp.URI).Msg("failed to index checkpoint")
		}
	}

	e.taskLogger(task).Info().Str("checkpoint_uri", cp.URI).Int64("size_bytes", cp.SizeBytes).Msg("checkpoint saved")
	return cp, nil
}

// releaseIteration returns rate-limited tasks to pending once their
// project's window has room again. The window is only peeked, so at most one
// task per project is released per sweep; the rest wait for the next sweep
// to see whether the released task took the free slot.
func (e *Engine) releaseIteration(ctx context.Context) error {
	var errs []error
	released := 0
	done := make(map[string]bool)
	for _, id := range e.ws.rateLimited() {
		projectID, _ := e.ws.pausedProject(id)
		if done[projectID] {
			continue
		}
		ok, err := e.releaseTask(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		if ok {
			released++
			done[projectID] = true
		}
	}
	if released > 0 {
		e.logger.Info().Int("released", released).Msg("resumed rate-limited tasks")
	}
	return errors.Join(errs...)
}

func (e *Engine) releaseTask(ctx context.Context, taskID string) (bool, error) {
	task, err := e.getTask(ctx, taskID)
	if isNotFound(err) {
		e.ws.unpause(taskID)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	unlock := e.locks.lock(task.ProjectID)
	defer unlock()

	if task, err = e.getTask(ctx, taskID); err != nil {
		return false, err
	}
	if task.Status != constants.TaskStatusPaused {
		e.ws.unpause(taskID)
		return false, nil
	}
	if e.deps.Limiter.IsRateLimited(task.ProjectID) {
		return false, nil
	}

	if err := transition(task, constants.TaskStatusPending, e.now()); err != nil {
		return false, err
	}
	if err := e.updateTask(ctx, task); err != nil {
		return false, err
	}
	e.ws.unpause(taskID)
	return true, nil
}
