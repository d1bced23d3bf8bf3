package governor

import (
	"context"
	"time"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// GetProjectStatus reports budget consumption, task counts, estimate
// efficiency and monitoring state for projectID.
func (e *Engine) GetProjectStatus(ctx context.Context, projectID string) (*domain.ProjectStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	project, err := e.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	used, err := e.usedTokens(ctx, projectID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	tasks, err := e.deps.Tasks.ListTasksByProject(sctx, projectID)
	cancel()
	if err != nil {
		return nil, err
	}

	ratio := float64(used) / float64(project.TokenBudget)
	status := &domain.ProjectStatus{
		ProjectID: project.ID,
		Name:      project.Name,
		Active:    e.ws.isActive(project.ID),
		Budget: domain.BudgetStatus{
			Total:      project.TokenBudget,
			Used:       used,
			Remaining:  max(0, project.TokenBudget-used),
			Percentage: ratio * 100,
			AlertLevel: e.AlertLevelFor(ratio),
		},
		Tasks: countTasks(tasks),
		Monitoring: domain.MonitoringStatus{
			Active:      e.ws.isActive(project.ID),
			PausedTasks: e.ws.pausedCount(project.ID),
			RateLimited: e.deps.Limiter.IsRateLimited(project.ID),
		},
	}

	report, err := e.deps.Estimator.AnalyzeEfficiency(ctx, projectID)
	if err != nil {
		e.logger.Warn().Err(err).Str("project_id", projectID).Msg("efficiency analysis failed")
		report = domain.EfficiencyReport{Status: constants.EfficiencyNoData, ProjectID: projectID}
	}
	status.Efficiency = report

	return status, nil
}

func countTasks(tasks []*domain.Task) domain.TaskStats {
	stats := domain.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case constants.TaskStatusPending:
			stats.Pending++
		case constants.TaskStatusInProgress:
			stats.InProgress++
		case constants.TaskStatusCompleted:
			stats.Completed++
		case constants.TaskStatusFailed:
			stats.Failed++
		case constants.TaskStatusPaused:
			stats.Paused++
		}
	}
	return stats
}

// StalledTasks returns in-progress tasks of active projects that started
// longer ago than the stale threshold.
func (e *Engine) StalledTasks(ctx context.Context) ([]*domain.Task, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	running, err := e.deps.Tasks.ListTasksByStatus(sctx, constants.TaskStatusInProgress)
	if err != nil {
		return nil, err
	}

	cutoff := e.now().Add(-e.staleThreshold)
	var stalled []*domain.Task
	for _, t := range running {
		if !e.ws.isActive(t.ProjectID) || t.StartedAt == nil {
			continue
		}
		if t.StartedAt.Before(cutoff) {
			stalled = append(stalled, t)
		}
	}
	return stalled, nil
}

// taskAge is how long task has been running at now.
func taskAge(task *domain.Task, now time.Time) time.Duration {
	if task.StartedAt == nil {
		return 0
	}
	return now.Sub(*task.StartedAt)
}
