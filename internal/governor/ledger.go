package governor

import (
	"context"

	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// RecordUsage charges tokens spent outside the task lifecycle to a project,
// such as a planning call or a tool run. The record is stamped with the
// engine clock and the project's budget alerts are evaluated afterwards.
func (e *Engine) RecordUsage(ctx context.Context, rec *domain.UsageRecord) (*domain.UsageRecord, []domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if rec == nil || rec.ProjectID == "" {
		return nil, nil, tgerrors.Wrap(tgerrors.ErrInvalidArgument, "project id is required")
	}
	if rec.OperationType == "" {
		return nil, nil, tgerrors.Wrap(tgerrors.ErrInvalidArgument, "operation type is required")
	}
	if rec.TokensUsed < 0 {
		return nil, nil, tgerrors.Wrapf(tgerrors.ErrInvalidArgument, "tokens used must not be negative, got %d", rec.TokensUsed)
	}

	out := *rec
	out.Timestamp = e.now()

	if err := e.appendUsage(ctx, &out); err != nil {
		return nil, nil, err
	}

	e.logger.Info().
		Str("project_id", out.ProjectID).
		Str("task_id", out.TaskID).
		Str("operation", out.OperationType).
		Int64("tokens_used", out.TokensUsed).
		Msg("usage recorded")

	return &out, e.CheckBudgetAlerts(ctx, out.ProjectID), nil
}

func (e *Engine) appendUsage(ctx context.Context, rec *domain.UsageRecord) error {
	unlock := e.locks.lock(rec.ProjectID)
	defer unlock()

	if _, err := e.getProject(ctx, rec.ProjectID); err != nil {
		return err
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.deps.Usage.AppendUsage(sctx, rec)
}
