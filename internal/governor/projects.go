package governor

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// GenerateProjectID returns a new project id of the form proj-xxxxxxxx.
func GenerateProjectID() string {
	return "proj-" + uuid.New().String()[:8]
}

// RegisterProject stores p and adds it to the monitored set. An empty id is
// generated and an empty tier defaults to the low tier.
func (e *Engine) RegisterProject(ctx context.Context, p *domain.Project) (*domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, tgerrors.Wrap(tgerrors.ErrInvalidProject, "project is nil")
	}

	if p.ID == "" {
		p.ID = GenerateProjectID()
	}
	if p.PriorityTier == "" {
		p.PriorityTier = constants.PriorityLow
	}
	now := e.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.deps.Projects.CreateProject(sctx, p); err != nil {
		return nil, err
	}
	e.ws.activate(p.ID)

	e.logger.Info().
		Str("project_id", p.ID).
		Int64("token_budget", p.TokenBudget).
		Str("priority_tier", p.PriorityTier.String()).
		Msg("project registered")

	return &domain.Decision{
		Status:      constants.DecisionRegistered,
		ProjectID:   p.ID,
		TokenBudget: p.TokenBudget,
	}, nil
}

// ProjectUpdate carries the fields an owner may change. Nil fields are kept.
type ProjectUpdate struct {
	Name         *string
	Description  *string
	TokenBudget  *int64
	PriorityTier *constants.PriorityTier
}

// UpdateProject applies upd to the project if requester owns it.
func (e *Engine) UpdateProject(ctx context.Context, requester, projectID string, upd ProjectUpdate) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock := e.locks.lock(projectID)
	defer unlock()

	p, err := e.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !p.CanBeModifiedBy(requester) {
		return nil, tgerrors.Wrapf(tgerrors.ErrUnauthorized, "%q cannot modify project %s", requester, projectID)
	}

	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.TokenBudget != nil {
		p.TokenBudget = *upd.TokenBudget
	}
	if upd.PriorityTier != nil {
		p.PriorityTier = *upd.PriorityTier
	}
	p.UpdatedAt = e.now()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.deps.Projects.UpdateProject(sctx, p); err != nil {
		return nil, err
	}

	e.logger.Info().Str("project_id", p.ID).Str("requester", requester).Msg("project updated")
	return p, nil
}

// ActivateProject adds an existing project to the monitored set.
func (e *Engine) ActivateProject(ctx context.Context, projectID string) error {
	if _, err := e.getProject(ctx, projectID); err != nil {
		return err
	}
	e.ws.activate(projectID)
	return nil
}

// DeactivateProject removes a project from the monitored set. Admission is
// unaffected.
func (e *Engine) DeactivateProject(projectID string) {
	e.ws.deactivate(projectID)
}

// IsActive reports whether the monitors watch projectID.
func (e *Engine) IsActive(projectID string) bool {
	return e.ws.isActive(projectID)
}

// ActiveProjects returns the monitored project ids in sorted order.
func (e *Engine) ActiveProjects() []string {
	return e.ws.activeProjects()
}

// ActivateAll rebuilds the working set from the stores after a restart:
// every project becomes active, in-progress tasks get their budget
// reservations back, and paused tasks rejoin the paused set as
// rate-limited. It returns the number of projects activated.
func (e *Engine) ActivateAll(ctx context.Context) (int, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	projects, err := e.deps.Projects.ListProjects(sctx)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		e.ws.activate(p.ID)
	}

	running, err := e.deps.Tasks.ListTasksByStatus(sctx, constants.TaskStatusInProgress)
	if err != nil {
		return len(projects), err
	}
	for _, t := range running {
		e.ws.reserve(t.ProjectID, t.ID, t.EstimatedTokens)
	}

	paused, err := e.deps.Tasks.ListTasksByStatus(sctx, constants.TaskStatusPaused)
	if err != nil {
		return len(projects), err
	}
	for _, t := range paused {
		e.ws.pause(t.ID, t.ProjectID, true)
	}

	e.logger.Info().
		Int("projects", len(projects)).
		Int("in_progress", len(running)).
		Int("paused", len(paused)).
		Msg("working set restored")
	return len(projects), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, tgerrors.ErrProjectNotFound) || errors.Is(err, tgerrors.ErrTaskNotFound)
}
