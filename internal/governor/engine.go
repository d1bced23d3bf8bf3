// Package governor is the governance engine. It decides for each task
// whether it may proceed, must pause, or must checkpoint, and runs the
// background monitors that keep budgets, stalled tasks, requested
// checkpoints and rate-limited tasks under watch.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, internal/config,
//     internal/clock, internal/ctxutil, internal/usage, std lib
//   - MUST NOT import: internal/cli, internal/mcpserver, internal/store
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/clock"
	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	tgerrors "github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/usage"
)

// ProjectStore persists projects.
type ProjectStore interface {
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	CreateProject(ctx context.Context, p *domain.Project) error
	UpdateProject(ctx context.Context, p *domain.Project) error
	ListProjects(ctx context.Context) ([]*domain.Project, error)
}

// TaskStore persists tasks.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, t *domain.Task) error
	UpdateTask(ctx context.Context, t *domain.Task) error
	ListTasksByProject(ctx context.Context, projectID string) ([]*domain.Task, error)
	ListTasksByStatus(ctx context.Context, status constants.TaskStatus) ([]*domain.Task, error)
}

// TaskFinisher is an optional TaskStore capability: it stores a finished
// task and its usage record in one transaction.
type TaskFinisher interface {
	FinishTask(ctx context.Context, t *domain.Task, r *domain.UsageRecord) error
}

// UsageLedger is the append-only record of consumed tokens.
type UsageLedger interface {
	AppendUsage(ctx context.Context, r *domain.UsageRecord) error
	SumForProject(ctx context.Context, projectID string) (int64, error)
}

// RateLimiter admits a bounded number of executions per project per window.
type RateLimiter interface {
	CanExecute(projectID string) bool
	RetryAfter(projectID string) int
	IsRateLimited(projectID string) bool
}

// Checkpointer writes checkpoint artifacts.
type Checkpointer interface {
	PrepareURI(task *domain.Task) string
	CreateCheckpoint(ctx context.Context, task *domain.Task) (*domain.Checkpoint, bool)
}

// UsageEstimator predicts token costs and records finished operations.
type UsageEstimator interface {
	Estimate(ctx context.Context, opType string, opCtx map[string]any) int64
	TrackOperation(ctx context.Context, opType string, opCtx map[string]any, estimated int64) (*usage.Tracking, error)
	CompleteOperation(ctx context.Context, tr *usage.Tracking, actual int64, success bool, errText string) (*domain.OperationRecord, error)
	AnalyzeEfficiency(ctx context.Context, projectID string) (domain.EfficiencyReport, error)
}

// CheckpointRecorder keeps a queryable index of written checkpoints.
type CheckpointRecorder interface {
	RecordCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
}

// AlertHandler receives every budget alert the engine raises.
type AlertHandler func(ctx context.Context, alert domain.Alert)

// Deps are the collaborators an Engine needs. All fields are required.
type Deps struct {
	Projects    ProjectStore
	Tasks       TaskStore
	Usage       UsageLedger
	Limiter     RateLimiter
	Checkpoints Checkpointer
	Estimator   UsageEstimator
}

func (d Deps) validate() error {
	switch {
	case d.Projects == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "project store is required")
	case d.Tasks == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "task store is required")
	case d.Usage == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "usage ledger is required")
	case d.Limiter == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "rate limiter is required")
	case d.Checkpoints == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "checkpointer is required")
	case d.Estimator == nil:
		return tgerrors.Wrap(tgerrors.ErrInvalidArgument, "usage estimator is required")
	}
	return nil
}

// Intervals controls the monitor loops.
type Intervals struct {
	Usage        time.Duration
	Progress     time.Duration
	Checkpoint   time.Duration
	Release      time.Duration
	ErrorBackoff time.Duration
}

// DefaultIntervals returns the production monitor schedule.
func DefaultIntervals() Intervals {
	return Intervals{
		Usage:        constants.DefaultUsageInterval,
		Progress:     constants.DefaultProgressInterval,
		Checkpoint:   constants.DefaultCheckpointInterval,
		Release:      constants.DefaultReleaseInterval,
		ErrorBackoff: constants.DefaultErrorBackoff,
	}
}

// Engine is the governance engine. Create one with New.
type Engine struct {
	deps     Deps
	clock    clock.Clock
	logger   zerolog.Logger
	recorder CheckpointRecorder
	onAlert  AlertHandler

	intervals         Intervals
	staleThreshold    time.Duration
	checkpointWorkers int
	storeTimeout      time.Duration

	thresholdMu sync.RWMutex
	warning     float64
	critical    float64

	ws    *workingSet
	locks projectLocks

	monMu      sync.Mutex
	monitoring bool
	cancel     context.CancelFunc
	// monRun identifies the current Start call so a finishing earlier run
	// never clears the state of a newer one.
	monRun uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("component", "governor").Logger()
	}
}

// WithThresholds sets the warning and critical usage ratios. Invalid pairs
// are rejected by New.
func WithThresholds(warning, critical float64) Option {
	return func(e *Engine) {
		e.warning = warning
		e.critical = critical
	}
}

// WithIntervals sets the monitor schedule. Zero fields keep their defaults.
func WithIntervals(iv Intervals) Option {
	return func(e *Engine) {
		if iv.Usage > 0 {
			e.intervals.Usage = iv.Usage
		}
		if iv.Progress > 0 {
			e.intervals.Progress = iv.Progress
		}
		if iv.Checkpoint > 0 {
			e.intervals.Checkpoint = iv.Checkpoint
		}
		if iv.Release > 0 {
			e.intervals.Release = iv.Release
		}
		if iv.ErrorBackoff > 0 {
			e.intervals.ErrorBackoff = iv.ErrorBackoff
		}
	}
}

// WithStaleThreshold sets the age after which an in-progress task is reported as stalled.
func WithStaleThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleThreshold = d
		}
	}
}

// WithCheckpointWorkers bounds concurrent checkpoint writes in one sweep.
func WithCheckpointWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.checkpointWorkers = n
		}
	}
}

// WithStoreTimeout bounds every call into a store.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithAlertHandler registers a callback for raised alerts.
func WithAlertHandler(h AlertHandler) Option {
	return func(e *Engine) {
		e.onAlert = h
	}
}

// WithCheckpointRecorder indexes every checkpoint the engine writes.
func WithCheckpointRecorder(r CheckpointRecorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// ConfigOptions translates the governor and storage sections of cfg into options.
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	g := cfg.Governor
	return []Option{
		WithThresholds(g.WarningThreshold, g.CriticalThreshold),
		WithIntervals(Intervals{
			Usage:        g.UsageInterval,
			Progress:     g.ProgressInterval,
			Checkpoint:   g.CheckpointInterval,
			Release:      g.ReleaseInterval,
			ErrorBackoff: g.ErrorBackoff,
		}),
		WithStaleThreshold(g.StaleThreshold),
		WithCheckpointWorkers(g.CheckpointWorkers),
		WithStoreTimeout(cfg.Storage.Timeout),
	}
}

// New creates an engine over deps.
func New(deps Deps, opts ...Option) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		deps:              deps,
		clock:             clock.RealClock{},
		logger:            zerolog.Nop(),
		intervals:         DefaultIntervals(),
		staleThreshold:    constants.DefaultStaleThreshold,
		checkpointWorkers: constants.DefaultCheckpointWorkers,
		storeTimeout:      constants.DefaultStoreTimeout,
		warning:           constants.DefaultWarningThreshold,
		critical:          constants.DefaultCriticalThreshold,
		ws:                newWorkingSet(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := config.ValidateThresholds(e.warning, e.critical); err != nil {
		return nil, err
	}
	return e, nil
}

// storeCtx bounds one store call.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.storeTimeout)
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

func (e *Engine) getProject(ctx context.Context, id string) (*domain.Project, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.deps.Projects.GetProject(sctx, id)
}

func (e *Engine) getTask(ctx context.Context, id string) (*domain.Task, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.deps.Tasks.GetTask(sctx, id)
}

func (e *Engine) updateTask(ctx context.Context, t *domain.Task) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.deps.Tasks.UpdateTask(sctx, t)
}

func (e *Engine) usedTokens(ctx context.Context, projectID string) (int64, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.deps.Usage.SumForProject(sctx, projectID)
}

// taskLogger returns a logger scoped to task. Callers chain on it directly.
func (e *Engine) taskLogger(task *domain.Task) *zerolog.Logger {
	l := e.logger.With().Str("project_id", task.ProjectID).Str("task_id", task.ID).Logger()
	return &l
}

func errorDecision(projectID, taskID string, err error) *domain.Decision {
	return &domain.Decision{
		Status:    constants.DecisionError,
		ProjectID: projectID,
		TaskID:    taskID,
		Error:     err.Error(),
	}
}
