package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/checkpoint"
	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/governor"
	"github.com/mrz1836/tokengov/internal/ratelimit"
	"github.com/mrz1836/tokengov/internal/store/sqlite"
	"github.com/mrz1836/tokengov/internal/usage"
)

// app is the fully wired engine with its collaborators.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	store       *sqlite.Store
	limiter     *ratelimit.Limiter
	estimator   *usage.Estimator
	checkpoints *checkpoint.Manager
	engine      *governor.Engine

	closers []io.Closer
}

// openApp opens the stores named by the session config and builds the engine.
// The working set is restored from the database before it returns.
func (s *session) openApp(ctx context.Context) (*app, error) {
	cfg := s.cfg
	logger := s.Logger()
	a := &app{cfg: cfg, logger: logger}

	store, err := sqlite.Open(ctx, cfg.Storage.DatabasePath, sqlite.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store)

	backend, backendCloser, err := checkpoint.OpenStore(ctx, &cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, backendCloser)
	a.checkpoints = checkpoint.NewManager(backend, checkpoint.WithLogger(logger))

	oplog, err := usage.NewFileLog(cfg.Estimator.LogPath, logger, usage.WithLogLockTimeout(cfg.Storage.LockTimeout))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.estimator = usage.New(oplog,
		usage.WithLogger(logger),
		usage.WithWindows(cfg.Estimator.HistoryDays, cfg.Estimator.EfficiencyDays),
	)

	a.limiter = ratelimit.New(
		ratelimit.WithLogger(logger),
		ratelimit.WithDefaultLimit(cfg.Governor.DefaultRateLimit),
		ratelimit.WithOverrides(cfg.Governor.ProjectRateLimits),
	)

	opts := append(governor.ConfigOptions(cfg),
		governor.WithLogger(logger),
		governor.WithCheckpointRecorder(store),
		governor.WithAlertHandler(logAlert(logger)),
	)
	engine, err := governor.New(governor.Deps{
		Projects:    store,
		Tasks:       store,
		Usage:       store,
		Limiter:     a.limiter,
		Checkpoints: a.checkpoints,
		Estimator:   a.estimator,
	}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	if _, err := engine.ActivateAll(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases every opened resource in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close resource")
		}
	}
	a.closers = nil
}

// applyConfig pushes the live-tunable settings of a reloaded config into the
// running engine and limiter.
func (a *app) applyConfig(cfg *config.Config) {
	g := cfg.Governor
	if err := a.engine.SetThresholds(g.WarningThreshold, g.CriticalThreshold); err != nil {
		a.logger.Warn().Err(err).Msg("ignoring reloaded thresholds")
	}
	a.limiter.SetDefaultLimit(g.DefaultRateLimit)
	for projectID, n := range g.ProjectRateLimits {
		a.limiter.SetRateLimit(projectID, n)
	}
}

func logAlert(logger zerolog.Logger) governor.AlertHandler {
	return func(_ context.Context, alert domain.Alert) {
		event := logger.Warn()
		if alert.Level == constants.AlertCritical {
			event = logger.Error()
		}
		event.
			Str("project_id", alert.ProjectID).
			Str("level", alert.Level.String()).
			Float64("usage_ratio", alert.UsageRatio).
			Str("recommendation", alert.Recommendation).
			Msg(alert.Message)
	}
}
