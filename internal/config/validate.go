package config

import (
	"fmt"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
//
// Validation rules:
//   - default budget must be positive
//   - thresholds must be in (0,1] with warning below critical
//   - rate limits, intervals and worker counts must be positive
//   - the checkpoint backend must be "file" or "redis", and redis needs a URL
//   - estimator windows must be positive
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.ErrConfigNil
	}

	if cfg.DefaultBudget <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidGovernor,
			"default_budget must be positive, got %d", cfg.DefaultBudget)
	}

	if err := validateGovernorConfig(&cfg.Governor); err != nil {
		return err
	}

	if err := validateStorageConfig(&cfg.Storage); err != nil {
		return err
	}

	return validateEstimatorConfig(&cfg.Estimator)
}

// ValidateThresholds checks a warning/critical pair.
func ValidateThresholds(warning, critical float64) error {
	if warning <= 0 || warning > 1 || critical <= 0 || critical > 1 {
		return errors.Wrapf(errors.ErrInvalidThresholds,
			"thresholds must be in (0,1], got warning=%.2f critical=%.2f", warning, critical)
	}
	if warning >= critical {
		return errors.Wrapf(errors.ErrInvalidThresholds,
			"warning threshold %.2f must be below critical threshold %.2f", warning, critical)
	}
	return nil
}

func validateGovernorConfig(cfg *GovernorConfig) error {
	if err := ValidateThresholds(cfg.WarningThreshold, cfg.CriticalThreshold); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalidGovernor, err)
	}

	if cfg.DefaultRateLimit < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidGovernor,
			"governor.default_rate_limit must be at least 1, got %d", cfg.DefaultRateLimit)
	}
	for project, limit := range cfg.ProjectRateLimits {
		if limit < 1 {
			return errors.Wrapf(errors.ErrConfigInvalidGovernor,
				"governor.project_rate_limits.%s must be at least 1, got %d", project, limit)
		}
	}

	intervals := map[string]int64{
		"usage_interval":      int64(cfg.UsageInterval),
		"progress_interval":   int64(cfg.ProgressInterval),
		"checkpoint_interval": int64(cfg.CheckpointInterval),
		"release_interval":    int64(cfg.ReleaseInterval),
		"error_backoff":       int64(cfg.ErrorBackoff),
		"stale_threshold":     int64(cfg.StaleThreshold),
	}
	for name, d := range intervals {
		if d <= 0 {
			return errors.Wrapf(errors.ErrConfigInvalidGovernor, "governor.%s must be positive", name)
		}
	}

	if cfg.CheckpointWorkers < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidGovernor,
			"governor.checkpoint_workers must be at least 1, got %d", cfg.CheckpointWorkers)
	}
	return nil
}

func validateStorageConfig(cfg *StorageConfig) error {
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidStorage,
			"storage.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.LockTimeout <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalidStorage,
			"storage.lock_timeout must be positive, got %s", cfg.LockTimeout)
	}

	switch cfg.CheckpointBackend {
	case constants.CheckpointBackendFile:
	case constants.CheckpointBackendRedis:
		if cfg.RedisURL == "" {
			return errors.Wrap(errors.ErrConfigInvalidStorage,
				"storage.redis_url is required when storage.checkpoint_backend is redis")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalidStorage,
			"storage.checkpoint_backend must be %q or %q, got %q",
			constants.CheckpointBackendFile, constants.CheckpointBackendRedis, cfg.CheckpointBackend)
	}
	return nil
}

func validateEstimatorConfig(cfg *EstimatorConfig) error {
	if cfg.HistoryDays < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidEstimator,
			"estimator.history_days must be at least 1, got %d", cfg.HistoryDays)
	}
	if cfg.EfficiencyDays < 1 {
		return errors.Wrapf(errors.ErrConfigInvalidEstimator,
			"estimator.efficiency_days must be at least 1, got %d", cfg.EfficiencyDays)
	}
	return nil
}
