package config

import (
	"github.com/spf13/viper"

	"github.com/mrz1836/tokengov/internal/constants"
)

// DefaultConfig returns a new Config with default values.
// These defaults are the base layer that config files, environment
// variables, and CLI flags override.
func DefaultConfig() *Config {
	return &Config{
		DefaultBudget: constants.DefaultTokenBudget,
		Governor: GovernorConfig{
			WarningThreshold:   constants.DefaultWarningThreshold,
			CriticalThreshold:  constants.DefaultCriticalThreshold,
			DefaultRateLimit:   constants.DefaultRateLimit,
			UsageInterval:      constants.DefaultUsageInterval,
			ProgressInterval:   constants.DefaultProgressInterval,
			CheckpointInterval: constants.DefaultCheckpointInterval,
			ReleaseInterval:    constants.DefaultReleaseInterval,
			ErrorBackoff:       constants.DefaultErrorBackoff,
			StaleThreshold:     constants.DefaultStaleThreshold,
			CheckpointWorkers:  constants.DefaultCheckpointWorkers,
		},
		Storage: StorageConfig{
			Timeout:           constants.DefaultStoreTimeout,
			CheckpointBackend: constants.CheckpointBackendFile,
			LockTimeout:       constants.DefaultLockTimeout,
		},
		Estimator: EstimatorConfig{
			HistoryDays:    constants.DefaultHistoryDays,
			EfficiencyDays: constants.DefaultEfficiencyDays,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  constants.LogMaxSizeMB,
			MaxBackups: constants.LogMaxBackups,
		},
	}
}

// setDefaults configures all default values on the Viper instance.
// These defaults match the values from DefaultConfig().
// IMPORTANT: Keys must match the YAML tag names exactly for proper mapping.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("default_budget", d.DefaultBudget)

	v.SetDefault("governor.warning_threshold", d.Governor.WarningThreshold)
	v.SetDefault("governor.critical_threshold", d.Governor.CriticalThreshold)
	v.SetDefault("governor.default_rate_limit", d.Governor.DefaultRateLimit)
	v.SetDefault("governor.project_rate_limits", map[string]int{})
	v.SetDefault("governor.usage_interval", d.Governor.UsageInterval.String())
	v.SetDefault("governor.progress_interval", d.Governor.ProgressInterval.String())
	v.SetDefault("governor.checkpoint_interval", d.Governor.CheckpointInterval.String())
	v.SetDefault("governor.release_interval", d.Governor.ReleaseInterval.String())
	v.SetDefault("governor.error_backoff", d.Governor.ErrorBackoff.String())
	v.SetDefault("governor.stale_threshold", d.Governor.StaleThreshold.String())
	v.SetDefault("governor.checkpoint_workers", d.Governor.CheckpointWorkers)

	v.SetDefault("storage.database_path", "")
	v.SetDefault("storage.timeout", d.Storage.Timeout.String())
	v.SetDefault("storage.checkpoint_backend", d.Storage.CheckpointBackend)
	v.SetDefault("storage.checkpoint_dir", "")
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.lock_timeout", d.Storage.LockTimeout.String())

	v.SetDefault("estimator.log_path", "")
	v.SetDefault("estimator.history_days", d.Estimator.HistoryDays)
	v.SetDefault("estimator.efficiency_days", d.Estimator.EfficiencyDays)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
}
