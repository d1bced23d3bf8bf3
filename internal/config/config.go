// Package config provides configuration management for tokengov with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (applied by the cli package)
//  2. Environment variables (TOKENGOV_* prefix)
//  3. Project config (.tokengov/config.yaml)
//  4. Global config (~/.tokengov/config.yaml)
//  5. Built-in defaults
//
// Each higher level completely overrides the lower level for the same key.
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for tokengov.
type Config struct {
	// DefaultBudget is the token budget given to projects registered without one.
	// Default: 100000
	DefaultBudget int64 `yaml:"default_budget" mapstructure:"default_budget"`

	// Governor contains admission, alerting and monitor loop settings.
	Governor GovernorConfig `yaml:"governor" mapstructure:"governor"`

	// Storage contains persistence and checkpoint backend settings.
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`

	// Estimator contains usage estimator settings.
	Estimator EstimatorConfig `yaml:"estimator" mapstructure:"estimator"`

	// Logging contains log level and log file rotation settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// GovernorConfig contains settings for the governance engine.
// Thresholds and rate limits can be changed while the engine runs.
type GovernorConfig struct {
	// WarningThreshold is the usage ratio that raises a warning alert.
	// Default: 0.80
	WarningThreshold float64 `yaml:"warning_threshold" mapstructure:"warning_threshold"`

	// CriticalThreshold is the usage ratio that raises a critical alert.
	// Must be greater than WarningThreshold. Default: 0.95
	CriticalThreshold float64 `yaml:"critical_threshold" mapstructure:"critical_threshold"`

	// DefaultRateLimit is the number of admissions allowed per project per minute.
	// Default: 5
	DefaultRateLimit int `yaml:"default_rate_limit" mapstructure:"default_rate_limit"`

	// ProjectRateLimits overrides DefaultRateLimit for individual projects.
	// Keys are lowercased by the config loader, so use lowercase project ids here.
	ProjectRateLimits map[string]int `yaml:"project_rate_limits" mapstructure:"project_rate_limits"`

	// UsageInterval is the sleep between budget re-evaluations. Default: 5m
	UsageInterval time.Duration `yaml:"usage_interval" mapstructure:"usage_interval"`

	// ProgressInterval is the sleep between stalled-task scans. Default: 5m
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`

	// CheckpointInterval is the sleep between checkpoint sweeps. Default: 3m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`

	// ReleaseInterval is the sleep between paused-task release passes. Default: 1m
	ReleaseInterval time.Duration `yaml:"release_interval" mapstructure:"release_interval"`

	// ErrorBackoff is the sleep a loop takes after an internal error. Default: 1m
	ErrorBackoff time.Duration `yaml:"error_backoff" mapstructure:"error_backoff"`

	// StaleThreshold is the age after which an in-progress task is reported as stalled.
	// Default: 2h
	StaleThreshold time.Duration `yaml:"stale_threshold" mapstructure:"stale_threshold"`

	// CheckpointWorkers bounds concurrent checkpoint writes in one sweep. Default: 4
	CheckpointWorkers int `yaml:"checkpoint_workers" mapstructure:"checkpoint_workers"`
}

// StorageConfig contains settings for the storage collaborators.
type StorageConfig struct {
	// DatabasePath is the SQLite database file.
	// Default: empty, resolved to ~/.tokengov/tokengov.db
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`

	// Timeout bounds each call the engine makes into a store. Default: 10s
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// CheckpointBackend selects where checkpoint artifacts live: "file" or "redis".
	// Default: "file"
	CheckpointBackend string `yaml:"checkpoint_backend" mapstructure:"checkpoint_backend"`

	// CheckpointDir is the directory used by the file backend.
	// Default: empty, resolved to ~/.tokengov/checkpoints
	CheckpointDir string `yaml:"checkpoint_dir" mapstructure:"checkpoint_dir"`

	// RedisURL is the server used by the redis backend (redis://[:password@]host:port/db).
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`

	// LockTimeout bounds file lock acquisition for the file backend. Default: 5s
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// EstimatorConfig contains settings for the usage estimator.
type EstimatorConfig struct {
	// LogPath is the JSONL operation log.
	// Default: empty, resolved to ~/.tokengov/operations.jsonl
	LogPath string `yaml:"log_path" mapstructure:"log_path"`

	// HistoryDays is the window of history used for estimates. Default: 30
	HistoryDays int `yaml:"history_days" mapstructure:"history_days"`

	// EfficiencyDays is the window used for efficiency analysis. Default: 7
	EfficiencyDays int `yaml:"efficiency_days" mapstructure:"efficiency_days"`
}

// LoggingConfig contains settings for the process logger.
type LoggingConfig struct {
	// Level is the minimum level written when neither --verbose nor --quiet is set.
	// Default: "info"
	Level string `yaml:"level" mapstructure:"level"`

	// File is the rotating log file.
	// Default: empty, resolved to ~/.tokengov/logs/tokengov.log
	File string `yaml:"file" mapstructure:"file"`

	// MaxSizeMB is the size at which the log file rotates. Default: 10
	MaxSizeMB int `yaml:"max_size_mb" mapstructure:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep. Default: 5
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups"`
}
