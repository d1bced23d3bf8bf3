package constants

// Log file settings.
const (
	// LogFileName is the name of the rotating log file.
	// This file is located in ~/.tokengov/logs/tokengov.log
	LogFileName = "tokengov.log"

	// LogMaxSizeMB is the maximum size in megabytes before rotation.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated files to keep.
	LogMaxBackups = 5

	// LogMaxAgeDays is the maximum age of rotated files.
	LogMaxAgeDays = 30

	// LogCompress controls gzip compression of rotated files.
	LogCompress = true
)

// File names for persisted state.
const (
	// GlobalConfigName is the name of the configuration file in the tokengov home.
	GlobalConfigName = "config.yaml"

	// DatabaseFileName is the default SQLite database file name.
	DatabaseFileName = "tokengov.db"

	// OperationLogFileName is the JSONL file the usage estimator reads and appends to.
	OperationLogFileName = "operations.jsonl"
)

// EnvPrefix is the prefix for environment variable overrides (TOKENGOV_*).
const EnvPrefix = "TOKENGOV"

// EnvHome overrides the tokengov home directory.
const EnvHome = "TOKENGOV_HOME"
