package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/errors"
)

// Home returns the tokengov home directory.
// TOKENGOV_HOME wins when set; otherwise it is ~/.tokengov.
func Home() (string, error) {
	if home := os.Getenv(constants.EnvHome); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(userHome, constants.TokengovHome), nil
}

// GlobalConfigDir returns the path to the global configuration directory.
func GlobalConfigDir() (string, error) {
	return Home()
}

// GlobalConfigPath returns the full path to the global configuration file.
// This is typically ~/.tokengov/config.yaml on Unix systems.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", fmt.Errorf("get global config path: %w", err)
	}
	return filepath.Join(dir, constants.GlobalConfigName), nil
}

// ProjectConfigPath returns the relative path to the project configuration file.
// This is always .tokengov/config.yaml relative to the working directory.
func ProjectConfigPath() string {
	return filepath.Join(constants.TokengovHome, constants.GlobalConfigName)
}

// ResolvePaths fills every empty path setting with its location under Home.
func (c *Config) ResolvePaths() error {
	if c.Storage.DatabasePath != "" && c.Storage.CheckpointDir != "" &&
		c.Estimator.LogPath != "" && c.Logging.File != "" {
		return nil
	}

	home, err := Home()
	if err != nil {
		return err
	}

	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = filepath.Join(home, constants.DatabaseFileName)
	}
	if c.Storage.CheckpointDir == "" {
		c.Storage.CheckpointDir = filepath.Join(home, constants.CheckpointsDir)
	}
	if c.Estimator.LogPath == "" {
		c.Estimator.LogPath = filepath.Join(home, constants.OperationLogFileName)
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(home, constants.LogsDir, constants.LogFileName)
	}
	return nil
}
