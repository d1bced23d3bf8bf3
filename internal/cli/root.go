// Package cli provides the command-line interface for tokengov.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/logging"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "tokengov/skip-config"

// session carries what PersistentPreRunE prepared to the subcommands.
type session struct {
	flags *GlobalFlags
	info  BuildInfo

	cfg *config.Config
	// configFile is the file the effective config was read from, for live reload.
	configFile string
	log        *logging.Logger
}

// Logger returns the process logger, or a no-op logger before initialization.
func (s *session) Logger() zerolog.Logger {
	if s.log == nil {
		return zerolog.Nop()
	}
	return s.log.Logger
}

// init loads configuration and builds the logger.
func (s *session) init(cmd *cobra.Command) error {
	ctx := cmd.Context()

	globalPath, _ := config.GlobalConfigPath()
	if globalPath != "" && !fileExists(globalPath) {
		globalPath = ""
	}

	projectPath := config.ProjectConfigPath()
	if s.flags.ConfigPath != "" {
		if !fileExists(s.flags.ConfigPath) {
			return errors.NewExitCode2Error(
				errors.Wrapf(errors.ErrInvalidArgument, "config file %q does not exist", s.flags.ConfigPath))
		}
		projectPath = s.flags.ConfigPath
	} else if !fileExists(projectPath) {
		projectPath = ""
	}

	cfg, err := config.LoadFromPaths(ctx, projectPath, globalPath)
	if err != nil {
		return err
	}
	if err := cfg.ResolvePaths(); err != nil {
		return err
	}

	s.cfg = cfg
	s.configFile = projectPath
	if s.configFile == "" {
		s.configFile = globalPath
	}

	opts := logging.Options{
		Verbose:    s.flags.Verbose,
		Quiet:      s.flags.Quiet,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}
	if w := cmd.ErrOrStderr(); w != os.Stderr {
		opts.Console = w
	}

	log, fileErr := logging.New(opts)
	s.log = log
	logging.SetGlobal(log.Logger)
	if fileErr != nil {
		log.Warn().Err(fileErr).Msg("file logging disabled")
	}

	cmd.SetContext(log.WithContext(ctx))
	return nil
}

func (s *session) close() {
	if s.log != nil {
		_ = s.log.Close()
	}
}

// newRootCmd creates and returns the root command for the tokengov CLI.
// This function-based approach avoids package-level globals, making the
// code more testable and avoiding gochecknoglobals linter warnings.
func newRootCmd(flags *GlobalFlags, info BuildInfo) (*cobra.Command, *session) {
	v := viper.New()
	s := &session{flags: flags, info: info}

	cmd := &cobra.Command{
		Use:   "tokengov",
		Short: "Token budget governance for AI agent work",
		Long: `tokengov keeps AI agents inside their token budgets.

Projects get a budget, tasks are admitted against it, and a rate limiter
bounds how often a project may start work. Long tasks are asked to
checkpoint as they approach their estimate, and budget alerts fire at the
warning and critical thresholds.

Run 'tokengov serve' to expose the engine to agents over MCP (stdio) with
the background monitors running, or drive it directly with the project,
task, usage and checkpoint commands.`,
		Version: formatVersion(info),
		// Run displays help when the root command is invoked without subcommands.
		// This ensures PersistentPreRunE is called for flag validation.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			applyBoundFlags(v, flags)

			if !IsValidOutputFormat(flags.Output) {
				return fmt.Errorf("%w: %q must be one of %v", errors.ErrInvalidOutputFormat, flags.Output, ValidOutputFormats())
			}

			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}
			return s.init(cmd)
		},
		// main prints errors with their suggested action.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	AddGlobalFlags(cmd, flags)

	AddServeCommand(cmd, s)
	AddProjectCommand(cmd, s)
	AddTaskCommand(cmd, s)
	AddUsageCommand(cmd, s)
	AddCheckpointCommand(cmd, s)
	AddConfigCommand(cmd, s)
	AddVersionCommand(cmd, s)

	return cmd, s
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	//nolint:contextcheck // Cobra command pattern uses cmd.Context() internally
	cmd, s := newRootCmd(flags, info)
	defer s.close()
	return cmd.ExecuteContext(ctx)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
