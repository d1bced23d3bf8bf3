package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/tokengov/internal/config"
	"github.com/mrz1836/tokengov/internal/mcpserver"
	"github.com/mrz1836/tokengov/internal/signal"
)

// exitInterrupted is used when a second signal abandons a graceful shutdown.
const exitInterrupted = 130

type serveFlags struct {
	noMCP   bool
	noWatch bool
}

// AddServeCommand adds the serve command.
func AddServeCommand(root *cobra.Command, s *session) {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the governance engine with its monitors and the MCP server",
		Long: `Run the engine until interrupted.

The MCP server speaks JSON-RPC on stdin/stdout, so register tokengov as a
stdio MCP server in your agent. Logs go to stderr and the log file.

Four monitors run alongside: budget alerts, stalled task detection,
checkpoint materialization and release of rate-limited tasks. Alert
thresholds and rate limits are reloaded when the config file changes.

SIGINT or SIGTERM stops gracefully; a second signal exits immediately.

Examples:
  tokengov serve
  tokengov serve --no-mcp --verbose   # monitors only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, s, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.noMCP, "no-mcp", false, "run the monitors without the MCP server")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "do not reload the config file on change")
	root.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, s *session, flags *serveFlags) error {
	logger := s.Logger().With().Str("component", "serve").Logger()

	h := signal.NewHandler(cmd.Context(), signal.WithForceExit(func(sig os.Signal) {
		logger.Error().Str("signal", sig.String()).Msg("second signal received, exiting without cleanup")
		os.Exit(exitInterrupted)
	}))
	defer h.Stop()
	ctx := h.Context()

	a, err := s.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !flags.noWatch && s.configFile != "" {
		if err := config.Watch(ctx, s.configFile, a.applyConfig); err != nil {
			logger.Warn().Err(err).Msg("config reload disabled")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	monitorCtx, stopMonitors := context.WithCancel(gctx)
	defer stopMonitors()

	g.Go(func() error {
		return a.engine.Start(monitorCtx)
	})

	if !flags.noMCP {
		srv := mcpserver.New(mcpserver.Deps{
			Governor:    a.engine,
			Estimator:   a.estimator,
			Checkpoints: a.checkpoints,
			Logger:      logger,
		}, formatVersion(s.info))

		g.Go(func() error {
			// The client closing stdin ends the session, so the monitors stop too.
			defer stopMonitors()
			return mcpserver.Serve(gctx, srv, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		})
	}

	err = g.Wait()
	if sig := h.Signal(); sig != nil {
		logger.Info().Str("signal", sig.String()).Msg("shut down")
	}
	return err
}
