package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tokengov/internal/domain"
)

// AddCheckpointCommand adds the checkpoint command group.
func AddCheckpointCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save and inspect task checkpoints",
		Long: `Checkpoints snapshot a task's progress so work can resume after an
interruption. 'tokengov serve' writes requested checkpoints automatically;
'checkpoint create' writes one immediately.`,
	}
	cmd.AddCommand(
		newCheckpointCreateCmd(s),
		newCheckpointListCmd(s),
		newCheckpointShowCmd(s),
	)
	root.AddCommand(cmd)
}

func newCheckpointCreateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "create <task-id>",
		Short: "Write a checkpoint for a task now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				cp, err := a.engine.CreateCheckpoint(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(cp, func() {
					out.line("%s saved", cp.URI)
					out.field("task", "%s", cp.TaskID)
					out.field("size", "%d bytes", cp.SizeBytes)
					out.field("progress", "%.1f%%", cp.Data.Progress.CompletionPercentage)
				})
			})
		},
	}
}

func newCheckpointListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's checkpoints, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				refs := a.checkpoints.ListCheckpoints(ctx, args[0])
				return out.result(refs, func() {
					if len(refs) == 0 {
						out.line("No checkpoints for %s.", args[0])
						return
					}
					for _, r := range refs {
						out.line("%s  %8d bytes  %s", r.Timestamp.Local().Format(time.DateTime), r.SizeBytes, r.URI)
					}
				})
			})
		},
	}
}

func newCheckpointShowCmd(s *session) *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "show <uri | task-id>",
		Short: "Show the contents of a checkpoint",
		Long: `Show a checkpoint by URI, or with --latest the newest readable
checkpoint of a task.

Examples:
  tokengov checkpoint show file:///home/me/.tokengov/checkpoints/task-1_1792411200000000000_1a2b3c4d.json
  tokengov checkpoint show --latest task-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				var (
					data *domain.CheckpointData
					uri  = args[0]
					err  error
				)
				if latest {
					data, uri, err = a.checkpoints.Latest(ctx, args[0])
				} else {
					data, err = a.checkpoints.LoadCheckpoint(ctx, uri)
				}
				if err != nil {
					return err
				}
				return out.result(data, func() {
					out.line("%s", uri)
					out.field("task", "%s", data.TaskID)
					out.field("project", "%s", data.Context.ProjectID)
					out.field("status", "%s", data.Status)
					out.field("complexity", "%s", data.Context.Complexity)
					out.field("tokens", "%d / %d (%.1f%%)", data.Progress.ActualTokens,
						data.Progress.EstimatedTokens, data.Progress.CompletionPercentage)
					if len(data.Context.Subtasks) > 0 {
						out.field("subtasks", "%v", data.Context.Subtasks)
					}
					out.field("saved", "%s", data.Timestamp.Local().Format(time.RFC3339))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "treat the argument as a task id and show its newest checkpoint")
	return cmd
}
