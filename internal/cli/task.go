package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// AddTaskCommand adds the task command group.
func AddTaskCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Register, admit and finish governed tasks",
		Long: `Drive the task lifecycle by hand.

A task is registered pending, asks for admission with 'track', and ends
with 'complete' or 'fail'. Rate limits are per process, so they only
throttle while 'tokengov serve' keeps the engine running.`,
	}
	cmd.AddCommand(
		newTaskRegisterCmd(s),
		newTaskTrackCmd(s),
		newTaskFinishCmd(s, false),
		newTaskFinishCmd(s, true),
		newTaskPauseCmd(s),
		newTaskResumeCmd(s),
		newTaskShowCmd(s),
		newTaskListCmd(s),
	)
	root.AddCommand(cmd)
}

type taskRegisterFlags struct {
	id          string
	project     string
	name        string
	description string
	complexity  string
	estimate    int64
	parent      string
	subtasks    []string
}

func newTaskRegisterCmd(s *session) *cobra.Command {
	flags := &taskRegisterFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a task under a project",
		Long: `Register a pending task.

When --estimate is omitted the usage estimator predicts it from recent
task executions of the same complexity.

Examples:
  tokengov task register --project proj-docs --name "write guide" --complexity complex
  tokengov task register --project proj-docs --name lint --estimate 800`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				return runTaskRegister(ctx, a, out, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "task id (generated when omitted)")
	cmd.Flags().StringVarP(&flags.project, "project", "p", "", "owning project id")
	cmd.Flags().StringVar(&flags.name, "name", "", "task name")
	cmd.Flags().StringVar(&flags.description, "description", "", "task description")
	cmd.Flags().StringVar(&flags.complexity, "complexity", "simple", "simple|complex|very_complex")
	cmd.Flags().Int64Var(&flags.estimate, "estimate", 0, "estimated tokens (estimated when omitted)")
	cmd.Flags().StringVar(&flags.parent, "parent", "", "parent agent id")
	cmd.Flags().StringSliceVar(&flags.subtasks, "subtask", nil, "subtask id (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runTaskRegister(ctx context.Context, a *app, out *printer, flags *taskRegisterFlags) error {
	complexity, ok := constants.ParseComplexity(strings.ToLower(flags.complexity))
	if !ok {
		return invalidInput("unknown complexity %q: use simple, complex or very_complex", flags.complexity)
	}
	if flags.estimate < 0 {
		return invalidInput("estimate must not be negative, got %d", flags.estimate)
	}

	decision, err := a.engine.RegisterTask(ctx, &domain.Task{
		ID:              flags.id,
		ParentAgentID:   flags.parent,
		ProjectID:       flags.project,
		Name:            flags.name,
		Description:     flags.description,
		Complexity:      complexity,
		EstimatedTokens: flags.estimate,
		SubtaskIDs:      flags.subtasks,
	})
	if err != nil {
		return err
	}
	return out.result(decision, func() { out.decision(decision) })
}

func newTaskTrackCmd(s *session) *cobra.Command {
	var actual int64
	cmd := &cobra.Command{
		Use:   "track <task-id>",
		Short: "Ask for admission to run a task",
		Long: `Run the admission check: budget first, then rate limit, then the
adaptive checkpoint threshold. Pass --actual to record the tokens used
so far before checking.

Examples:
  tokengov task track task-1a2b3c4d
  tokengov task track task-1a2b3c4d --actual 4200`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				if cmd.Flags().Changed("actual") {
					if actual < 0 {
						return invalidInput("actual must not be negative, got %d", actual)
					}
					if _, err := a.engine.RecordProgress(ctx, args[0], actual); err != nil {
						return err
					}
				}
				decision := a.engine.TrackTaskExecution(ctx, args[0])
				return out.result(decision, func() { out.decision(decision) })
			})
		},
	}
	cmd.Flags().Int64Var(&actual, "actual", 0, "tokens consumed so far")
	return cmd
}

// newTaskFinishCmd builds 'task complete' or, with failed set, 'task fail'.
func newTaskFinishCmd(s *session, failed bool) *cobra.Command {
	var (
		actual  int64
		errText string
	)
	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Finish a task and charge its tokens to the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actual < 0 {
				return invalidInput("actual must not be negative, got %d", actual)
			}
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				var result *domain.CompletionResult
				if failed {
					result = a.engine.HandleTaskFailure(ctx, args[0], actual, errText)
				} else {
					result = a.engine.HandleTaskCompletion(ctx, args[0], actual)
				}
				return out.result(result, func() { out.completion(result) })
			})
		},
	}
	cmd.Flags().Int64Var(&actual, "actual", 0, "total tokens the task consumed")
	_ = cmd.MarkFlagRequired("actual")

	if failed {
		cmd.Use = "fail <task-id>"
		cmd.Short = "Mark a task failed and charge the tokens it consumed"
		cmd.Flags().StringVar(&errText, "error", "", "failure description")
	}
	return cmd
}

func newTaskPauseCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <task-id>",
		Short: "Pause a task until it is resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				t, err := a.engine.PauseTask(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(t, func() { out.line("%s: %s", t.ID, t.Status) })
			})
		},
	}
}

func newTaskResumeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Return a paused task to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				t, err := a.engine.ResumeTask(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(t, func() { out.line("%s: %s", t.ID, t.Status) })
			})
		},
	}
}

func newTaskShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				t, err := a.store.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(t, func() { out.task(t) })
			})
		},
	}
}

func newTaskListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's tasks, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				if _, err := a.store.GetProject(ctx, args[0]); err != nil {
					return err
				}
				tasks, err := a.store.ListTasksByProject(ctx, args[0])
				if err != nil {
					return err
				}
				if tasks == nil {
					tasks = []*domain.Task{}
				}
				return out.result(tasks, func() {
					if len(tasks) == 0 {
						out.line("No tasks registered for %s.", args[0])
						return
					}
					for _, t := range tasks {
						out.line("%-24s %-12s %-13s %10d / %d tokens",
							t.ID, t.Status, t.Complexity, t.ActualTokens, t.EstimatedTokens)
					}
				})
			})
		},
	}
}
