package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/ctxutil"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/errors"
	"github.com/mrz1836/tokengov/internal/governor"
)

// withApp opens the engine for one command and closes it afterwards.
func withApp(cmd *cobra.Command, s *session, fn func(ctx context.Context, a *app, out *printer) error) error {
	ctx := cmd.Context()

	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	a, err := s.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, newPrinter(cmd, s))
}

// invalidInput marks err as a usage error (exit code 2).
func invalidInput(format string, args ...any) error {
	return errors.NewExitCode2Error(errors.Wrapf(errors.ErrInvalidArgument, format, args...))
}

// parseTier accepts high, low and the stored tier names.
func parseTier(raw string) (constants.PriorityTier, error) {
	tier, ok := constants.ParsePriorityTier(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return "", invalidInput("unknown priority tier %q: use high or low", raw)
	}
	return tier, nil
}

// AddProjectCommand adds the project command group.
func AddProjectCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Register and inspect governed projects",
	}
	cmd.AddCommand(
		newProjectRegisterCmd(s),
		newProjectUpdateCmd(s),
		newProjectShowCmd(s),
		newProjectListCmd(s),
	)
	root.AddCommand(cmd)
}

type projectRegisterFlags struct {
	id          string
	name        string
	description string
	budget      int64
	tier        string
	owner       string
}

func newProjectRegisterCmd(s *session) *cobra.Command {
	flags := &projectRegisterFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a project with a token budget",
		Long: `Register a project and start governing it.

When --budget is omitted the configured default_budget is used.

Examples:
  tokengov project register --name docs --budget 50000
  tokengov project register --id proj-docs --name docs --tier high --owner alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				return runProjectRegister(ctx, cmd, a, out, flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "project id (generated when omitted)")
	cmd.Flags().StringVar(&flags.name, "name", "", "project name")
	cmd.Flags().StringVar(&flags.description, "description", "", "project description")
	cmd.Flags().Int64Var(&flags.budget, "budget", 0, "token budget (default from config)")
	cmd.Flags().StringVar(&flags.tier, "tier", "low", "priority tier (high|low)")
	cmd.Flags().StringVar(&flags.owner, "owner", "", "owner allowed to update the project")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runProjectRegister(ctx context.Context, cmd *cobra.Command, a *app, out *printer, flags *projectRegisterFlags) error {
	tier, err := parseTier(flags.tier)
	if err != nil {
		return err
	}

	budget := flags.budget
	if !cmd.Flags().Changed("budget") {
		budget = a.cfg.DefaultBudget
	}
	if budget <= 0 {
		return invalidInput("budget must be positive, got %d", budget)
	}

	decision, err := a.engine.RegisterProject(ctx, &domain.Project{
		ID:           flags.id,
		Name:         flags.name,
		Description:  flags.description,
		TokenBudget:  budget,
		PriorityTier: tier,
		Owner:        flags.owner,
	})
	if err != nil {
		return err
	}
	return out.result(decision, func() { out.decision(decision) })
}

type projectUpdateFlags struct {
	requester   string
	name        string
	description string
	budget      int64
	tier        string
}

func newProjectUpdateCmd(s *session) *cobra.Command {
	flags := &projectUpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Change a project's name, description, budget or tier",
		Long: `Change project settings. Only flags that are given are applied.

Projects with an owner can only be changed by that owner (--requester).

Examples:
  tokengov project update proj-docs --budget 80000 --requester alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				return runProjectUpdate(ctx, cmd, a, out, args[0], flags)
			})
		},
	}

	cmd.Flags().StringVar(&flags.requester, "requester", "", "who is making the change")
	cmd.Flags().StringVar(&flags.name, "name", "", "new project name")
	cmd.Flags().StringVar(&flags.description, "description", "", "new description")
	cmd.Flags().Int64Var(&flags.budget, "budget", 0, "new token budget")
	cmd.Flags().StringVar(&flags.tier, "tier", "", "new priority tier (high|low)")

	return cmd
}

func runProjectUpdate(ctx context.Context, cmd *cobra.Command, a *app, out *printer, projectID string, flags *projectUpdateFlags) error {
	var upd governor.ProjectUpdate
	changed := cmd.Flags().Changed

	if changed("name") {
		upd.Name = &flags.name
	}
	if changed("description") {
		upd.Description = &flags.description
	}
	if changed("budget") {
		upd.TokenBudget = &flags.budget
	}
	if changed("tier") {
		tier, err := parseTier(flags.tier)
		if err != nil {
			return err
		}
		upd.PriorityTier = &tier
	}
	if upd == (governor.ProjectUpdate{}) {
		return invalidInput("nothing to update: pass --name, --description, --budget or --tier")
	}

	p, err := a.engine.UpdateProject(ctx, flags.requester, projectID, upd)
	if err != nil {
		return err
	}
	return out.result(p, func() {
		out.line("%s updated", p.ID)
		out.field("name", "%s", p.Name)
		out.field("budget", "%d tokens", p.TokenBudget)
		out.field("tier", "%s", p.PriorityTier)
	})
}

func newProjectShowCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show budget consumption and task counts for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				st, err := a.engine.GetProjectStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(st, func() { out.projectStatus(st) })
			})
		},
	}
}

func newProjectListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				projects, err := a.store.ListProjects(ctx)
				if err != nil {
					return err
				}
				if projects == nil {
					projects = []*domain.Project{}
				}
				return out.result(projects, func() {
					if len(projects) == 0 {
						out.line("No projects. Run 'tokengov project register' to create one.")
						return
					}
					for _, p := range projects {
						out.line("%-24s %-24s %12d tokens  %s", p.ID, p.Name, p.TokenBudget, p.PriorityTier)
					}
				})
			})
		},
	}
}
