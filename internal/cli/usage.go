package cli

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/usage"
)

// AddUsageCommand adds the usage command group.
func AddUsageCommand(root *cobra.Command, s *session) {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Estimate token costs and review recorded usage",
	}
	cmd.AddCommand(
		newUsageEstimateCmd(s),
		newUsageEfficiencyCmd(s),
		newUsageHistoryCmd(s),
		newUsageSummaryCmd(s),
		newUsageRecordCmd(s),
	)
	root.AddCommand(cmd)
}

type usageEstimateFlags struct {
	complexity string
	files      int
	project    string
}

// estimateOutput is the JSON shape of 'usage estimate'.
type estimateOutput struct {
	OperationType   string               `json:"operation_type"`
	Complexity      constants.Complexity `json:"complexity"`
	EstimatedTokens int64                `json:"estimated_tokens"`
}

func newUsageEstimateCmd(s *session) *cobra.Command {
	flags := &usageEstimateFlags{}
	cmd := &cobra.Command{
		Use:   "estimate <operation-type>",
		Short: "Estimate the token cost of an operation",
		Long: `Estimate from the mean of recent successful operations of the same
type, or from built-in defaults when there is no history.

Examples:
  tokengov usage estimate task_execution --complexity very_complex
  tokengov usage estimate repo_setup --files 80`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			complexity, ok := constants.ParseComplexity(strings.ToLower(flags.complexity))
			if !ok {
				return invalidInput("unknown complexity %q: use simple, complex or very_complex", flags.complexity)
			}
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				opCtx := map[string]any{usage.ContextComplexity: complexity.String()}
				if cmd.Flags().Changed("files") {
					opCtx[usage.ContextFileCount] = flags.files
				}
				if flags.project != "" {
					opCtx[usage.ContextProjectID] = flags.project
				}

				res := estimateOutput{
					OperationType:   args[0],
					Complexity:      complexity,
					EstimatedTokens: a.estimator.Estimate(ctx, args[0], opCtx),
				}
				return out.result(res, func() {
					out.line("%s (%s): %d tokens", res.OperationType, res.Complexity, res.EstimatedTokens)
				})
			})
		},
	}
	cmd.Flags().StringVar(&flags.complexity, "complexity", "simple", "simple|complex|very_complex")
	cmd.Flags().IntVar(&flags.files, "files", constants.DefaultFileCount, "files touched (repo_setup and pr_creation)")
	cmd.Flags().StringVarP(&flags.project, "project", "p", "", "project id")
	return cmd
}

func newUsageEfficiencyCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "efficiency <project-id>",
		Short: "Report how closely estimates matched actual usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				report, err := a.estimator.AnalyzeEfficiency(ctx, args[0])
				if err != nil {
					return err
				}
				return out.result(report, func() {
					out.line("%s", report.ProjectID)
					out.efficiency(report)
					if report.Status == constants.EfficiencyOK {
						out.field("estimated", "%d tokens", report.TotalEstimated)
						out.field("actual", "%d tokens", report.TotalActual)
					}
				})
			})
		},
	}
}

func newUsageHistoryCmd(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "List recorded token usage for a project, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return invalidInput("limit must be positive, got %d", limit)
			}
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				records, err := a.store.UsageHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if records == nil {
					records = []*domain.UsageRecord{}
				}
				return out.result(records, func() {
					if len(records) == 0 {
						out.line("No usage recorded for %s.", args[0])
						return
					}
					for _, r := range records {
						out.line("%s  %-16s %-24s %10d tokens",
							r.Timestamp.Local().Format(time.DateTime), r.OperationType, r.TaskID, r.TokensUsed)
					}
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", constants.DefaultUsageHistoryLimit, "maximum records to show")
	return cmd
}

func newUsageSummaryCmd(s *session) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Total the tokens of recently completed operations by type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				summary, err := a.estimator.RecentUsage(ctx, days)
				if err != nil {
					return err
				}
				return out.result(summary, func() {
					out.line("Last %d day(s): %d tokens over %d operations",
						summary.PeriodDays, summary.TotalTokens, summary.OperationsCount)
					ops := make([]string, 0, len(summary.ByOperation))
					for op := range summary.ByOperation {
						ops = append(ops, op)
					}
					sort.Strings(ops)
					for _, op := range ops {
						out.field(op, "%d tokens", summary.ByOperation[op])
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "window in days")
	return cmd
}

type usageRecordFlags struct {
	project   string
	task      string
	agent     string
	tokens    int64
	operation string
	meta      map[string]string
}

// recordOutput is the JSON shape of 'usage record'.
type recordOutput struct {
	Record *domain.UsageRecord `json:"record"`
	Alerts []domain.Alert      `json:"alerts,omitempty"`
}

func newUsageRecordCmd(s *session) *cobra.Command {
	flags := &usageRecordFlags{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Charge tokens spent outside a task to a project",
		Long: `Append a usage record to a project's ledger and check its budget alerts.

Examples:
  tokengov usage record --project proj-docs --tokens 1200 --operation status_report
  tokengov usage record -p proj-docs --tokens 300 --operation planning --agent planner --meta model=large`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.tokens < 0 {
				return invalidInput("tokens must not be negative, got %d", flags.tokens)
			}
			return withApp(cmd, s, func(ctx context.Context, a *app, out *printer) error {
				var meta map[string]any
				if len(flags.meta) > 0 {
					meta = make(map[string]any, len(flags.meta))
					for k, v := range flags.meta {
						meta[k] = v
					}
				}
				rec, alerts, err := a.engine.RecordUsage(ctx, &domain.UsageRecord{
					ProjectID:     flags.project,
					TaskID:        flags.task,
					AgentID:       flags.agent,
					TokensUsed:    flags.tokens,
					OperationType: flags.operation,
					Metadata:      meta,
				})
				if err != nil {
					return err
				}
				res := recordOutput{Record: rec, Alerts: alerts}
				return out.result(res, func() {
					out.line("Recorded %d tokens for %s (%s)", rec.TokensUsed, rec.ProjectID, rec.OperationType)
					out.alerts(alerts)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&flags.project, "project", "p", "", "project id")
	cmd.Flags().StringVar(&flags.task, "task", "", "task id the tokens belong to")
	cmd.Flags().StringVar(&flags.agent, "agent", "", "agent id that spent the tokens")
	cmd.Flags().Int64Var(&flags.tokens, "tokens", 0, "tokens consumed")
	cmd.Flags().StringVar(&flags.operation, "operation", "", "operation type")
	cmd.Flags().StringToStringVar(&flags.meta, "meta", nil, "metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("tokens")
	_ = cmd.MarkFlagRequired("operation")
	return cmd
}
