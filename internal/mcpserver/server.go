// Package mcpserver exposes the governance engine as MCP tools over stdio.
//
// Each tool follows the same shape:
//   - a struct holding its dependencies, built by a NewXTool constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments, calls the engine and returns JSON
//
// Engine failures are reported as tool errors (IsError results), never as
// protocol errors, so a client can read the message and react.
package mcpserver

import (
	"context"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mrz1836/tokengov/internal/domain"
)

// Governor is the subset of the governance engine the tools call.
type Governor interface {
	RegisterProject(ctx context.Context, p *domain.Project) (*domain.Decision, error)
	RegisterTask(ctx context.Context, t *domain.Task) (*domain.Decision, error)
	RecordProgress(ctx context.Context, taskID string, actual int64) (*domain.Task, error)
	TrackTaskExecution(ctx context.Context, taskID string) *domain.Decision
	HandleTaskCompletion(ctx context.Context, taskID string, actual int64) *domain.CompletionResult
	HandleTaskFailure(ctx context.Context, taskID string, actual int64, errText string) *domain.CompletionResult
	GetProjectStatus(ctx context.Context, projectID string) (*domain.ProjectStatus, error)
	RecordUsage(ctx context.Context, rec *domain.UsageRecord) (*domain.UsageRecord, []domain.Alert, error)
}

// Estimator predicts the token cost of an operation.
type Estimator interface {
	Estimate(ctx context.Context, opType string, opCtx map[string]any) int64
}

// CheckpointLister lists the checkpoints written for a task.
type CheckpointLister interface {
	ListCheckpoints(ctx context.Context, taskID string) []domain.CheckpointRef
}

// Deps are the collaborators the tools are built from.
type Deps struct {
	Governor    Governor
	Estimator   Estimator
	Checkpoints CheckpointLister
	Logger      zerolog.Logger
}

// New creates the MCP server with every governance tool registered.
func New(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tokengov",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerProject := NewRegisterProjectTool(deps.Governor)
	s.AddTool(registerProject.Definition(), registerProject.Handle)

	projectStatus := NewProjectStatusTool(deps.Governor)
	s.AddTool(projectStatus.Definition(), projectStatus.Handle)

	registerTask := NewRegisterTaskTool(deps.Governor)
	s.AddTool(registerTask.Definition(), registerTask.Handle)

	trackTask := NewTrackTaskTool(deps.Governor)
	s.AddTool(trackTask.Definition(), trackTask.Handle)

	completeTask := NewCompleteTaskTool(deps.Governor)
	s.AddTool(completeTask.Definition(), completeTask.Handle)

	estimateUsage := NewEstimateUsageTool(deps.Estimator)
	s.AddTool(estimateUsage.Definition(), estimateUsage.Handle)

	recordUsage := NewRecordUsageTool(deps.Governor)
	s.AddTool(recordUsage.Definition(), recordUsage.Handle)

	listCheckpoints := NewListCheckpointsTool(deps.Checkpoints)
	s.AddTool(listCheckpoints.Definition(), listCheckpoints.Handle)

	return s
}

// Serve runs s over the given streams until ctx is canceled or the input closes.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(logger.With().Str("component", "mcp").Logger(), "", 0))

	logger.Info().Msg("mcp server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func serverInstructions() string {
	return `tokengov governs token spend for AI agent work.

Workflow:
1. register_project once per project with its token budget.
2. register_task for each unit of work. Omit estimated_tokens to get a historical estimate.
3. Call track_task before every step. Only proceed when status is "approved".
   - "blocked": the project budget cannot cover the estimate.
   - "rate_limited": wait retry_after seconds, then call track_task again.
   - "checkpoint_requested": save your progress, then call track_task again.
   Pass actual_tokens to report the tokens consumed so far.
4. complete_task with the final token count, or with error set when the task failed.

Use project_status to inspect budget consumption and estimate_usage to price an operation up front.
Use record_usage to charge tokens spent outside a task, such as planning calls.`
}
