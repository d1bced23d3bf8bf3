package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
	"github.com/mrz1836/tokengov/internal/usage"
)

// EstimateResult is the payload of estimate_usage.
type EstimateResult struct {
	OperationType   string               `json:"operation_type"`
	Complexity      constants.Complexity `json:"complexity"`
	EstimatedTokens int64                `json:"estimated_tokens"`
}

// EstimateUsageTool handles the estimate_usage MCP tool.
type EstimateUsageTool struct {
	estimator Estimator
}

// NewEstimateUsageTool creates an EstimateUsageTool.
func NewEstimateUsageTool(estimator Estimator) *EstimateUsageTool {
	return &EstimateUsageTool{estimator: estimator}
}

// Definition returns the MCP tool definition for estimate_usage.
func (t *EstimateUsageTool) Definition() mcp.Tool {
	return mcp.NewTool("estimate_usage",
		mcp.WithDescription(
			"Estimate the token cost of an operation from recent successful runs of the same type, "+
				"falling back to built-in defaults when there is no history.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("operation_type",
			mcp.Required(),
			mcp.Description("Operation label, e.g. task_execution, checkpoint_save, pr_creation, repo_setup"),
		),
		mcp.WithString("complexity",
			mcp.Description("Cost class (default: simple)"),
			mcp.Enum(
				constants.ComplexitySimple.String(),
				constants.ComplexityComplex.String(),
				constants.ComplexityVeryComplex.String(),
			),
		),
		mcp.WithNumber("file_count",
			mcp.Description("Files touched; scales repo_setup and pr_creation estimates"),
			mcp.Min(0),
		),
		mcp.WithString("project_id",
			mcp.Description("Project the operation belongs to"),
		),
	)
}

// Handle processes the estimate_usage tool call.
func (t *EstimateUsageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opType, err := requiredString(req, "operation_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	complexity, ok := constants.ParseComplexity(req.GetString("complexity", ""))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown complexity %q", complexity)), nil
	}

	opCtx := map[string]any{usage.ContextComplexity: complexity.String()}
	if projectID := req.GetString("project_id", ""); projectID != "" {
		opCtx[usage.ContextProjectID] = projectID
	}
	files, present, err := int64Arg(req, "file_count")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if present {
		opCtx[usage.ContextFileCount] = int(files)
	}

	return jsonResult(EstimateResult{
		OperationType:   opType,
		Complexity:      complexity,
		EstimatedTokens: t.estimator.Estimate(ctx, opType, opCtx),
	})
}

// RecordUsageResult is the payload of record_usage.
type RecordUsageResult struct {
	Record *domain.UsageRecord `json:"record"`
	Alerts []domain.Alert      `json:"alerts"`
}

// RecordUsageTool handles the record_usage MCP tool.
type RecordUsageTool struct {
	governor Governor
}

// NewRecordUsageTool creates a RecordUsageTool.
func NewRecordUsageTool(governor Governor) *RecordUsageTool {
	return &RecordUsageTool{governor: governor}
}

// Definition returns the MCP tool definition for record_usage.
func (t *RecordUsageTool) Definition() mcp.Tool {
	return mcp.NewTool("record_usage",
		mcp.WithDescription(
			"Charge tokens spent outside the task lifecycle to a project and return any budget alert it raised.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to charge"),
		),
		mcp.WithNumber("tokens_used",
			mcp.Required(),
			mcp.Description("Tokens consumed"),
			mcp.Min(0),
		),
		mcp.WithString("operation_type",
			mcp.Required(),
			mcp.Description("Operation label, e.g. planning, status_report"),
		),
		mcp.WithString("task_id",
			mcp.Description("Task the tokens belong to"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Agent that spent the tokens"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Free-form context stored with the record"),
		),
	)
}

// Handle processes the record_usage tool call.
func (t *RecordUsageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requiredString(req, "project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opType, err := requiredString(req, "operation_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tokens, present, err := int64Arg(req, "tokens_used")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !present {
		return mcp.NewToolResultError("'tokens_used' is required"), nil
	}

	rec := &domain.UsageRecord{
		ProjectID:     projectID,
		TaskID:        req.GetString("task_id", ""),
		AgentID:       req.GetString("agent_id", ""),
		TokensUsed:    tokens,
		OperationType: opType,
	}
	if meta, ok := req.GetArguments()["metadata"].(map[string]any); ok && len(meta) > 0 {
		rec.Metadata = meta
	}

	saved, alerts, err := t.governor.RecordUsage(ctx, rec)
	if err != nil {
		return errorResult(err), nil
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return jsonResult(RecordUsageResult{Record: saved, Alerts: alerts})
}

// ListCheckpointsResult is the payload of list_checkpoints.
type ListCheckpointsResult struct {
	TaskID      string                 `json:"task_id"`
	Checkpoints []domain.CheckpointRef `json:"checkpoints"`
}

// ListCheckpointsTool handles the list_checkpoints MCP tool.
type ListCheckpointsTool struct {
	checkpoints CheckpointLister
}

// NewListCheckpointsTool creates a ListCheckpointsTool.
func NewListCheckpointsTool(checkpoints CheckpointLister) *ListCheckpointsTool {
	return &ListCheckpointsTool{checkpoints: checkpoints}
}

// Definition returns the MCP tool definition for list_checkpoints.
func (t *ListCheckpointsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_checkpoints",
		mcp.WithDescription("List the saved checkpoints of a task, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	)
}

// Handle processes the list_checkpoints tool call.
func (t *ListCheckpointsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := requiredString(req, "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(ListCheckpointsResult{
		TaskID:      taskID,
		Checkpoints: t.checkpoints.ListCheckpoints(ctx, taskID),
	})
}
