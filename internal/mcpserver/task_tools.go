package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// RegisterTaskTool handles the register_task MCP tool.
type RegisterTaskTool struct {
	gov Governor
}

// NewRegisterTaskTool creates a RegisterTaskTool.
func NewRegisterTaskTool(gov Governor) *RegisterTaskTool {
	return &RegisterTaskTool{gov: gov}
}

// Definition returns the MCP tool definition for register_task.
func (t *RegisterTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("register_task",
		mcp.WithDescription(
			"Register a unit of work under a project. The task starts pending; call track_task before running it.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Owning project ID"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Short task name"),
		),
		mcp.WithString("task_id",
			mcp.Description("Task ID (generated when omitted)"),
		),
		mcp.WithString("description",
			mcp.Description("Optional description"),
		),
		mcp.WithString("complexity",
			mcp.Description("Expected cost class (default: simple)"),
			mcp.Enum(
				constants.ComplexitySimple.String(),
				constants.ComplexityComplex.String(),
				constants.ComplexityVeryComplex.String(),
			),
		),
		mcp.WithNumber("estimated_tokens",
			mcp.Description("Expected token cost. Estimated from history when omitted or zero."),
			mcp.Min(0),
		),
		mcp.WithString("parent_agent_id",
			mcp.Description("Agent that spawned the task"),
		),
		mcp.WithArray("subtask_ids",
			mcp.Description("IDs of subtasks, carried into checkpoints"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the register_task tool call.
func (t *RegisterTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requiredString(req, "project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := requiredString(req, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	complexity, ok := constants.ParseComplexity(req.GetString("complexity", ""))
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown complexity %q", complexity)), nil
	}

	estimate, _, err := int64Arg(req, "estimated_tokens")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decision, err := t.gov.RegisterTask(ctx, &domain.Task{
		ID:              req.GetString("task_id", ""),
		ParentAgentID:   req.GetString("parent_agent_id", ""),
		ProjectID:       projectID,
		Name:            name,
		Description:     req.GetString("description", ""),
		Complexity:      complexity,
		EstimatedTokens: estimate,
		SubtaskIDs:      req.GetStringSlice("subtask_ids", nil),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(decision)
}

// TrackTaskTool handles the track_task MCP tool.
type TrackTaskTool struct {
	gov Governor
}

// NewTrackTaskTool creates a TrackTaskTool.
func NewTrackTaskTool(gov Governor) *TrackTaskTool {
	return &TrackTaskTool{gov: gov}
}

// Definition returns the MCP tool definition for track_task.
func (t *TrackTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("track_task",
		mcp.WithDescription(
			"Ask for admission before running (or continuing) a task. "+
				"The status is one of approved, blocked, rate_limited, checkpoint_requested or error. "+
				"Only proceed on approved.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("actual_tokens",
			mcp.Description("Tokens consumed by the task so far. Recorded before the admission check."),
			mcp.Min(0),
		),
	)
}

// Handle processes the track_task tool call.
func (t *TrackTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := requiredString(req, "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	actual, reported, err := int64Arg(req, "actual_tokens")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if reported {
		if _, err := t.gov.RecordProgress(ctx, taskID, actual); err != nil {
			return errorResult(err), nil
		}
	}

	return jsonResult(t.gov.TrackTaskExecution(ctx, taskID))
}

// CompleteTaskTool handles the complete_task MCP tool.
type CompleteTaskTool struct {
	gov Governor
}

// NewCompleteTaskTool creates a CompleteTaskTool.
func NewCompleteTaskTool(gov Governor) *CompleteTaskTool {
	return &CompleteTaskTool{gov: gov}
}

// Definition returns the MCP tool definition for complete_task.
func (t *CompleteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("complete_task",
		mcp.WithDescription(
			"Finish a task and charge its tokens to the project. Set error to record a failure instead. "+
				"The result carries the estimation efficiency and any budget alerts.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("actual_tokens",
			mcp.Required(),
			mcp.Description("Total tokens the task consumed"),
			mcp.Min(0),
		),
		mcp.WithString("error",
			mcp.Description("Failure description. When set the task is marked failed."),
		),
	)
}

// Handle processes the complete_task tool call.
func (t *CompleteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := requiredString(req, "task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	actual, ok, err := int64Arg(req, "actual_tokens")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("'actual_tokens' is required"), nil
	}

	var result *domain.CompletionResult
	if errText := strings.TrimSpace(req.GetString("error", "")); errText != "" {
		result = t.gov.HandleTaskFailure(ctx, taskID, actual, errText)
	} else {
		result = t.gov.HandleTaskCompletion(ctx, taskID, actual)
	}
	return jsonResult(result)
}
