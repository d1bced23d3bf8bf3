package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mrz1836/tokengov/internal/constants"
	"github.com/mrz1836/tokengov/internal/domain"
)

// RegisterProjectTool handles the register_project MCP tool.
type RegisterProjectTool struct {
	gov Governor
}

// NewRegisterProjectTool creates a RegisterProjectTool.
func NewRegisterProjectTool(gov Governor) *RegisterProjectTool {
	return &RegisterProjectTool{gov: gov}
}

// Definition returns the MCP tool definition for register_project.
func (t *RegisterProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("register_project",
		mcp.WithDescription(
			"Register a project with a token budget. Governance starts immediately: "+
				"tasks registered under the project are admitted against this budget.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Human-readable project name"),
		),
		mcp.WithNumber("token_budget",
			mcp.Required(),
			mcp.Description("Total tokens the project may consume"),
			mcp.Min(1),
		),
		mcp.WithString("project_id",
			mcp.Description("Project ID (generated when omitted)"),
		),
		mcp.WithString("description",
			mcp.Description("Optional description"),
		),
		mcp.WithString("priority_tier",
			mcp.Description("Priority tier (default: low)"),
			mcp.Enum("high", "low"),
		),
		mcp.WithString("owner",
			mcp.Description("Owner allowed to update the project later"),
		),
	)
}

// Handle processes the register_project tool call.
func (t *RegisterProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := requiredString(req, "name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	budget, ok, err := int64Arg(req, "token_budget")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok || budget == 0 {
		return mcp.NewToolResultError("'token_budget' must be a positive number"), nil
	}

	tier, valid := constants.ParsePriorityTier(req.GetString("priority_tier", ""))
	if !valid {
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority_tier %q: use high or low", tier)), nil
	}

	decision, err := t.gov.RegisterProject(ctx, &domain.Project{
		ID:           req.GetString("project_id", ""),
		Name:         name,
		Description:  req.GetString("description", ""),
		TokenBudget:  budget,
		PriorityTier: tier,
		Owner:        req.GetString("owner", ""),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(decision)
}

// ProjectStatusTool handles the project_status MCP tool.
type ProjectStatusTool struct {
	gov Governor
}

// NewProjectStatusTool creates a ProjectStatusTool.
func NewProjectStatusTool(gov Governor) *ProjectStatusTool {
	return &ProjectStatusTool{gov: gov}
}

// Definition returns the MCP tool definition for project_status.
func (t *ProjectStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("project_status",
		mcp.WithDescription(
			"Report budget consumption, task counts, estimation efficiency and monitoring state for a project.",
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project ID"),
		),
	)
}

// Handle processes the project_status tool call.
func (t *ProjectStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requiredString(req, "project_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	status, err := t.gov.GetProjectStatus(ctx, projectID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(status)
}
