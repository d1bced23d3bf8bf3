package mcpserver

import (
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// int64Arg reads a non-negative token count. JSON numbers arrive as float64.
// ok is false when the key is absent.
func int64Arg(req mcp.CallToolRequest, key string) (value int64, ok bool, err error) {
	raw, present := req.GetArguments()[key]
	if !present || raw == nil {
		return 0, false, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, true, fmt.Errorf("'%s' must be a number", key)
	}

	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, true, fmt.Errorf("'%s' must be a non-negative whole number", key)
	}
	return int64(f), true, nil
}

// requiredString returns the trimmed string argument or an error naming it.
func requiredString(req mcp.CallToolRequest, key string) (string, error) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", fmt.Errorf("'%s' is required", key)
	}
	return v, nil
}

// jsonResult marshals v as the tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	res, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to encode result", err), nil
	}
	return res, nil
}

// errorResult turns an engine error into a tool error carrying the
// user-facing message and, when one exists, the suggested action.
func errorResult(err error) *mcp.CallToolResult {
	msg, action := tgerrors.Actionable(err)
	if detail := err.Error(); detail != msg {
		msg += " (" + detail + ")"
	}
	if action != "" {
		msg += "\n" + action
	}
	return mcp.NewToolResultError(msg)
}
