package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-minecraft/internal/management"
)

// OperationResult is the JSON result of operations that return no data.
type OperationResult struct {
	Operation string `json:"operation"`
	Status    string `json:"status"`
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult converts err to a tool error carrying a stable, caller-facing
// message. Internal detail stays in the logs.
func ErrorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(management.UserMessage(err))
}
