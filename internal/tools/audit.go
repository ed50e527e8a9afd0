package tools

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// WrapWithAuditLogging wraps a tool handler so every invocation gets a span,
// a tool call metric and an audit log line with its outcome and duration.
//
// An error result (IsError) counts as a failed call even though the handler
// returned a nil Go error.
func WrapWithAuditLogging(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request, sc)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		var detail string
		switch {
		case err != nil:
			status = instrumentation.StatusError
			detail = err.Error()
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			detail = resultText(result)
			instrumentation.SetSpanError(span, errors.New(detail))
		default:
			instrumentation.SetSpanSuccess(span)
		}

		sc.Metrics().RecordToolCall(ctx, toolName, status)

		args := []interface{}{
			logging.KeyTool, toolName,
			logging.KeyStatus, status,
			logging.KeyDuration, duration,
		}
		if traceID := instrumentation.GetTraceID(ctx); traceID != "" {
			args = append(args, "trace_id", traceID)
		}
		if status == instrumentation.StatusSuccess {
			sc.Logger().Info("tool invocation", args...)
		} else {
			sc.Logger().Warn("tool invocation failed", append(args, logging.KeyError, detail)...)
		}

		return result, err
	}
}

// resultText returns the first text content of a tool result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}
