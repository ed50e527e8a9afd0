// Package tools provides shared utilities for MCP tool handlers.
package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/giantswarm/mcp-minecraft/internal/server"
)

// CheckMutatingOperation returns an error result when operation is blocked by
// read-only mode, and nil when it may proceed.
//
// An operation is allowed if read-only mode is off or the operation is listed
// in AllowedOperations. Mutating operations are enable_autosave,
// disable_autosave and rcon_command.
func CheckMutatingOperation(sc *server.ServerContext, operation string) *mcp.CallToolResult {
	config := sc.Config()
	if !config.ReadOnly || config.Allowed(operation) {
		return nil
	}

	return mcp.NewToolResultError(fmt.Sprintf(
		"%s is not allowed in read-only mode (add %q to --allowed-operations to permit it)",
		cases.Title(language.English).String(strings.ReplaceAll(operation, "_", " ")),
		operation,
	))
}
