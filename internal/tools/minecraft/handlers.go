package minecraft

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/management"
	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/tools"
)

// backupTimeFormat names archives so they sort chronologically.
const backupTimeFormat = "20060102T150405Z"

// BackupResult is the JSON result of the backup tool.
type BackupResult struct {
	Path  string `json:"path"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
}

// RCONResult is the JSON result of the rcon command tool.
type RCONResult struct {
	Command  string `json:"command"`
	Response string `json:"response"`
}

func handleSaveAll(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if err := sc.Minecraft().SaveAll(ctx); err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(tools.OperationResult{Operation: management.OpSaveAll, Status: "ok"})
}

func handleListPlayers(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	players, err := sc.Minecraft().ListPlayers(ctx)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(players)
}

func handleEnableAutoSave(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if blocked := tools.CheckMutatingOperation(sc, management.OpEnableAutoSave); blocked != nil {
		return blocked, nil
	}
	if err := sc.Minecraft().EnableAutomaticSave(ctx); err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(tools.OperationResult{Operation: management.OpEnableAutoSave, Status: "ok"})
}

func handleDisableAutoSave(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if blocked := tools.CheckMutatingOperation(sc, management.OpDisableAutoSave); blocked != nil {
		return blocked, nil
	}
	if err := sc.Minecraft().DisableAutomaticSave(ctx); err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(tools.OperationResult{Operation: management.OpDisableAutoSave, Status: "ok"})
}

func handleListUsers(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	players, err := sc.Minecraft().ListUsers(ctx)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(players)
}

func handleRCONCommand(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if blocked := tools.CheckMutatingOperation(sc, management.OpRCONCommand); blocked != nil {
		return blocked, nil
	}

	args := request.GetArguments()
	command, ok := args["command"].(string)
	command = strings.TrimPrefix(strings.TrimSpace(command), "/")
	if !ok || command == "" {
		return mcp.NewToolResultError("command is required"), nil
	}

	response, err := sc.Minecraft().RCONCommand(ctx, command)
	if err != nil {
		return tools.ErrorResult(err), nil
	}
	return tools.JSONResult(RCONResult{Command: command, Response: response})
}

// handleBackup streams the archive into a partial file and renames it into
// place only once the backup has fully succeeded.
func handleBackup(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	dir := sc.Config().BackupDir
	if err := os.MkdirAll(dir, 0o750); err != nil {
		sc.Logger().Error("failed to create backup directory", logging.KeyError, err)
		return mcp.NewToolResultError("Failed to create the backup directory."), nil
	}

	name := fmt.Sprintf("backup-%s.tar.gz", time.Now().UTC().Format(backupTimeFormat))
	path := filepath.Join(dir, name)

	f, err := os.CreateTemp(dir, name+".*.partial")
	if err != nil {
		sc.Logger().Error("failed to create backup file", logging.KeyError, err)
		return mcp.NewToolResultError("Failed to create the backup file."), nil
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	stats, err := sc.Minecraft().Backup(ctx, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close backup file: %w", closeErr)
	}
	if err != nil {
		return tools.ErrorResult(err), nil
	}

	if err := os.Rename(tmp, path); err != nil {
		sc.Logger().Error("failed to move backup into place", logging.KeyError, err)
		return mcp.NewToolResultError("Failed to store the backup file."), nil
	}
	committed = true

	sc.Logger().Info("backup written", "path", path, "files", stats.Files, "bytes", stats.Bytes)
	return tools.JSONResult(BackupResult{Path: path, Files: stats.Files, Bytes: stats.Bytes})
}
