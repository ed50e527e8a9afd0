// Package minecraft registers the MCP tools that manage a Minecraft server.
package minecraft

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/tools"
)

// Tool names.
const (
	ToolSaveAll         = "minecraft_save_all"
	ToolListPlayers     = "minecraft_list_players"
	ToolEnableAutoSave  = "minecraft_enable_autosave"
	ToolDisableAutoSave = "minecraft_disable_autosave"
	ToolListUsers       = "minecraft_list_users"
	ToolBackup          = "minecraft_backup"
	ToolRCONCommand     = "minecraft_rcon_command"
)

// RegisterMinecraftTools registers all Minecraft management tools with the MCP server.
func RegisterMinecraftTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	register := func(tool mcp.Tool, handler tools.ToolHandler) {
		s.AddTool(tool, tools.WrapWithAuditLogging(tool.Name, handler, sc))
	}

	register(mcp.NewTool(ToolSaveAll,
		mcp.WithDescription("Flush the world to disk with save-all and wait until Minecraft reports the save is complete"),
		mcp.WithIdempotentHintAnnotation(true),
	), handleSaveAll)

	register(mcp.NewTool(ToolListPlayers,
		mcp.WithDescription("List the players currently online, read from the server console"),
		mcp.WithReadOnlyHintAnnotation(true),
	), handleListPlayers)

	register(mcp.NewTool(ToolEnableAutoSave,
		mcp.WithDescription("Turn automatic world saving back on (save-on)"),
		mcp.WithIdempotentHintAnnotation(true),
	), handleEnableAutoSave)

	register(mcp.NewTool(ToolDisableAutoSave,
		mcp.WithDescription("Turn automatic world saving off (save-off). Remember to enable it again"),
		mcp.WithIdempotentHintAnnotation(true),
	), handleDisableAutoSave)

	register(mcp.NewTool(ToolListUsers,
		mcp.WithDescription("List the players currently online, queried over RCON"),
		mcp.WithReadOnlyHintAnnotation(true),
	), handleListUsers)

	register(mcp.NewTool(ToolBackup,
		mcp.WithDescription("Save the world, pause automatic saving, write a gzip-compressed tar archive of the world directory to the backup directory, then resume automatic saving"),
		mcp.WithDestructiveHintAnnotation(false),
	), handleBackup)

	register(mcp.NewTool(ToolRCONCommand,
		mcp.WithDescription("Run a single console command over RCON and return its response"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command to run without the leading slash, for example 'time set day'"),
		),
		mcp.WithDestructiveHintAnnotation(true),
	), handleRCONCommand)

	return nil
}
