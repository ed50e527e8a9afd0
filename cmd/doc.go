// Package cmd provides the command-line interface for mcp-minecraft.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the Minecraft server and the MCP server (default behavior when no subcommand is provided)
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	mcp-minecraft [flags]                 # Starts the MCP server (default)
//	mcp-minecraft serve [flags]           # Explicitly starts the MCP server
//	mcp-minecraft version                 # Shows version information
//	mcp-minecraft self-update             # Updates to latest release
//
// Transport Configuration Examples:
//
//	mcp-minecraft serve --server-dir /srv/minecraft
//	mcp-minecraft serve --transport sse --http-addr :8080 --sse-endpoint /sse
//	mcp-minecraft serve --transport streamable-http --http-addr :9000 --http-endpoint /mcp \
//	    --rcon-password-secret games/minecraft-rcon --in-cluster
//
// The serve command owns the game server process for its whole lifetime. On
// shutdown it sends "stop" to the server console, waits for the process to
// exit, and only then stops the background log and command pumps.
package cmd
