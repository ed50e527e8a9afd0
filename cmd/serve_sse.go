package cmd

import (
	"context"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-minecraft/internal/bridge"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/server"
)

// runSSEServer runs the server with SSE transport. The SSE and message
// handlers share a mux with the health, backup and log endpoints.
func runSSEServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, config ServeConfig, provider *instrumentation.Provider, sc *server.ServerContext, logs bridge.Subscriber) error {
	sseServer := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint(config.SSEEndpoint),
		mcpserver.WithMessageEndpoint(config.MessageEndpoint),
	)

	slog.Debug("SSE server configured",
		"sse_endpoint", config.SSEEndpoint,
		"message_endpoint", config.MessageEndpoint)

	return serveHTTP(ctx, config, provider, sc, logs, func(mux *http.ServeMux) {
		mux.Handle(config.SSEEndpoint, sseServer.SSEHandler())
		mux.Handle(config.MessageEndpoint, sseServer.MessageHandler())
		slog.Info("SSE server starting",
			"addr", config.HTTPAddr,
			"sse_endpoint", config.SSEEndpoint,
			"message_endpoint", config.MessageEndpoint)
	})
}
