package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-minecraft/internal/bridge"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/server/middleware"
)

// logsPath is the websocket log tail endpoint.
const logsPath = "/logs"

// runStreamableHTTPServer runs the server with Streamable HTTP transport.
func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, config ServeConfig, provider *instrumentation.Provider, sc *server.ServerContext, logs bridge.Subscriber) error {
	mcpHandler := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(config.HTTPEndpoint),
	)

	return serveHTTP(ctx, config, provider, sc, logs, func(mux *http.ServeMux) {
		mux.Handle(config.HTTPEndpoint, mcpHandler)
		slog.Info("streamable HTTP server starting",
			"addr", config.HTTPAddr,
			"endpoint", config.HTTPEndpoint)
	})
}

// newHTTPMux registers the endpoints shared by the HTTP transports: health
// probes, the world archive download and the websocket log tail.
func newHTTPMux(sc *server.ServerContext, logs bridge.Subscriber) *http.ServeMux {
	mux := http.NewServeMux()

	healthChecker := server.NewHealthChecker(sc)
	healthChecker.RegisterHealthEndpoints(mux)

	mux.Handle(server.BackupPath, server.NewBackupHandler(sc))
	if logs != nil {
		mux.Handle(logsPath, bridge.NewLogStreamHandler(logs, slog.Default()))
	}
	return mux
}

// wrapHTTPHandler applies the middleware chain, outermost first: metrics,
// security headers, CORS, then the request size limit.
func wrapHTTPHandler(handler http.Handler, config ServeConfig, provider *instrumentation.Provider) (http.Handler, error) {
	origins, err := middleware.ValidateAllowedOrigins(config.AllowedOrigins)
	if err != nil {
		return nil, fmt.Errorf("invalid allowed origins: %w", err)
	}

	if config.MaxRequestSize > 0 {
		handler = middleware.MaxRequestSize(config.MaxRequestSize)(handler)
	}
	handler = middleware.CORS(origins)(handler)
	handler = middleware.SecurityHeaders(middleware.SecurityHeadersConfig{EnableHSTS: config.EnableHSTS})(handler)
	handler = middleware.HTTPMetrics(provider)(handler)
	return handler, nil
}

// serveHTTP runs an HTTP server with the shared endpoints plus whatever mount
// adds, until ctx ends or the listener fails.
func serveHTTP(ctx context.Context, config ServeConfig, provider *instrumentation.Provider, sc *server.ServerContext, logs bridge.Subscriber, mount func(*http.ServeMux)) error {
	mux := newHTTPMux(sc, logs)
	mount(mux)

	handler, err := wrapHTTPHandler(mux, config, provider)
	if err != nil {
		return err
	}

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if config.Metrics.Enabled && provider != nil && provider.Enabled() {
		metricsServer, err = startMetricsServer(config.Metrics, provider)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// No WriteTimeout: SSE sessions, backups and log tails are long-lived streams.
	httpServer := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	slog.Info("HTTP endpoints registered",
		"addr", config.HTTPAddr,
		"health_endpoints", []string{"/healthz", "/readyz", "/healthz/detailed"},
		"backup_endpoint", server.BackupPath,
		"logs_endpoint", logsPath)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	defer func() {
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error shutting down metrics server", "error", err)
			}
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		slog.Info("HTTP server stopped normally")
	}

	slog.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the dedicated metrics server on a separate port.
// This isolates Prometheus metrics from the main application traffic.
func startMetricsServer(config MetricsServeConfig, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		Enabled:                 config.Enabled,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	go func() {
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()

	slog.Info("metrics server started", "addr", config.Addr, "endpoint", "/metrics")
	return metricsServer, nil
}
