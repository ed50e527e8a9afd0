// Package instrumentation provides OpenTelemetry instrumentation for the
// mcp-minecraft server.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - mcp_tool_calls_total: Counter of MCP tool calls by tool and status
//
// Management Metrics:
//   - minecraft_operations_total / minecraft_operation_duration_seconds:
//     management operations (save_all, list_players, backup, ...) by status
//   - minecraft_correlations_total / minecraft_correlation_duration_seconds:
//     console command correlations by outcome (matched, timed_out, ...)
//   - minecraft_rcon_commands_total / minecraft_rcon_command_duration_seconds:
//     RCON round trips by status
//   - minecraft_backup_bytes_total: compressed bytes streamed by backups
//
// Log Pipeline Metrics:
//   - minecraft_log_lines_dropped_total: lines discarded for slow subscribers
//   - minecraft_log_subscribers: current broadcast subscribers (gauge)
//   - minecraft_dispatch_queue_depth: commands waiting for stdin (gauge)
//   - minecraft_process_up: 1 while the game server runs (gauge)
//
// The phase label on correlation metrics is only attached when detailed
// labels are enabled.
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>), management
// operations (management.<op>), correlator executions (correlate.execute) and
// RCON round trips (rcon.command). Command arguments are never attached to
// spans; only the command verb is.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp, stdout or none (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: mcp-minecraft)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordOperation(ctx, "save_all", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
