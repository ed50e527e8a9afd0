// Package server provides the ServerContext pattern and related infrastructure
// for the MCP Minecraft server.
//
// ServerContext carries the management service, status views of the
// supervised process, log broadcast and command queue, the logger, the
// configuration and the instrumentation provider. Dependencies are injected
// with functional options:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithMinecraft(service),
//		server.WithProcess(supervisor),
//		server.WithLogStatus(hub),
//		server.WithQueueStatus(queue),
//		server.WithReadOnly(true),
//	)
//	if err != nil {
//		return err
//	}
//	defer sc.Shutdown()
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. Readiness
// fails while the game server process is not running or the command queue has
// closed. MetricsServer serves Prometheus metrics on a separate port.
package server
