package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/mcp-minecraft/internal/backup"
	"github.com/giantswarm/mcp-minecraft/internal/bridge"
	"github.com/giantswarm/mcp-minecraft/internal/broadcast"
	"github.com/giantswarm/mcp-minecraft/internal/correlate"
	"github.com/giantswarm/mcp-minecraft/internal/dispatch"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/k8s"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/management"
	"github.com/giantswarm/mcp-minecraft/internal/process"
	"github.com/giantswarm/mcp-minecraft/internal/rcon"
	"github.com/giantswarm/mcp-minecraft/internal/server"
	"github.com/giantswarm/mcp-minecraft/internal/tools/minecraft"
)

// secretLookupTimeout bounds the Kubernetes API call for the RCON password.
const secretLookupTimeout = 15 * time.Second

// newServeCmd creates the Cobra command for starting the MCP server.
func newServeCmd() *cobra.Command {
	return newServeCmdWithConfig(&ServeConfig{})
}

// newServeCmdWithConfig binds the serve flags to config.
func newServeCmdWithConfig(config *ServeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP Minecraft server",
		Long: `Start a Minecraft server as a child process and expose tools to manage it
via the Model Context Protocol.

The server console is multiplexed: log lines are broadcast to every caller and
commands are written to stdin in order. Operations such as save-all wait for
the matching reply in the log within a bounded time.

Supports multiple transport types:
  - stdio: Standard input/output (default). The game console is mirrored to stderr.
  - sse: Server-Sent Events over HTTP
  - streamable-http: Streamable HTTP transport

HTTP transports also serve /healthz, /readyz, /backup (world archive download)
and /logs (websocket log tail).

RCON password sources, in order:
  - --rcon-password or the RCON_PASSWORD environment variable
  - --rcon-password-secret namespace/name[:key], read from a Kubernetes Secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadServeEnvVars(cmd, config)

			if cmd.Flags().Changed("rcon-password") {
				slog.Warn("RCON password provided via CLI flag; it may be visible in process listings. Prefer RCON_PASSWORD")
			}

			return runServe(cmd.Context(), *config)
		},
	}

	f := cmd.Flags()

	// Transport flags
	f.StringVar(&config.Transport, "transport", transportStdio, "Transport type: stdio, sse, or streamable-http")
	f.StringVar(&config.HTTPAddr, "http-addr", ":8080", "HTTP server address (for sse and streamable-http transports)")
	f.StringVar(&config.SSEEndpoint, "sse-endpoint", "/sse", "SSE endpoint path (for sse transport)")
	f.StringVar(&config.MessageEndpoint, "message-endpoint", "/message", "Message endpoint path (for sse transport)")
	f.StringVar(&config.HTTPEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http transport)")

	// Game server process flags
	f.StringVar(&config.Process.Java, "java", "java", "Java executable used to launch the server")
	f.StringVar(&config.Process.ServerJar, "server-jar", "server.jar", "Server jar, relative to --server-dir")
	f.StringSliceVar(&config.Process.JavaArgs, "java-arg", nil, "Extra JVM argument placed before -jar (repeatable), e.g. --java-arg=-Xmx2G")
	f.StringVar(&config.Process.ServerDir, "server-dir", ".", "Working directory of the Minecraft server")
	f.StringVar(&config.Process.WorldDir, "world-dir", "world", "World directory to back up, relative to --server-dir")
	f.DurationVar(&config.Process.StopTimeout, "stop-timeout", 30*time.Second, "How long to wait for the server to stop before killing it (can also be set via STOP_TIMEOUT env var)")

	// RCON flags
	f.StringVar(&config.RCON.Address, "rcon-address", "127.0.0.1:25575", "RCON address host:port (can also be set via RCON_ADDRESS env var)")
	f.StringVar(&config.RCON.Password, "rcon-password", "", "RCON password (can also be set via RCON_PASSWORD env var)")
	f.StringVar(&config.RCON.PasswordSecret, "rcon-password-secret", "", "Kubernetes Secret holding the RCON password as namespace/name[:key] (can also be set via RCON_PASSWORD_SECRET env var)")
	f.DurationVar(&config.RCON.Timeout, "rcon-timeout", rcon.DefaultTimeout, "Timeout for a single RCON command (can also be set via RCON_TIMEOUT env var)")
	f.BoolVar(&config.RCON.InCluster, "in-cluster", false, "Use the pod service account to read --rcon-password-secret")
	f.StringVar(&config.RCON.Kubeconfig, "kubeconfig", "", "Kubeconfig used to read --rcon-password-secret outside a cluster")

	// Management flags
	f.StringVar(&config.PolicyFile, "policy-file", "", "YAML file overriding operation commands and reply patterns (can also be set via POLICY_FILE env var)")
	f.StringVar(&config.BackupDir, "backup-dir", "backups", "Directory the minecraft_backup tool writes archives to")
	f.BoolVar(&config.ReadOnly, "read-only", false, "Block mutating tools (autosave toggles, RCON commands)")
	f.StringSliceVar(&config.AllowedOperations, "allowed-operations", nil, "Mutating operations still permitted in read-only mode, e.g. enable_autosave")
	f.StringVar(&config.SocketPath, "socket", "", "Unix socket path for the local console bridge (disabled when empty)")

	// HTTP flags
	f.StringVar(&config.AllowedOrigins, "allowed-origins", "", "Comma-separated CORS origins for HTTP transports (can also be set via ALLOWED_ORIGINS env var)")
	f.BoolVar(&config.EnableHSTS, "enable-hsts", false, "Send Strict-Transport-Security on HTTP responses (can also be set via ENABLE_HSTS env var)")
	f.Int64Var(&config.MaxRequestSize, "max-request-size", 1<<20, "Maximum HTTP request body size in bytes, 0 disables the limit (can also be set via MAX_REQUEST_SIZE env var)")
	f.BoolVar(&config.Metrics.Enabled, "enable-metrics", true, "Serve Prometheus metrics on a dedicated listener when instrumentation is enabled")
	f.StringVar(&config.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Address of the dedicated metrics listener (can also be set via METRICS_ADDR env var)")

	// Logging flags
	f.BoolVar(&config.DebugMode, "debug", false, "Enable debug logging (default: false)")
	f.StringVar(&config.LogFormat, "log-format", logFormatText, "Log format: text or json")

	return cmd
}

// runServe contains the main server logic with support for multiple transports.
func runServe(parent context.Context, config ServeConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}

	// Logs always go to stderr: stdout is either the MCP stdio channel or the
	// game console mirror.
	logger := logging.NewLogger(os.Stderr, config.LogFormat, config.logLevel())
	slog.SetDefault(logger)

	policies := management.DefaultPolicies()
	if config.PolicyFile != "" {
		loaded, err := management.LoadPolicyFile(config.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load policy file: %w", err)
		}
		policies = loaded
		logger.Info("loaded operation policies", "path", config.PolicyFile, "operations", len(policies))
	}

	// Setup graceful shutdown - listen for both SIGINT and SIGTERM
	signalCtx, stopSignals := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	rconPassword, err := resolveRCONPassword(signalCtx, config.RCON, logger)
	if err != nil {
		return err
	}

	// Initialize OpenTelemetry instrumentation provider
	instrumentationConfig := instrumentation.DefaultConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	instrumentationProvider, err := instrumentation.NewProvider(signalCtx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if shutdownErr := instrumentationProvider.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(shutdownErr))
		}
	}()
	if instrumentationProvider.Enabled() {
		logger.Info("OpenTelemetry instrumentation enabled",
			"metrics", instrumentationConfig.MetricsExporter,
			"tracing", instrumentationConfig.TracingExporter)
	}
	var metrics *instrumentation.Metrics
	if instrumentationProvider.Enabled() {
		metrics = instrumentationProvider.Metrics()
	}

	// The game console goes to stdout unless stdout carries MCP frames.
	var mirror io.Writer = os.Stdout
	if config.Transport == transportStdio {
		mirror = os.Stderr
	}

	executable, javaArgs := config.Process.Executable()
	sup, err := process.Spawn(signalCtx, process.Config{
		Executable:  executable,
		Args:        javaArgs,
		WorkDir:     config.Process.ServerDir,
		Mirror:      mirror,
		Stderr:      os.Stderr,
		StopTimeout: config.Process.StopTimeout,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to start minecraft server: %w", err)
	}

	// serveCtx ends on a signal or when the game server exits on its own.
	serveCtx, cancelServe := context.WithCancel(signalCtx)
	defer cancelServe()

	// Background tasks outlive serveCtx so that the supervisor can be stopped
	// through the queue before they are cancelled.
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	group, groupCtx := errgroup.WithContext(bgCtx)

	hub := broadcast.New(broadcast.WithDropHook(func() {
		metrics.RecordDroppedLine(context.Background())
	}))
	queue := dispatch.New(sup, dispatch.WithLogger(logger))

	// The hub and queue carry every tool call, so losing either ends serving.
	goEssential(group, cancelServe, func() error { return hub.Run(groupCtx, sup.Lines()) })
	goEssential(group, cancelServe, func() error { return queue.Run(groupCtx) })
	group.Go(func() error {
		select {
		case <-sup.Done():
			if exitErr := sup.Err(); exitErr != nil {
				logger.Error("minecraft server exited", logging.Err(exitErr))
			} else {
				logger.Info("minecraft server exited")
			}
			cancelServe()
		case <-groupCtx.Done():
		}
		return nil
	})

	if config.SocketPath != "" {
		socket := &bridge.SocketServer{
			Path:     config.SocketPath,
			Logs:     hub,
			Commands: queue,
			Logger:   logger,
		}
		if err := socket.Listen(); err != nil {
			stopProcess(sup, config.Process.StopTimeout, logger)
			cancelBackground()
			_ = group.Wait()
			return fmt.Errorf("failed to open console socket: %w", err)
		}
		goOptional(group, logger, "console socket", func() error { return socket.Serve(groupCtx) })
	}

	defer func() {
		stopProcess(sup, config.Process.StopTimeout, logger)
		cancelBackground()
		queue.Close()
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background task failed", logging.Err(err))
		}
	}()

	console := correlate.New(hub, queue,
		correlate.WithLogger(logger),
		correlate.WithMetrics(metrics),
	)

	serviceOpts := []management.Option{
		management.WithPolicies(policies),
		management.WithArchiver(&backup.Archiver{Root: config.Process.WorldPath()}),
		management.WithMetrics(metrics),
		management.WithLogger(logger),
	}
	if rconPassword != "" {
		serviceOpts = append(serviceOpts, management.WithRemoteConsole(
			rcon.NewClient(config.RCON.Address, rconPassword,
				rcon.WithTimeout(config.RCON.Timeout),
				rcon.WithLogger(logger),
			),
		))
		logger.Info("RCON enabled", logging.Host(config.RCON.Address))
	}
	service := management.NewService(console, serviceOpts...)

	serverConfig := server.NewDefaultConfig()
	serverConfig.Version = rootCmd.Version
	serverConfig.ReadOnly = config.ReadOnly
	serverConfig.AllowedOperations = config.AllowedOperations
	serverConfig.BackupDir = config.BackupDir
	if rconPassword != "" {
		serverConfig.RCONAddress = config.RCON.Address
	}
	serverConfig.LogLevel = config.logLevel()
	serverConfig.LogFormat = config.LogFormat

	serverContext, err := server.NewServerContext(serveCtx,
		server.WithMinecraft(service),
		server.WithProcess(sup),
		server.WithLogStatus(hub),
		server.WithQueueStatus(queue),
		server.WithLogger(logging.NewSlogAdapter(logger)),
		server.WithConfig(serverConfig),
		server.WithInstrumentationProvider(instrumentationProvider),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	if reg, err := metrics.ObserveRuntime(hub.SubscriberCount, queue.Len, sup.Alive); err != nil {
		logger.Warn("failed to register runtime gauges", logging.Err(err))
	} else if reg != nil {
		defer func() { _ = reg.Unregister() }()
	}

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("mcp-minecraft", rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := minecraft.RegisterMinecraftTools(mcpSrv, serverContext); err != nil {
		return fmt.Errorf("failed to register minecraft tools: %w", err)
	}

	switch config.Transport {
	case transportStdio:
		return runStdioServer(serveCtx, mcpSrv, logger)
	case transportSSE:
		logger.Info("starting MCP Minecraft server", "transport", config.Transport)
		return runSSEServer(serveCtx, mcpSrv, config, instrumentationProvider, serverContext, hub)
	case transportStreamableHTTP:
		logger.Info("starting MCP Minecraft server", "transport", config.Transport)
		return runStreamableHTTPServer(serveCtx, mcpSrv, config, instrumentationProvider, serverContext, hub)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", config.Transport)
	}
}

// resolveRCONPassword returns the configured password, reading it from a
// Kubernetes Secret when one is referenced. An empty result disables RCON.
func resolveRCONPassword(ctx context.Context, config RCONServeConfig, logger *slog.Logger) (string, error) {
	if config.PasswordSecret == "" {
		return config.Password, nil
	}

	ref, err := k8s.ParseSecretRef(config.PasswordSecret)
	if err != nil {
		return "", fmt.Errorf("invalid --rcon-password-secret: %w", err)
	}

	client, err := k8s.NewClientset(k8s.ClientConfig{
		InCluster:      config.InCluster,
		KubeconfigPath: config.Kubeconfig,
		Logger:         logger,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, secretLookupTimeout)
	defer cancel()

	password, err := k8s.PasswordFromSecret(ctx, client, ref)
	if err != nil {
		return "", fmt.Errorf("failed to read RCON password: %w", err)
	}
	logger.Info("loaded RCON password from secret", "secret", ref.String())
	return password, nil
}

// stopProcess asks the game server to stop and waits for it, bounded by the
// stop timeout plus a small grace period for the kill.
func stopProcess(sup *process.Supervisor, timeout time.Duration, logger *slog.Logger) {
	if !sup.Alive() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()

	logger.Info("stopping minecraft server", logging.PID(sup.PID()))
	if err := sup.Stop(ctx); err != nil {
		logger.Error("error stopping minecraft server", logging.Err(err))
	}
}

// goEssential runs fn in the group and ends serving once it returns.
func goEssential(group *errgroup.Group, cancelServe context.CancelFunc, fn func() error) {
	group.Go(func() error {
		defer cancelServe()
		return fn()
	})
}

// goOptional runs fn in the group and only logs its error, so a failing
// side channel does not cancel the group context shared with the console.
func goOptional(group *errgroup.Group, logger *slog.Logger, name string, fn func() error) {
	group.Go(func() error {
		if err := fn(); err != nil {
			logger.Error(name+" stopped", logging.Err(err))
		}
		return nil
	})
}
