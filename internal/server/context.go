package server

import (
	"context"
	"io"
	"sync"

	"github.com/giantswarm/mcp-minecraft/internal/backup"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/management"
)

// Minecraft is the management surface exposed to MCP tools.
// management.Service implements it.
type Minecraft interface {
	SaveAll(ctx context.Context) error
	DisableAutomaticSave(ctx context.Context) error
	EnableAutomaticSave(ctx context.Context) error
	ListPlayers(ctx context.Context) (*management.PlayerList, error)
	ListUsers(ctx context.Context) (*management.PlayerList, error)
	RCONCommand(ctx context.Context, command string) (string, error)
	Backup(ctx context.Context, w io.Writer) (backup.Stats, error)
}

// ProcessStatus reports on the supervised game server. process.Supervisor
// implements it.
type ProcessStatus interface {
	Alive() bool
	PID() int
}

// LogStatus reports on the log broadcast. broadcast.Hub implements it.
type LogStatus interface {
	SubscriberCount() int
}

// QueueStatus reports on the command queue. dispatch.Queue implements it.
type QueueStatus interface {
	Len() int
	Closed() bool
}

// Logger is the leveled logging interface used by the server context.
type Logger = logging.Logger

// ServerContext encapsulates all dependencies needed by the MCP server
// and provides a clean abstraction for dependency injection and lifecycle management.
type ServerContext struct {
	minecraft Minecraft
	logger    Logger
	config    *Config

	process ProcessStatus
	logs    LogStatus
	queue   QueueStatus

	instrumentationProvider *instrumentation.Provider

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext with default values.
// Use the provided functional options to customize the context.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: logging.DefaultLogger(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Minecraft returns the management service.
func (sc *ServerContext) Minecraft() Minecraft {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.minecraft
}

// Process returns the supervised process status, or nil when not set.
func (sc *ServerContext) Process() ProcessStatus {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.process
}

// Logs returns the log broadcast status, or nil when not set.
func (sc *ServerContext) Logs() LogStatus {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logs
}

// Queue returns the command queue status, or nil when not set.
func (sc *ServerContext) Queue() QueueStatus {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.queue
}

// Logger returns the logger interface.
func (sc *ServerContext) Logger() Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// InstrumentationProvider returns the OpenTelemetry provider, or nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	provider := sc.InstrumentationProvider()
	if provider == nil || !provider.Enabled() {
		return nil
	}
	return provider.Metrics()
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context")
	if sc.cancel != nil {
		sc.cancel()
	}
	sc.shutdown = true
	return nil
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

func (sc *ServerContext) validate() error {
	if sc.minecraft == nil {
		return ErrMissingMinecraft
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// ReadOnly blocks mutating tools unless listed in AllowedOperations.
	ReadOnly          bool     `json:"readOnly"`
	AllowedOperations []string `json:"allowedOperations"`

	// BackupDir is where the backup tool writes archives.
	BackupDir string `json:"backupDir"`

	// RCONAddress is shown in detailed health output.
	RCONAddress string `json:"rconAddress"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:        "mcp-minecraft",
		Version:           "0.1.0",
		ReadOnly:          false,
		AllowedOperations: nil,
		BackupDir:         "backups",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.AllowedOperations != nil {
		clone.AllowedOperations = make([]string, len(c.AllowedOperations))
		copy(clone.AllowedOperations, c.AllowedOperations)
	}
	return &clone
}

// Allowed reports whether operation is explicitly listed in AllowedOperations.
func (c *Config) Allowed(operation string) bool {
	for _, op := range c.AllowedOperations {
		if op == operation {
			return true
		}
	}
	return false
}
