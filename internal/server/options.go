package server

import (
	"errors"

	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithMinecraft sets the management service for the ServerContext.
func WithMinecraft(m Minecraft) Option {
	return func(sc *ServerContext) error {
		if m == nil {
			return ErrMissingMinecraft
		}
		sc.minecraft = m
		return nil
	}
}

// WithProcess sets the process status used by readiness checks.
func WithProcess(p ProcessStatus) Option {
	return func(sc *ServerContext) error {
		sc.process = p
		return nil
	}
}

// WithLogStatus sets the log broadcast used by detailed health output.
func WithLogStatus(l LogStatus) Option {
	return func(sc *ServerContext) error {
		sc.logs = l
		return nil
	}
}

// WithQueueStatus sets the command queue used by health checks.
func WithQueueStatus(q QueueStatus) Option {
	return func(sc *ServerContext) error {
		sc.queue = q
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithServerName sets the server name in the configuration.
func WithServerName(name string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ServerName = name
		return nil
	}
}

// WithReadOnly enables or disables read-only mode.
func WithReadOnly(enabled bool) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.ReadOnly = enabled
		return nil
	}
}

// WithAllowedOperations lists operations permitted in read-only mode.
func WithAllowedOperations(ops []string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		if ops != nil {
			sc.config.AllowedOperations = make([]string, len(ops))
			copy(sc.config.AllowedOperations, ops)
		}
		return nil
	}
}

// WithBackupDir sets the directory the backup tool writes to.
func WithBackupDir(dir string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.BackupDir = dir
		return nil
	}
}

// WithInstrumentationProvider sets the OpenTelemetry instrumentation provider.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// Error definitions for ServerContext validation and operations.
var (
	ErrMissingMinecraft = errors.New("minecraft service is required")
	ErrMissingLogger    = errors.New("logger is required")
	ErrMissingConfig    = errors.New("configuration is required")
	ErrServerShutdown   = errors.New("server context has been shutdown")
)
