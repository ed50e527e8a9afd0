package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-minecraft/internal/management"
)

// Transport type constants for the MCP server.
const (
	transportStdio          = "stdio"
	transportSSE            = "sse"
	transportStreamableHTTP = "streamable-http"
)

// envValueTrue is the string value used to enable boolean environment variables.
const envValueTrue = "true"

// Log formats accepted by --log-format.
const (
	logFormatText = "text"
	logFormatJSON = "json"
)

// mutatingOperations are the operations blocked by --read-only unless listed
// in --allowed-operations.
var mutatingOperations = []string{
	management.OpEnableAutoSave,
	management.OpDisableAutoSave,
	management.OpRCONCommand,
}

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	// Transport settings
	Transport       string
	HTTPAddr        string
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string

	// Game server process
	Process ProcessServeConfig

	// RCON
	RCON RCONServeConfig

	// Management
	PolicyFile        string
	BackupDir         string
	ReadOnly          bool
	AllowedOperations []string

	// Local console bridge socket; empty disables it.
	SocketPath string

	// HTTP hardening
	AllowedOrigins string
	EnableHSTS     bool
	MaxRequestSize int64

	Metrics MetricsServeConfig

	DebugMode bool
	LogFormat string
}

// ProcessServeConfig describes how the Minecraft server is launched.
type ProcessServeConfig struct {
	Java        string
	ServerJar   string
	JavaArgs    []string
	ServerDir   string
	WorldDir    string
	StopTimeout time.Duration
}

// RCONServeConfig holds the remote console settings.
type RCONServeConfig struct {
	Address        string
	Password       string
	PasswordSecret string
	Timeout        time.Duration

	// Kubernetes access for PasswordSecret
	InCluster  bool
	Kubeconfig string
}

// MetricsServeConfig configures the dedicated metrics listener.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// Enabled reports whether an RCON password source is configured.
func (c RCONServeConfig) Enabled() bool {
	return c.Password != "" || c.PasswordSecret != ""
}

// Executable returns the program and arguments used to start the server.
// The default launch line is `java -jar server.jar --nogui`.
func (c ProcessServeConfig) Executable() (string, []string) {
	args := slices.Clone(c.JavaArgs)
	args = append(args, "-jar", c.ServerJar, "--nogui")
	return c.Java, args
}

// WorldPath resolves the world directory relative to the server directory.
func (c ProcessServeConfig) WorldPath() string {
	if filepath.IsAbs(c.WorldDir) {
		return c.WorldDir
	}
	return filepath.Join(c.ServerDir, c.WorldDir)
}

// Validate checks the configuration before anything is started.
func (c *ServeConfig) Validate() error {
	switch c.Transport {
	case transportStdio, transportSSE, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", c.Transport)
	}

	switch c.LogFormat {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("unsupported log format: %s (supported: text, json)", c.LogFormat)
	}

	if c.Process.Java == "" {
		return errors.New("--java must not be empty")
	}
	if c.Process.ServerJar == "" {
		return errors.New("--server-jar must not be empty")
	}
	if c.Process.StopTimeout <= 0 {
		return errors.New("--stop-timeout must be positive")
	}
	if c.BackupDir == "" {
		return errors.New("--backup-dir must not be empty")
	}

	if c.RCON.Password != "" && c.RCON.PasswordSecret != "" {
		return errors.New("--rcon-password and --rcon-password-secret are mutually exclusive")
	}
	if c.RCON.Enabled() && c.RCON.Address == "" {
		return errors.New("--rcon-address is required when an RCON password is configured")
	}
	if c.RCON.Timeout <= 0 {
		return errors.New("--rcon-timeout must be positive")
	}

	for _, op := range c.AllowedOperations {
		if !slices.Contains(mutatingOperations, op) {
			return fmt.Errorf("unknown operation in --allowed-operations: %q (supported: %s)", op, strings.Join(mutatingOperations, ", "))
		}
	}

	if c.MaxRequestSize < 0 {
		return errors.New("--max-request-size must not be negative")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("--metrics-addr is required when metrics are enabled")
	}
	return nil
}

// logLevel returns the slog level for the configured debug mode.
func (c *ServeConfig) logLevel() string {
	if c.DebugMode {
		return slog.LevelDebug.String()
	}
	return slog.LevelInfo.String()
}

// loadEnvIfEmpty loads an environment variable into a string pointer if it's empty.
func loadEnvIfEmpty(target *string, envKey string) {
	if *target == "" {
		*target = os.Getenv(envKey)
	}
}

// parseDurationEnv parses a duration from an environment variable value.
// Returns the parsed duration and true if successful, or zero and false if parsing fails.
// Logs a warning if the value is present but invalid.
func parseDurationEnv(value, envName string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment", "env", envName, "value", value, "error", err)
		return 0, false
	}
	return d, true
}

// parseInt64Env parses an integer from an environment variable value.
func parseInt64Env(value, envName string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		slog.Warn("invalid integer in environment", "env", envName, "value", value, "error", err)
		return 0, false
	}
	return n, true
}

// loadServeEnvVars fills settings from the environment. A variable only
// applies when the matching flag was not set explicitly.
func loadServeEnvVars(cmd *cobra.Command, config *ServeConfig) {
	changed := cmd.Flags().Changed

	if !changed("rcon-address") {
		if v := os.Getenv("RCON_ADDRESS"); v != "" {
			config.RCON.Address = v
		}
	}
	if !changed("rcon-password") {
		loadEnvIfEmpty(&config.RCON.Password, "RCON_PASSWORD")
	}
	if !changed("rcon-password-secret") {
		loadEnvIfEmpty(&config.RCON.PasswordSecret, "RCON_PASSWORD_SECRET")
	}
	if !changed("rcon-timeout") {
		if d, ok := parseDurationEnv(os.Getenv("RCON_TIMEOUT"), "RCON_TIMEOUT"); ok {
			config.RCON.Timeout = d
		}
	}
	if !changed("stop-timeout") {
		if d, ok := parseDurationEnv(os.Getenv("STOP_TIMEOUT"), "STOP_TIMEOUT"); ok {
			config.Process.StopTimeout = d
		}
	}
	if !changed("allowed-origins") {
		loadEnvIfEmpty(&config.AllowedOrigins, "ALLOWED_ORIGINS")
	}
	if !changed("enable-hsts") && os.Getenv("ENABLE_HSTS") == envValueTrue {
		config.EnableHSTS = true
	}
	if !changed("max-request-size") {
		if n, ok := parseInt64Env(os.Getenv("MAX_REQUEST_SIZE"), "MAX_REQUEST_SIZE"); ok {
			config.MaxRequestSize = n
		}
	}
	if !changed("metrics-addr") {
		if v := os.Getenv("METRICS_ADDR"); v != "" {
			config.Metrics.Addr = v
		}
	}
	if !changed("policy-file") {
		loadEnvIfEmpty(&config.PolicyFile, "POLICY_FILE")
	}
}
