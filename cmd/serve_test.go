package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-minecraft/internal/process"
)

func TestServeCmdProperties(t *testing.T) {
	cmd := newServeCmd()

	assert.Equal(t, "serve", cmd.Use)
	assert.Equal(t, "Start the MCP Minecraft server", cmd.Short)
	assert.True(t, strings.Contains(cmd.Long, "Model Context Protocol"))
	assert.True(t, strings.Contains(cmd.Long, "stdio"))
	assert.True(t, strings.Contains(cmd.Long, "sse"))
	assert.True(t, strings.Contains(cmd.Long, "streamable-http"))
}

func TestServeCmdFlags(t *testing.T) {
	cmd := newServeCmd()

	flagNames := []string{
		"transport",
		"http-addr",
		"sse-endpoint",
		"message-endpoint",
		"http-endpoint",
		"java",
		"server-jar",
		"java-arg",
		"server-dir",
		"world-dir",
		"stop-timeout",
		"rcon-address",
		"rcon-password",
		"rcon-password-secret",
		"rcon-timeout",
		"in-cluster",
		"kubeconfig",
		"policy-file",
		"backup-dir",
		"read-only",
		"allowed-operations",
		"socket",
		"allowed-origins",
		"enable-hsts",
		"max-request-size",
		"enable-metrics",
		"metrics-addr",
		"debug",
		"log-format",
	}

	for _, flagName := range flagNames {
		flag := cmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "Flag %s should exist", flagName)
	}
}

func TestServeCmdFlagDefaults(t *testing.T) {
	cmd := newServeCmd()

	tests := []struct {
		flagName string
		expected string
	}{
		{"transport", "stdio"},
		{"http-addr", ":8080"},
		{"sse-endpoint", "/sse"},
		{"message-endpoint", "/message"},
		{"http-endpoint", "/mcp"},
		{"java", "java"},
		{"server-jar", "server.jar"},
		{"world-dir", "world"},
		{"stop-timeout", "30s"},
		{"rcon-address", "127.0.0.1:25575"},
		{"rcon-timeout", "10s"},
		{"backup-dir", "backups"},
		{"read-only", "false"},
		{"metrics-addr", ":9090"},
		{"log-format", "text"},
	}

	for _, test := range tests {
		flag := cmd.Flags().Lookup(test.flagName)
		require.NotNil(t, flag, test.flagName)
		assert.Equal(t, test.expected, flag.DefValue,
			"Flag %s should have default value %s", test.flagName, test.expected)
	}
}

func TestServeCmdFlagUsage(t *testing.T) {
	cmd := newServeCmd()

	usage := cmd.UsageString()
	assert.Contains(t, usage, "--transport")
	assert.Contains(t, usage, "stdio, sse, or streamable-http")
	assert.Contains(t, usage, "RCON_PASSWORD")
}

func TestServeCmdEnvFallbacks(t *testing.T) {
	t.Setenv("RCON_ADDRESS", "mc.internal:25575")
	t.Setenv("RCON_PASSWORD", "from-env")
	t.Setenv("STOP_TIMEOUT", "45s")
	t.Setenv("ENABLE_HSTS", "true")
	t.Setenv("METRICS_ADDR", ":9191")

	var config ServeConfig
	cmd := newServeCmdWithConfig(&config)
	require.NoError(t, cmd.Flags().Parse([]string{"--rcon-address", "127.0.0.1:1"}))

	loadServeEnvVars(cmd, &config)

	assert.Equal(t, "127.0.0.1:1", config.RCON.Address, "explicit flags win over the environment")
	assert.Equal(t, "from-env", config.RCON.Password)
	assert.Equal(t, 45*time.Second, config.Process.StopTimeout)
	assert.True(t, config.EnableHSTS)
	assert.Equal(t, ":9191", config.Metrics.Addr)
}

func TestServeCmdEnvFallbacks_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("STOP_TIMEOUT", "soon")
	t.Setenv("MAX_REQUEST_SIZE", "big")

	var config ServeConfig
	cmd := newServeCmdWithConfig(&config)
	require.NoError(t, cmd.Flags().Parse(nil))

	loadServeEnvVars(cmd, &config)

	assert.Equal(t, 30*time.Second, config.Process.StopTimeout)
	assert.Equal(t, int64(1<<20), config.MaxRequestSize)
}

func TestRunServe_SpawnFailure(t *testing.T) {
	config := validServeConfig()
	config.Process.Java = filepath.Join(t.TempDir(), "no-such-java")
	config.Transport = transportStreamableHTTP
	config.HTTPAddr = "127.0.0.1:0"

	err := runServe(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start minecraft server")

	var spawnErr *process.SpawnError
	assert.True(t, errors.As(err, &spawnErr))
}

func TestRunServe_InvalidConfig(t *testing.T) {
	config := validServeConfig()
	config.Transport = "carrier-pigeon"

	err := runServe(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport type")
}

func TestResolveRCONPassword_Plain(t *testing.T) {
	password, err := resolveRCONPassword(context.Background(), RCONServeConfig{Password: "hunter2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	password, err = resolveRCONPassword(context.Background(), RCONServeConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, password, "no password disables RCON")
}

func TestResolveRCONPassword_InvalidSecretRef(t *testing.T) {
	_, err := resolveRCONPassword(context.Background(), RCONServeConfig{PasswordSecret: "a/b/c/d"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --rcon-password-secret")
}
