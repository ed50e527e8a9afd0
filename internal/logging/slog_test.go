package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHost(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{
			name:     "empty host",
			host:     "",
			expected: "<empty>",
		},
		{
			name:     "hostname with port",
			host:     "mc.example.com:25575",
			expected: "mc.example.com:25575",
		},
		{
			name:     "IP with port no scheme",
			host:     "10.0.0.1:25575",
			expected: "<redacted-ip>:25575",
		},
		{
			name:     "bare IP address",
			host:     "192.168.1.100",
			expected: "<redacted-ip>",
		},
		{
			name:     "URL with IP",
			host:     "tcp://192.168.1.100:25575",
			expected: "tcp://<redacted-ip>:25575",
		},
		{
			name:     "URL with hostname",
			host:     "tcp://mc.example.com:25575",
			expected: "tcp://mc.example.com:25575",
		},
		{
			name:     "IPv6 with brackets no scheme",
			host:     "[2001:db8:85a3::8a2e:370:7334]:25575",
			expected: "<redacted-ip>:25575",
		},
		{
			name:     "bare IPv6 address",
			host:     "2001:db8::1",
			expected: "<redacted-ip>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeHost(tt.host))
		})
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected string
	}{
		{name: "empty", token: "", expected: "<empty>"},
		{name: "short", token: "abc", expected: "[token:3 chars]"},
		{name: "rcon password", token: "hunter2hunter2", expected: "[token:14 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeToken(tt.token))
		})
	}

	t.Run("no content leaked", func(t *testing.T) {
		result := SanitizeToken("s3cretpass")
		assert.NotContains(t, result, "s3c")
	})
}

func TestSanitizeCommand(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeCommand("   "))
	assert.Equal(t, "save-all", SanitizeCommand("save-all"))
	assert.Equal(t, "op [1 args]", SanitizeCommand("op Alice"))
	assert.Equal(t, "whitelist [2 args]", SanitizeCommand("whitelist add Bob"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "json", "info")
		logger.Info("hello", "k", "v")
		assert.Contains(t, buf.String(), `"msg":"hello"`)
	})

	t.Run("text filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "text", "warn")
		logger.Info("dropped")
		logger.Warn("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "msg=kept")
	})
}

func TestSlogAttributes(t *testing.T) {
	t.Run("Operation", func(t *testing.T) {
		attr := Operation("save_all")
		assert.Equal(t, KeyOperation, attr.Key)
		assert.Equal(t, "save_all", attr.Value.String())
	})

	t.Run("Command", func(t *testing.T) {
		attr := Command("list uuids")
		assert.Equal(t, KeyCommand, attr.Key)
		assert.Equal(t, "list uuids", attr.Value.String())
	})

	t.Run("Phase", func(t *testing.T) {
		attr := Phase(1)
		assert.Equal(t, KeyPhase, attr.Key)
		assert.Equal(t, int64(1), attr.Value.Int64())
	})

	t.Run("PID", func(t *testing.T) {
		attr := PID(4242)
		assert.Equal(t, KeyPID, attr.Key)
		assert.Equal(t, int64(4242), attr.Value.Int64())
	})

	t.Run("Status", func(t *testing.T) {
		attr := Status(StatusSuccess)
		assert.Equal(t, KeyStatus, attr.Key)
		assert.Equal(t, StatusSuccess, attr.Value.String())
	})

	t.Run("Err with nil", func(t *testing.T) {
		attr := Err(nil)
		assert.Equal(t, KeyError, attr.Key)
		assert.Equal(t, "", attr.Value.String())
	})

	t.Run("Err with error", func(t *testing.T) {
		attr := Err(fmt.Errorf("test error message"))
		assert.Equal(t, "test error message", attr.Value.String())
	})

	t.Run("SanitizedErr with IP in error message", func(t *testing.T) {
		attr := SanitizedErr(fmt.Errorf("dial tcp 192.168.1.100:25575: connection refused"))
		assert.Equal(t, KeyError, attr.Key)
		assert.NotContains(t, attr.Value.String(), "192.168.1.100")
		assert.Contains(t, attr.Value.String(), "<redacted-ip>")
		assert.Contains(t, attr.Value.String(), "connection refused")
	})

	t.Run("Host", func(t *testing.T) {
		attr := Host("192.168.1.1:25575")
		assert.Equal(t, KeyHost, attr.Key)
		assert.NotContains(t, attr.Value.String(), "192.168")
	})
}

func TestScopedLoggers(t *testing.T) {
	tests := []struct {
		name  string
		build func(*slog.Logger) *slog.Logger
		key   string
		value string
	}{
		{"operation", func(l *slog.Logger) *slog.Logger { return WithOperation(l, "backup") }, KeyOperation, "backup"},
		{"tool", func(l *slog.Logger) *slog.Logger { return WithTool(l, "minecraft_save_all") }, KeyTool, "minecraft_save_all"},
		{"component", func(l *slog.Logger) *slog.Logger { return WithComponent(l, "supervisor") }, KeyComponent, "supervisor"},
		{"correlation", func(l *slog.Logger) *slog.Logger { return WithCorrelation(l, "abc-123") }, KeyCorrelationID, "abc-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := tt.build(slog.New(slog.NewJSONHandler(&buf, nil)))
			logger.Info("test message")

			output := buf.String()
			assert.Contains(t, output, `"`+tt.key+`"`)
			assert.Contains(t, output, tt.value)
		})
	}
}
