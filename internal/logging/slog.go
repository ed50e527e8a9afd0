package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation     = "operation"
	KeyCommand       = "command"
	KeyCorrelationID = "correlation_id"
	KeyPhase         = "phase"
	KeyPID           = "pid"
	KeyDuration      = "duration"
	KeyStatus        = "status"
	KeyError         = "error"
	KeyHost          = "host"
	KeyTool          = "tool"
	KeyComponent     = "component"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ipv4Regex matches IPv4 addresses for sanitization.
var ipv4Regex = regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// ipv6Regex matches IPv6 addresses for sanitization, including the bracketed
// form used in URLs and host:port pairs.
var ipv6Regex = regexp.MustCompile(`\[?([0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}\]?`)

// NewLogger builds the process logger. format is "json" or "text"; level is
// one of debug, info, warn or error.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithComponent returns a logger with the component attribute set.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(KeyComponent, component))
}

// WithCorrelation returns a logger tagged with a correlation id.
func WithCorrelation(logger *slog.Logger, id string) *slog.Logger {
	return logger.With(slog.String(KeyCorrelationID, id))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Command returns a slog attribute for a console command.
func Command(cmd string) slog.Attr {
	return slog.String(KeyCommand, cmd)
}

// Phase returns a slog attribute for a correlation phase index.
func Phase(i int) slog.Attr {
	return slog.Int(KeyPhase, i)
}

// PID returns a slog attribute for a process id.
func PID(pid int) slog.Attr {
	return slog.Int(KeyPID, pid)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizedErr returns a slog attribute for an error with IP addresses redacted.
// Use it for dial errors, which embed the remote address.
func SanitizedErr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, SanitizeHost(err.Error()))
}

// Host returns a slog attribute for a host with IP addresses sanitized.
func Host(host string) slog.Attr {
	return slog.String(KeyHost, SanitizeHost(host))
}

// SanitizeHost returns a sanitized version of the host for logging purposes.
// IP addresses (both IPv4 and IPv6) are redacted while hostnames and ports are
// kept.
//
// Examples:
//   - "192.168.1.100:25575" -> "<redacted-ip>:25575"
//   - "mc.example.com:25575" -> "mc.example.com:25575"
//   - "tcp://[2001:db8::1]:25575" -> "tcp://<redacted-ip>:25575"
//   - "" -> "<empty>"
func SanitizeHost(host string) string {
	if host == "" {
		return "<empty>"
	}

	redactIPs := func(s string) string {
		result := ipv4Regex.ReplaceAllString(s, "<redacted-ip>")
		return ipv6Regex.ReplaceAllString(result, "<redacted-ip>")
	}

	if !strings.Contains(host, "://") {
		return redactIPs(host)
	}

	parsed, err := url.Parse(host)
	if err != nil {
		return redactIPs(host)
	}

	if ipv4Regex.MatchString(parsed.Host) || ipv6Regex.MatchString(parsed.Host) {
		parsed.Host = redactIPs(parsed.Host)
		return parsed.String()
	}

	return host
}

// SanitizeToken returns a masked version of a secret for logging.
// Only the length is revealed.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// SanitizeCommand masks the arguments of a console command while keeping the
// verb, so "op Alice" logs as "op [1 args]".
func SanitizeCommand(cmd string) string {
	fields := strings.Fields(cmd)
	switch len(fields) {
	case 0:
		return "<empty>"
	case 1:
		return fields[0]
	default:
		return fmt.Sprintf("%s [%d args]", fields[0], len(fields)-1)
	}
}
