// Package logging provides structured logging utilities for mcp-minecraft.
//
// It centralizes attribute names so that supervisor, correlator and tool
// handler logs can be joined on the same keys, and it sanitizes values that
// must never reach a log verbatim.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "save_all")
//	logger.Info("correlation finished",
//	    logging.Command("save-all"),
//	    logging.Status(logging.StatusSuccess))
//
// Sanitize sensitive data before logging:
//
//	logger.Debug("rcon login",
//	    logging.Host(addr),
//	    slog.String("password", logging.SanitizeToken(password)))
//
// # Security Considerations
//
//   - RCON passwords are only ever logged as a length indicator
//   - Server addresses have IP addresses redacted
//   - Free-form console commands can be reduced to their verb with SanitizeCommand
package logging
