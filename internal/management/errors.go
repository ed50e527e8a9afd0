package management

import (
	"context"
	"errors"

	"github.com/giantswarm/mcp-minecraft/internal/correlate"
	"github.com/giantswarm/mcp-minecraft/internal/dispatch"
	"github.com/giantswarm/mcp-minecraft/internal/process"
	"github.com/giantswarm/mcp-minecraft/internal/rcon"
)

// UserMessage maps an operation error to a stable message for callers. The
// wrapped detail stays in the logs.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBackupInProgress):
		return "A backup is already in progress."
	case errors.Is(err, ErrNotConfigured):
		return "This operation is not configured on this server."
	case errors.Is(err, correlate.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return "Minecraft did not respond in time."
	case errors.Is(err, process.ErrInvalidLine):
		return "Commands must be a single line."
	case errors.Is(err, correlate.ErrDispatchFailed), errors.Is(err, dispatch.ErrQueueClosed):
		return "Failed to queue the command for the Minecraft process."
	case errors.Is(err, correlate.ErrProcessUnavailable):
		return "Failed to communicate with Minecraft process."
	case errors.Is(err, rcon.ErrAuthFailed):
		return "RCON authentication failed."
	case errors.Is(err, rcon.ErrUnreachable):
		return "Unable to connect to Minecraft."
	case errors.Is(err, rcon.ErrNonASCII):
		return "Commands must be ASCII."
	case errors.Is(err, rcon.ErrPayloadTooLong):
		return "Command is too long."
	case errors.Is(err, rcon.ErrMalformedResponse), errors.Is(err, ErrUnexpectedResponse):
		return "Minecraft responded in an unexpected way."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	default:
		return "The operation failed."
	}
}
