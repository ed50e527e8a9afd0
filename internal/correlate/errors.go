package correlate

import (
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-minecraft/internal/process"
)

var (
	// ErrTimedOut matches any *TimedOutError.
	ErrTimedOut = errors.New("correlation timed out")

	// ErrDispatchFailed is returned when the command could not be enqueued.
	ErrDispatchFailed = errors.New("command dispatch failed")

	// ErrProcessUnavailable is returned when the log stream closed or the
	// command could not be written to the process.
	ErrProcessUnavailable = process.ErrProcessUnavailable

	// ErrInvalidRequest is returned for a request without a command.
	ErrInvalidRequest = errors.New("invalid correlation request")
)

// TimedOutError reports the phase that was still pending when a timer fired.
// Phase is 1-based.
type TimedOutError struct {
	Phase int
	Name  string
}

// Error implements the error interface.
func (e *TimedOutError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("correlation timed out in phase %d", e.Phase)
	}
	return fmt.Sprintf("correlation timed out in phase %d (%s)", e.Phase, e.Name)
}

// Is reports whether target is ErrTimedOut.
func (e *TimedOutError) Is(target error) bool {
	return target == ErrTimedOut
}
