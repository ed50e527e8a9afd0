package process

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessUnavailable is returned when the child has exited or its
	// stdin pipe is broken.
	ErrProcessUnavailable = errors.New("process unavailable")

	// ErrInvalidLine is returned by WriteLine for text containing a line
	// break, which would be read by the child as more than one command.
	ErrInvalidLine = errors.New("command must be a single line")

	// ErrStopTimeout is returned by Stop when a killed child is not reaped
	// in time, typically because a descendant still holds its stdout open.
	ErrStopTimeout = errors.New("process did not exit")

	// ErrMissingExecutable is returned by Spawn when Config.Executable is empty.
	ErrMissingExecutable = errors.New("executable is required")
)

// SpawnError reports a failure to launch the child process.
type SpawnError struct {
	Executable string
	Err        error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Executable, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SpawnError) Unwrap() error {
	return e.Err
}
