package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

const (
	// DefaultStopCommand is written to stdin by Stop.
	DefaultStopCommand = "stop"

	// DefaultStopTimeout is how long Stop waits for a clean exit before killing.
	DefaultStopTimeout = 30 * time.Second

	// DefaultLineBuffer is the capacity of the Lines channel.
	DefaultLineBuffer = 256

	// maxLineLength bounds a single stdout line.
	maxLineLength = 1 << 20

	// killGrace bounds the wait for the child to be reaped after a kill.
	killGrace = 5 * time.Second
)

// LogLine is one line of child stdout without its terminator.
type LogLine struct {
	Time time.Time
	Text string
}

// Config describes the child to launch.
type Config struct {
	Executable string
	Args       []string
	WorkDir    string
	// Env is appended to the supervisor's own environment.
	Env []string

	// Mirror receives every stdout line verbatim. Defaults to os.Stdout.
	Mirror io.Writer
	// Stderr receives the child's stderr. Defaults to os.Stderr.
	Stderr io.Writer

	StopCommand string
	StopTimeout time.Duration
	LineBuffer  int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Mirror == nil {
		c.Mirror = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	if c.StopCommand == "" {
		c.StopCommand = DefaultStopCommand
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.LineBuffer <= 0 {
		c.LineBuffer = DefaultLineBuffer
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Supervisor owns a running child process.
type Supervisor struct {
	cfg    Config
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	lines chan LogLine
	done  chan struct{}

	// released is closed once line delivery may be abandoned. readLoop then
	// drops lines instead of blocking, so stdout keeps draining to EOF.
	released    chan struct{}
	releaseOnce sync.Once

	// writeMu serializes stdin writes so concurrent lines never interleave.
	writeMu sync.Mutex

	exited     atomic.Bool
	stdinBroke atomic.Bool

	// waitErr is set before done is closed.
	waitErr error
}

// Spawn starts the child described by cfg.
func Spawn(ctx context.Context, cfg Config) (*Supervisor, error) {
	if cfg.Executable == "" {
		return nil, &SpawnError{Err: ErrMissingExecutable}
	}
	cfg = cfg.withDefaults()

	cmd := exec.Command(cfg.Executable, cfg.Args...) //nolint:gosec // launch line is operator configuration
	cmd.Dir = cfg.WorkDir
	cmd.Stderr = cfg.Stderr
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &SpawnError{Executable: cfg.Executable, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Executable: cfg.Executable, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Executable: cfg.Executable, Err: err}
	}

	s := &Supervisor{
		cfg:    cfg,
		cmd:    cmd,
		stdin:  stdin,
		logger: logging.WithComponent(cfg.Logger, "supervisor"),
		lines:    make(chan LogLine, cfg.LineBuffer),
		done:     make(chan struct{}),
		released: make(chan struct{}),
	}

	s.logger.InfoContext(ctx, "process started",
		slog.String("executable", cfg.Executable),
		logging.PID(cmd.Process.Pid))

	go s.readLoop(stdout)
	return s, nil
}

// readLoop mirrors and forwards stdout until EOF, then reaps the child.
func (s *Supervisor) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	mirrorFailed := false
	for scanner.Scan() {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		if _, err := io.WriteString(s.cfg.Mirror, text+"\n"); err != nil && !mirrorFailed {
			mirrorFailed = true
			s.logger.Warn("failed to mirror process output", logging.Err(err))
		}
		select {
		case s.lines <- LogLine{Time: time.Now(), Text: text}:
		case <-s.released:
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("stopped reading process output", logging.Err(err))
	}
	close(s.lines)

	s.waitErr = s.cmd.Wait()
	s.exited.Store(true)

	attrs := []any{logging.PID(s.cmd.Process.Pid)}
	if s.waitErr != nil {
		attrs = append(attrs, logging.Err(s.waitErr))
	}
	s.logger.Info("process exited", attrs...)
	close(s.done)
}

// WriteLine writes text followed by a newline to the child's stdin.
func (s *Supervisor) WriteLine(text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return ErrInvalidLine
	}
	if !s.Alive() {
		return ErrProcessUnavailable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		s.stdinBroke.Store(true)
		s.logger.Warn("process stdin unavailable", logging.Err(err))
		return fmt.Errorf("%w: %v", ErrProcessUnavailable, err)
	}
	return nil
}

// Lines returns the stdout sequence. Every call returns the same channel.
func (s *Supervisor) Lines() <-chan LogLine {
	return s.lines
}

// Done is closed once the child has exited and been reaped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Err returns the child's exit error once Done is closed, nil before.
func (s *Supervisor) Err() error {
	select {
	case <-s.done:
		return s.waitErr
	default:
		return nil
	}
}

// Alive reports whether the child is running and accepting input.
func (s *Supervisor) Alive() bool {
	return !s.exited.Load() && !s.stdinBroke.Load()
}

// PID returns the child's process id.
func (s *Supervisor) PID() int {
	return s.cmd.Process.Pid
}

// Stop asks the child to exit with the stop command and kills it if it has
// not exited within StopTimeout or before ctx ends. Once the child is killed,
// undelivered stdout lines are dropped so it can be reaped even when nobody
// reads Lines.
func (s *Supervisor) Stop(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	default:
	}

	// The write blocks when the child has stopped reading stdin. The kill
	// below breaks the pipe and unblocks it.
	go func() {
		if err := s.WriteLine(s.cfg.StopCommand); err != nil && !errors.Is(err, ErrProcessUnavailable) {
			s.logger.Warn("failed to send stop command", logging.Err(err))
		}
	}()

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		s.logger.Warn("process did not stop in time, killing", slog.Duration(logging.KeyDuration, s.cfg.StopTimeout))
	case <-ctx.Done():
		s.logger.Warn("stop cancelled, killing process", logging.Err(ctx.Err()))
	}

	s.release()
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	_ = s.stdin.Close()

	grace := time.NewTimer(killGrace)
	defer grace.Stop()
	select {
	case <-s.done:
		return nil
	case <-grace.C:
		return fmt.Errorf("%w: process %d not reaped %s after kill", ErrStopTimeout, s.PID(), killGrace)
	}
}

// release stops readLoop from blocking on Lines.
func (s *Supervisor) release() {
	s.releaseOnce.Do(func() { close(s.released) })
}
