// Package bridge exposes the console to local and remote tools.
//
// SocketServer serves a unix socket carrying newline-delimited log lines out
// and newline-delimited commands in. LogStreamHandler tails the log over a
// websocket and is read-only.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/giantswarm/mcp-minecraft/internal/broadcast"
	"github.com/giantswarm/mcp-minecraft/internal/dispatch"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/process"
)

const (
	// DefaultCommandRate is the sustained inbound commands per second per connection.
	DefaultCommandRate = 10
	// DefaultCommandBurst is the inbound burst per connection.
	DefaultCommandBurst = 20

	writeTimeout   = 5 * time.Second
	maxAcceptDelay = time.Second
)

// Subscriber is the log broadcast. broadcast.Hub implements it.
type Subscriber interface {
	Subscribe() (*broadcast.Subscription, error)
	Unsubscribe(*broadcast.Subscription)
}

// Submitter accepts console commands. dispatch.Queue implements it.
type Submitter interface {
	Submit(ctx context.Context, command string) (*dispatch.Receipt, error)
}

// SocketServer bridges a unix socket to the console.
type SocketServer struct {
	Path     string
	Logs     Subscriber
	Commands Submitter
	// Rate and Burst limit inbound commands per connection. Zero values use
	// DefaultCommandRate and DefaultCommandBurst.
	Rate   rate.Limit
	Burst  int
	Logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// Listen removes a stale socket at Path and starts listening.
func (s *SocketServer) Listen() error {
	if s.Path == "" {
		return errors.New("socket path is required")
	}
	if err := removeStaleSocket(s.Path); err != nil {
		return err
	}

	l, err := net.Listen("unix", s.Path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Path, err)
	}

	s.mu.Lock()
	s.listener = l
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx ends. It calls Listen first when the
// server is not listening yet. Temporary accept errors are retried with
// backoff. On return every connection is closed and the socket file is removed.
func (s *SocketServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	listening := s.listener != nil
	s.mu.Unlock()
	if !listening {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	logger := s.logger()
	logger.Info("console socket listening", slog.String("path", s.Path))

	stop := context.AfterFunc(ctx, s.shutdown)
	defer stop()

	var retryDelay time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() == nil && isTemporary(err) {
				retryDelay = nextAcceptDelay(retryDelay)
				logger.Warn("accept failed, retrying", logging.Err(err), slog.Duration("retry_in", retryDelay))
				timer := time.NewTimer(retryDelay)
				select {
				case <-timer.C:
					continue
				case <-ctx.Done():
					timer.Stop()
				}
			}
			s.shutdown()
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		retryDelay = 0

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

// isTemporary reports whether an accept error is transient, such as running
// out of file descriptors.
func isTemporary(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return false
	}
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

// nextAcceptDelay doubles the previous delay, starting at 5ms and capped
// at maxAcceptDelay.
func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	return min(prev*2, maxAcceptDelay)
}

func (s *SocketServer) handle(ctx context.Context, conn net.Conn) {
	logger := s.logger()
	sub, err := s.Logs.Subscribe()
	if err != nil {
		logger.Warn("rejecting socket client, log stream closed", logging.Err(err))
		_ = conn.Close()
		return
	}
	defer s.Logs.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer func() { _ = conn.Close() }()
		s.pumpLogs(ctx, conn, sub)
	}()

	s.readCommands(ctx, conn)
	cancel()
	_ = conn.Close()
	<-writerDone
}

// pumpLogs writes each log line to conn until the subscription or ctx ends.
func (s *SocketServer) pumpLogs(ctx context.Context, conn net.Conn, sub *broadcast.Subscription) {
	w := bufio.NewWriter(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-sub.C():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := w.WriteString(line.Text + "\n"); err != nil {
				return
			}
			// Batch lines already waiting, then flush.
			if len(sub.C()) == 0 {
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}
}

// readCommands submits each inbound line until EOF or ctx ends.
func (s *SocketServer) readCommands(ctx context.Context, conn net.Conn) {
	logger := s.logger()
	limit, burst := s.Rate, s.Burst
	if limit <= 0 {
		limit = DefaultCommandRate
	}
	if burst <= 0 {
		burst = DefaultCommandBurst
	}
	limiter := rate.NewLimiter(limit, burst)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		_, err := s.Commands.Submit(ctx, cmd)
		switch {
		case err == nil:
			logger.Debug("socket command queued", logging.Command(logging.SanitizeCommand(cmd)))
		case errors.Is(err, process.ErrInvalidLine):
			continue
		default:
			logger.Warn("socket command rejected", logging.Err(err))
			return
		}
	}
}

func (s *SocketServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *SocketServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// shutdown closes the listener and every connection, then removes the
// socket file. It is safe to call more than once.
func (s *SocketServer) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conns == nil {
		return
	}
	_ = s.listener.Close()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger().Warn("failed to remove console socket", logging.Err(err))
	}
}

func (s *SocketServer) logger() *slog.Logger {
	if s.Logger != nil {
		return logging.WithComponent(s.Logger, "bridge")
	}
	return logging.WithComponent(slog.Default(), "bridge")
}

// removeStaleSocket deletes a leftover socket file. Any other file type at
// path is an error.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat socket path: %w", err)
	}
	if info.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}
