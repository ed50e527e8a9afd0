package management

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/mcp-minecraft/internal/backup"
	"github.com/giantswarm/mcp-minecraft/internal/correlate"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

// DefaultRestoreTimeout bounds re-enabling automatic saving after a backup.
const DefaultRestoreTimeout = 10 * time.Second

var (
	// ErrBackupInProgress is returned when a backup is requested while
	// another one is running.
	ErrBackupInProgress = errors.New("a backup is already in progress")

	// ErrNotConfigured is returned by operations whose transport was not
	// provided to the Service.
	ErrNotConfigured = errors.New("operation not configured")
)

// Correlator runs console commands. correlate.Correlator implements it.
type Correlator interface {
	Execute(ctx context.Context, req correlate.Request) (*correlate.Result, error)
}

// RemoteConsole runs RCON commands. rcon.Client implements it.
type RemoteConsole interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Archiver streams the world directory. backup.Archiver implements it.
type Archiver interface {
	Stream(ctx context.Context, w io.Writer) (backup.Stats, error)
}

// Option configures a Service.
type Option func(*Service)

// WithRemoteConsole sets the RCON transport used by ListUsers and RCONCommand.
func WithRemoteConsole(rc RemoteConsole) Option {
	return func(s *Service) {
		s.rcon = rc
	}
}

// WithArchiver sets the world archiver used by Backup.
func WithArchiver(a Archiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithPolicies replaces the console policy table.
func WithPolicies(p map[string]Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policies = p
		}
	}
}

// WithMetrics records operation metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRestoreTimeout bounds the save-on that ends every backup.
func WithRestoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.restoreTimeout = d
		}
	}
}

// Service exposes the management operations of one game server.
type Service struct {
	console        Correlator
	rcon           RemoteConsole
	archiver       Archiver
	policies       map[string]Policy
	metrics        *instrumentation.Metrics
	logger         *slog.Logger
	restoreTimeout time.Duration

	backupMu sync.Mutex
}

// NewService returns a Service that drives console operations through console.
func NewService(console Correlator, opts ...Option) *Service {
	s := &Service{
		console:        console,
		policies:       DefaultPolicies(),
		logger:         slog.Default(),
		restoreTimeout: DefaultRestoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "management")
	return s
}

// SaveAll flushes the world to disk and waits for the save to finish.
func (s *Service) SaveAll(ctx context.Context) error {
	return s.observe(ctx, OpSaveAll, func(ctx context.Context) error {
		_, err := s.runPolicy(ctx, OpSaveAll)
		return err
	})
}

// DisableAutomaticSave turns periodic world saving off.
func (s *Service) DisableAutomaticSave(ctx context.Context) error {
	return s.observe(ctx, OpDisableAutoSave, func(ctx context.Context) error {
		_, err := s.runPolicy(ctx, OpDisableAutoSave)
		return err
	})
}

// EnableAutomaticSave turns periodic world saving on.
func (s *Service) EnableAutomaticSave(ctx context.Context) error {
	return s.observe(ctx, OpEnableAutoSave, func(ctx context.Context) error {
		_, err := s.runPolicy(ctx, OpEnableAutoSave)
		return err
	})
}

// ListPlayers lists online players through the console.
func (s *Service) ListPlayers(ctx context.Context) (*PlayerList, error) {
	var list *PlayerList
	err := s.observe(ctx, OpListPlayers, func(ctx context.Context) error {
		res, err := s.runPolicy(ctx, OpListPlayers)
		if err != nil {
			return err
		}
		if len(res.Lines) == 0 {
			return fmt.Errorf("%w: no reply line", ErrUnexpectedResponse)
		}
		list, err = ParsePlayerList(res.Lines[len(res.Lines)-1])
		return err
	})
	return list, err
}

// ListUsers lists online players over RCON.
func (s *Service) ListUsers(ctx context.Context) (*PlayerList, error) {
	var list *PlayerList
	err := s.observe(ctx, OpListUsers, func(ctx context.Context) error {
		reply, err := s.remote(ctx, listCommand)
		if err != nil {
			return err
		}
		list, err = ParsePlayerList(reply)
		return err
	})
	return list, err
}

// RCONCommand runs an arbitrary command over RCON and returns its reply.
func (s *Service) RCONCommand(ctx context.Context, command string) (string, error) {
	var reply string
	err := s.observe(ctx, OpRCONCommand, func(ctx context.Context) error {
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("command is required")
		}
		var err error
		reply, err = s.remote(ctx, command)
		return err
	})
	return reply, err
}

// Backup saves the world, pauses automatic saving, streams a tar.gz of the
// world directory to w and resumes automatic saving. Automatic saving is
// resumed even when the archive fails or ctx is cancelled.
func (s *Service) Backup(ctx context.Context, w io.Writer) (backup.Stats, error) {
	var stats backup.Stats
	err := s.observe(ctx, OpBackup, func(ctx context.Context) (err error) {
		if s.archiver == nil {
			return fmt.Errorf("%w: no world directory", ErrNotConfigured)
		}
		if !s.backupMu.TryLock() {
			return ErrBackupInProgress
		}
		defer s.backupMu.Unlock()

		if err := s.SaveAll(ctx); err != nil {
			return fmt.Errorf("failed to save the world: %w", err)
		}
		if err := s.DisableAutomaticSave(ctx); err != nil {
			return fmt.Errorf("failed to disable automatic saving: %w", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.restoreTimeout)
			defer cancel()
			if rerr := s.EnableAutomaticSave(rctx); rerr != nil {
				s.logger.Error("failed to re-enable automatic saving after backup", logging.Err(rerr))
				err = errors.Join(err, fmt.Errorf("failed to re-enable automatic saving: %w", rerr))
			}
		}()

		stats, err = s.archiver.Stream(ctx, w)
		s.metrics.RecordBackupBytes(ctx, stats.Bytes)
		if err != nil {
			return fmt.Errorf("failed to archive the world: %w", err)
		}
		s.logger.Info("backup streamed",
			slog.Int("files", stats.Files),
			slog.Int64("bytes", stats.Bytes))
		return nil
	})
	return stats, err
}

func (s *Service) runPolicy(ctx context.Context, op string) (*correlate.Result, error) {
	p, ok := s.policies[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return s.console.Execute(ctx, p.Request())
}

func (s *Service) remote(ctx context.Context, command string) (string, error) {
	if s.rcon == nil {
		return "", fmt.Errorf("%w: rcon", ErrNotConfigured)
	}

	verb := commandVerb(command)
	ctx, span := instrumentation.StartRCONSpan(ctx, verb)
	defer span.End()

	start := time.Now()
	reply, err := s.rcon.Execute(ctx, command)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	s.metrics.RecordRCONCommand(ctx, status, time.Since(start))
	return reply, err
}

// observe wraps one operation with a span, a duration metric and a log line.
func (s *Service) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartOperationSpan(ctx, op)
	defer span.End()

	logger := logging.WithOperation(s.logger, op)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		s.metrics.RecordOperation(ctx, op, instrumentation.StatusError, duration)
		instrumentation.SetSpanError(span, err)
		logger.Warn("operation failed",
			logging.Status(logging.StatusError),
			slog.Duration(logging.KeyDuration, duration),
			logging.Err(err))
		return err
	}

	s.metrics.RecordOperation(ctx, op, instrumentation.StatusSuccess, duration)
	instrumentation.AddSpanEvent(span, "completed", attribute.Int64("duration_ms", duration.Milliseconds()))
	instrumentation.SetSpanSuccess(span)
	logger.Info("operation completed",
		logging.Status(logging.StatusSuccess),
		slog.Duration(logging.KeyDuration, duration))
	return nil
}

func commandVerb(command string) string {
	if fields := strings.Fields(command); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
