// Package dispatch serializes console commands onto the child's stdin.
//
// A Queue is a bounded FIFO with a single drainer. Callers Submit commands
// and receive a Receipt that completes once the command has been written (or
// has failed to be). Commands are written in the order Submit enqueued them.
//
// If the writer fails, the queue treats the process as gone: the failing
// receipt carries the write error, every command still queued completes with
// process.ErrProcessUnavailable, and the queue closes itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/process"
)

// DefaultCapacity is the number of commands that can wait for the drainer.
const DefaultCapacity = 32

// ErrQueueClosed is returned by Submit after Close, and completes commands
// that were still queued when the queue was closed deliberately.
var ErrQueueClosed = errors.New("dispatch queue closed")

// LineWriter writes one command line. process.Supervisor implements it.
type LineWriter interface {
	WriteLine(text string) error
}

// Receipt tracks one submitted command.
type Receipt struct {
	command string
	done    chan struct{}
	err     error
}

func newReceipt(command string) *Receipt {
	return &Receipt{command: command, done: make(chan struct{})}
}

func (r *Receipt) complete(err error) {
	r.err = err
	close(r.done)
}

// Command returns the submitted command.
func (r *Receipt) Command() string {
	return r.command
}

// Done is closed once the write outcome is known.
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Err returns the write outcome once Done is closed, nil before.
func (r *Receipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the receipt completes or ctx ends.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the queue bound.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Queue is a bounded FIFO of commands drained by Run.
type Queue struct {
	w        LineWriter
	capacity int
	logger   *slog.Logger

	items   chan *Receipt
	closing chan struct{}

	// mu is held for reading by Submit while it enqueues so that Close can
	// wait out in-flight submissions before draining.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New returns a queue writing to w. Run must be started to drain it.
func New(w LineWriter, opts ...Option) *Queue {
	q := &Queue{
		w:        w,
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		closing:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan *Receipt, q.capacity)
	q.logger = logging.WithComponent(q.logger, "dispatch")
	return q
}

// Submit enqueues command. It blocks only while the queue is full.
func (q *Queue) Submit(ctx context.Context, command string) (*Receipt, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, process.ErrInvalidLine
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	r := newReceipt(command)
	select {
	case q.items <- r:
		return r, nil
	case <-q.closing:
		return nil, ErrQueueClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to enqueue command: %w", ctx.Err())
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	return len(q.items)
}

// Closed reports whether the queue has been closed.
func (q *Queue) Closed() bool {
	select {
	case <-q.closing:
		return true
	default:
		return false
	}
}

// Close stops accepting commands and completes queued ones with ErrQueueClosed.
func (q *Queue) Close() {
	q.shutdown(ErrQueueClosed)
}

func (q *Queue) shutdown(pendingErr error) {
	q.closeOnce.Do(func() {
		close(q.closing)

		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		// No Submit can enqueue past this point.
		for {
			select {
			case r := <-q.items:
				r.complete(pendingErr)
			default:
				return
			}
		}
	})
}

// Run writes queued commands in order until ctx ends or the queue closes.
// It is the only reader of the queue; start it exactly once.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.Close()
			return ctx.Err()
		case <-q.closing:
			return nil
		case r := <-q.items:
			err := q.w.WriteLine(r.command)
			if err != nil {
				q.logger.Warn("command write failed, closing queue",
					logging.Command(logging.SanitizeCommand(r.command)),
					logging.Err(err))
				r.complete(err)
				q.shutdown(process.ErrProcessUnavailable)
				return nil
			}
			q.logger.Debug("command written", logging.Command(logging.SanitizeCommand(r.command)))
			r.complete(nil)
		}
	}
}
