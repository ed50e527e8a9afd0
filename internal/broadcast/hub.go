// Package broadcast fans process log lines out to any number of subscribers.
//
// Publishing never blocks: each subscriber owns a bounded queue and, when it
// is full, the oldest queued line is discarded to make room. Per-subscriber
// order always matches publish order. There is no replay; a subscriber sees
// only lines published after it subscribed.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/giantswarm/mcp-minecraft/internal/process"
)

// DefaultBufferSize is the per-subscriber queue capacity.
const DefaultBufferSize = 64

// ErrClosed is returned by Subscribe after the hub has been closed.
var ErrClosed = errors.New("broadcast hub closed")

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber queue capacity.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// WithDropHook registers fn to be called once for every line discarded from
// a full subscriber queue. fn must not block.
func WithDropHook(fn func()) Option {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// Hub is a non-blocking one-to-many line broadcaster.
type Hub struct {
	bufferSize int
	onDrop     func()

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New returns an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		bufferSize: DefaultBufferSize,
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	hub     *Hub
	ch      chan process.LogLine
	dropped atomic.Uint64
}

// C returns the subscriber's channel. It is closed on unsubscribe or when the
// hub closes.
func (s *Subscription) C() <-chan process.LogLine {
	return s.ch
}

// Dropped returns how many lines were discarded because this subscriber fell
// behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	s := &Subscription{
		hub: h,
		ch:  make(chan process.LogLine, h.bufferSize),
	}
	h.subs[s] = struct{}{}
	return s, nil
}

// Unsubscribe removes s and closes its channel. Unknown or already removed
// subscriptions are ignored.
func (h *Hub) Unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	close(s.ch)
}

// Publish offers line to every subscriber without blocking.
func (h *Hub) Publish(line process.LogLine) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- line:
			continue
		default:
		}

		// Full: discard the oldest entry. Only Publish sends, and it holds the
		// lock, so there is room afterwards.
		select {
		case <-s.ch:
			s.dropped.Add(1)
			if h.onDrop != nil {
				h.onDrop()
			}
		default:
		}
		select {
		case s.ch <- line:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel and refuses new subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.ch)
	}
}

// Run publishes every line from src until src is closed, then closes the hub.
// It returns ctx.Err() if ctx ends first, leaving the hub open.
func (h *Hub) Run(ctx context.Context, src <-chan process.LogLine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-src:
			if !ok {
				h.Close()
				return nil
			}
			h.Publish(line)
		}
	}
}
