package correlate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-minecraft/internal/broadcast"
	"github.com/giantswarm/mcp-minecraft/internal/dispatch"
	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

// Phase is one expected reply step.
type Phase struct {
	Name    string
	Pattern *regexp.Regexp
	// Timeout bounds the wait for this phase. Zero means only the request
	// deadline and the caller's context apply.
	Timeout time.Duration
}

// Request describes one correlated command.
type Request struct {
	Command string
	Phases  []Phase
	// Deadline bounds the whole execution when positive.
	Deadline time.Duration
}

// Result holds what the matching lines produced.
type Result struct {
	CorrelationID string
	// Captures merges the named groups of every matched phase. Later phases
	// overwrite earlier groups of the same name.
	Captures map[string]string
	// Lines holds the matching line of each phase, in phase order.
	Lines []string
}

// Subscriber is the log broadcast. broadcast.Hub implements it.
type Subscriber interface {
	Subscribe() (*broadcast.Subscription, error)
	Unsubscribe(*broadcast.Subscription)
}

// Submitter accepts console commands. dispatch.Queue implements it.
type Submitter interface {
	Submit(ctx context.Context, command string) (*dispatch.Receipt, error)
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records correlation outcomes.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Correlator) {
		c.metrics = m
	}
}

// Correlator executes requests against a log stream and a command queue.
type Correlator struct {
	logs    Subscriber
	queue   Submitter
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// New returns a Correlator reading from logs and writing to queue.
func New(logs Subscriber, queue Submitter, opts ...Option) *Correlator {
	c := &Correlator{
		logs:   logs,
		queue:  queue,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "correlate")
	return c
}

// Execute submits req.Command and waits for every phase to match.
//
// It returns a *TimedOutError when a phase timer or the request deadline
// fires, an error wrapping ErrDispatchFailed when the command cannot be
// enqueued before the request deadline, ErrProcessUnavailable when the log stream closes or the write
// fails, and ctx.Err() when the caller gives up. The subscription is always
// released before Execute returns.
func (c *Correlator) Execute(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidRequest)
	}
	for i, p := range req.Phases {
		if p.Pattern == nil {
			return nil, fmt.Errorf("%w: phase %d has no pattern", ErrInvalidRequest, i+1)
		}
	}

	id := uuid.NewString()
	verb := commandVerb(req.Command)
	logger := logging.WithCorrelation(c.logger, id).With(logging.Command(verb))

	ctx, span := instrumentation.StartSpan(ctx, "correlate.execute",
		instrumentation.NewSpanAttributeBuilder().
			WithCommand(verb).
			WithCorrelationID(id).
			WithTransport(instrumentation.TransportConsole).
			Build()...)
	defer span.End()

	start := time.Now()
	m := newMachine(req.Phases)
	err := c.run(ctx, req, m, logger, span)

	c.metrics.RecordCorrelation(ctx, outcome(m.state), min(m.phase+1, len(req.Phases)), time.Since(start))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Debug("correlation ended", logging.Status(outcome(m.state)), logging.Phase(m.phase+1), logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	logger.Debug("correlation matched", slog.Duration(logging.KeyDuration, time.Since(start)))
	return &Result{
		CorrelationID: id,
		Captures:      m.captures,
		Lines:         m.lines,
	}, nil
}

func (c *Correlator) run(ctx context.Context, req Request, m *machine, logger *slog.Logger, span trace.Span) error {
	sub, err := c.logs.Subscribe()
	if err != nil {
		m.handle(event{kind: eventStreamClosed})
		return ErrProcessUnavailable
	}
	defer c.logs.Unsubscribe(sub)

	// The deadline also bounds enqueueing: a stalled child must not hold
	// callers in Submit forever.
	submitCtx := ctx
	var deadlineC <-chan time.Time
	if req.Deadline > 0 {
		deadline := time.NewTimer(req.Deadline)
		defer deadline.Stop()
		deadlineC = deadline.C

		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	receipt, err := c.queue.Submit(submitCtx, req.Command)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			m.handle(event{kind: eventCancelled})
			return ctxErr
		}
		m.handle(event{kind: eventSubmitFailed})
		return fmt.Errorf("%w: %w", ErrDispatchFailed, err)
	}
	logger.Debug("command submitted")

	var phaseTimer *time.Timer
	var phaseC <-chan time.Time
	defer func() {
		if phaseTimer != nil {
			phaseTimer.Stop()
		}
	}()
	armPhase := func(d time.Duration) {
		phaseC = nil
		if d <= 0 {
			return
		}
		if phaseTimer == nil {
			phaseTimer = time.NewTimer(d)
		} else {
			phaseTimer.Reset(d)
		}
		phaseC = phaseTimer.C
	}
	if len(req.Phases) > 0 {
		armPhase(req.Phases[0].Timeout)
	}

	written := receipt.Done()
	lines := sub.C()
	var writeErr error

	for !m.state.Terminal() {
		select {
		case <-ctx.Done():
			m.handle(event{kind: eventCancelled})

		case <-written:
			written = nil
			if writeErr = receipt.Err(); writeErr != nil {
				m.handle(event{kind: eventWriteFailed})
			} else {
				m.handle(event{kind: eventWritten})
			}

		case line, ok := <-lines:
			if !ok {
				m.handle(event{kind: eventStreamClosed})
				continue
			}
			if !m.handle(event{kind: eventLineArrived, line: line.Text}) {
				continue
			}
			instrumentation.AddSpanEvent(span, "phase_matched", attribute.Int(instrumentation.SpanAttrPhase, m.phase))
			logger.Debug("phase matched", logging.Phase(m.phase))
			if !m.state.Terminal() {
				armPhase(req.Phases[m.phase].Timeout)
			}

		case <-phaseC:
			m.handle(event{kind: eventTimerFired})

		case <-deadlineC:
			m.handle(event{kind: eventTimerFired})
		}
	}

	switch m.state {
	case StateMatched:
		return nil
	case StateTimedOut:
		e := &TimedOutError{Phase: m.phase + 1}
		if m.phase < len(req.Phases) {
			e.Name = req.Phases[m.phase].Name
		}
		return e
	case StateCancelled:
		return ctx.Err()
	case StateProcessUnavailable:
		if writeErr != nil && !errors.Is(writeErr, ErrProcessUnavailable) {
			return fmt.Errorf("%w: %w", ErrProcessUnavailable, writeErr)
		}
		return ErrProcessUnavailable
	default:
		return fmt.Errorf("correlation ended in state %s", m.state)
	}
}

func outcome(s State) string {
	switch s {
	case StateMatched:
		return instrumentation.OutcomeMatched
	case StateTimedOut:
		return instrumentation.OutcomeTimedOut
	case StateDispatchFailed:
		return instrumentation.OutcomeDispatchFailed
	case StateProcessUnavailable:
		return instrumentation.OutcomeProcessUnavailable
	case StateCancelled:
		return instrumentation.OutcomeCancelled
	default:
		return s.String()
	}
}

// commandVerb returns the first word of command. Arguments can carry player
// names or messages and are kept out of logs and spans.
func commandVerb(command string) string {
	if fields := strings.Fields(command); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
