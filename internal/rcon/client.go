package rcon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

// DefaultTimeout bounds a single request/response round trip when the caller's
// context carries no earlier deadline.
const DefaultTimeout = 10 * time.Second

// authFailureID is the request id a server uses to reject a login.
const authFailureID = -1

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Session or Client.
type Option func(*options)

// WithTimeout sets the per round trip timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for debug output. Passwords are never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		timeout: DefaultTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session is one authenticated RCON connection. It allows one request in
// flight at a time.
type Session struct {
	addr string
	conn net.Conn
	opts options

	// seq is the next request id; always positive.
	seq atomic.Int32

	mu sync.Mutex
}

// Dial connects to addr over TCP. It does not authenticate.
func Dial(ctx context.Context, addr string, opts ...Option) (*Session, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ClientError{Kind: Unreachable, Addr: addr, Err: err}
	}
	return NewSession(conn, opts...), nil
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn, opts ...Option) *Session {
	s := &Session{
		addr: conn.RemoteAddr().String(),
		conn: conn,
		opts: newOptions(opts),
	}
	s.seq.Store(1)
	return s
}

// Close closes the connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Login authenticates the session with password.
func (s *Session) Login(ctx context.Context, password string) error {
	id := s.nextID()
	s.opts.logger.DebugContext(ctx, "sending rcon login",
		slog.String("addr", logging.SanitizeHost(s.addr)),
		slog.Int("request_id", int(id)),
		slog.String("password", logging.SanitizeToken(password)))

	reply, err := s.roundTrip(ctx, Packet{RequestID: id, Type: PacketLogin, Payload: password})
	if err != nil {
		var perr *ProtocolError
		switch {
		case errors.As(err, &perr) && (perr.Kind == NonASCII || perr.Kind == PayloadTooLong):
			return err
		case isConnClosed(err):
			// Minecraft drops the connection instead of replying on a bad password.
			return &ClientError{Kind: AuthFailed, Addr: s.addr, Err: err}
		default:
			return s.classify(ctx, err)
		}
	}

	if reply.RequestID == authFailureID {
		return &ClientError{Kind: AuthFailed, Addr: s.addr}
	}
	if reply.RequestID != id {
		return &ClientError{Kind: MalformedResponse, Addr: s.addr,
			Err: errors.New("login reply id does not match request")}
	}
	return nil
}

// Command sends text as a console command and returns the reply payload.
func (s *Session) Command(ctx context.Context, text string) (string, error) {
	id := s.nextID()
	s.opts.logger.DebugContext(ctx, "sending rcon command",
		slog.String(logging.KeyCommand, text),
		slog.Int("request_id", int(id)))

	reply, err := s.roundTrip(ctx, Packet{RequestID: id, Type: PacketCommand, Payload: text})
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) && (perr.Kind == NonASCII || perr.Kind == PayloadTooLong) {
			return "", err
		}
		return "", s.classify(ctx, err)
	}

	if reply.RequestID == authFailureID {
		return "", &ClientError{Kind: AuthFailed, Addr: s.addr}
	}
	if reply.RequestID != id {
		return "", &ClientError{Kind: MalformedResponse, Addr: s.addr,
			Err: errors.New("reply id does not match request")}
	}
	if reply.Type != PacketResponse {
		return "", &ClientError{Kind: MalformedResponse, Addr: s.addr,
			Err: errors.New("unexpected reply packet type")}
	}
	return reply.Payload, nil
}

// roundTrip writes req and reads exactly one reply. The caller's context
// cancels the exchange by expiring the connection deadline.
func (s *Session) roundTrip(ctx context.Context, req Packet) (Packet, error) {
	b, err := Encode(req)
	if err != nil {
		return Packet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.opts.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return Packet{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := s.conn.Write(b); err != nil {
		return Packet{}, err
	}
	return ReadPacket(s.conn)
}

// classify turns a transport or framing failure into a *ClientError. A
// cancelled context is reported as the context error.
func (s *Session) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return &ClientError{Kind: MalformedResponse, Addr: s.addr, Err: err}
	}
	return &ClientError{Kind: Unreachable, Addr: s.addr, Err: err}
}

// nextID returns the current request id and advances it, wrapping back to 1
// so that ids never collide with the auth failure marker.
func (s *Session) nextID() int32 {
	for {
		cur := s.seq.Load()
		next := cur + 1
		if cur == math.MaxInt32 {
			next = 1
		}
		if s.seq.CompareAndSwap(cur, next) {
			return cur
		}
	}
}

func isConnClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrClosedPipe)
}

// Client runs one-shot RCON commands. Each Execute call dials, logs in,
// sends the command and closes the connection.
type Client struct {
	addr     string
	password string
	opts     []Option
	logger   *slog.Logger
}

// NewClient returns a Client for the server at addr.
func NewClient(addr, password string, opts ...Option) *Client {
	o := newOptions(opts)
	return &Client{
		addr:     addr,
		password: password,
		opts:     opts,
		logger:   o.logger,
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Execute runs command on the server and returns its reply.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	s, err := Dial(ctx, c.addr, c.opts...)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			c.logger.Debug("closing rcon connection", logging.Err(cerr))
		}
	}()

	if err := s.Login(ctx, c.password); err != nil {
		return "", err
	}
	return s.Command(ctx, command)
}
