package bridge

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/giantswarm/mcp-minecraft/internal/broadcast"
	"github.com/giantswarm/mcp-minecraft/internal/dispatch"
	"github.com/giantswarm/mcp-minecraft/internal/process"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discard = slog.New(slog.DiscardHandler)

type recordingWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *recordingWriter) WriteLine(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, text)
	return nil
}

func (w *recordingWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

type socketFixture struct {
	hub    *broadcast.Hub
	writer *recordingWriter
	path   string
	stop   func()
}

func startSocket(t *testing.T, limit rate.Limit, burst int) *socketFixture {
	t.Helper()

	hub := broadcast.New()
	writer := &recordingWriter{}
	queue := dispatch.New(writer, dispatch.WithLogger(discard))
	path := filepath.Join(t.TempDir(), "console.sock")

	srv := &SocketServer{
		Path:     path,
		Logs:     hub,
		Commands: queue,
		Rate:     limit,
		Burst:    burst,
		Logger:   discard,
	}
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = queue.Run(ctx) }()
	go func() { defer wg.Done(); assert.NoError(t, srv.Serve(ctx)) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			hub.Close()
		})
	}
	t.Cleanup(stop)
	return &socketFixture{hub: hub, writer: writer, path: path, stop: stop}
}

func TestSocketStreamsLogsAndAcceptsCommands(t *testing.T) {
	f := startSocket(t, 0, 0)

	conn, err := net.Dial("unix", f.path)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return f.hub.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	f.hub.Publish(process.LogLine{Time: time.Now(), Text: "[INFO] Done (1.2s)!"})
	f.hub.Publish(process.LogLine{Time: time.Now(), Text: "[INFO] Steve joined the game"})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	second, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "[INFO] Done (1.2s)!\n", first)
	assert.Equal(t, "[INFO] Steve joined the game\n", second)

	_, err = conn.Write([]byte("say hi\n\n  \nlist\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(f.writer.written()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"say hi", "list"}, f.writer.written())
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "accept: too many open files" }
func (temporaryError) Temporary() bool { return true }
func (temporaryError) Timeout() bool   { return false }

// flakyListener fails the first failures Accept calls with a temporary error.
type flakyListener struct {
	net.Listener
	mu       sync.Mutex
	failures int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, temporaryError{}
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestSocketRetriesTemporaryAcceptErrors(t *testing.T) {
	hub := broadcast.New()
	defer hub.Close()
	writer := &recordingWriter{}
	queue := dispatch.New(writer, dispatch.WithLogger(discard))

	srv := &SocketServer{
		Path:     filepath.Join(t.TempDir(), "console.sock"),
		Logs:     hub,
		Commands: queue,
		Logger:   discard,
	}
	require.NoError(t, srv.Listen())
	srv.listener = &flakyListener{Listener: srv.listener, failures: 3}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queueDone := make(chan struct{})
	go func() { defer close(queueDone); _ = queue.Run(ctx) }()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	conn, err := net.Dial("unix", srv.Path)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_, err = conn.Write([]byte("save-all\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(writer.written()) == 1 }, 5*time.Second, 5*time.Millisecond)

	select {
	case err := <-served:
		t.Fatalf("Serve returned after temporary accept errors: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	<-queueDone
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSocketLogsListeningOnce(t *testing.T) {
	var logs lockedBuffer
	hub := broadcast.New()
	defer hub.Close()

	srv := &SocketServer{
		Path:     filepath.Join(t.TempDir(), "console.sock"),
		Logs:     hub,
		Commands: dispatch.New(&recordingWriter{}, dispatch.WithLogger(discard)),
		Logger:   slog.New(slog.NewTextHandler(&logs, nil)),
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "console socket listening")
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-served)

	assert.Equal(t, 1, strings.Count(logs.String(), "console socket listening"))
	assert.Contains(t, logs.String(), "path="+srv.Path)
}

func TestNextAcceptDelay(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, nextAcceptDelay(0))
	assert.Equal(t, 10*time.Millisecond, nextAcceptDelay(5*time.Millisecond))
	assert.Equal(t, maxAcceptDelay, nextAcceptDelay(800*time.Millisecond))
	assert.False(t, isTemporary(net.ErrClosed))
	assert.True(t, isTemporary(temporaryError{}))
}

func TestSocketRateLimitsCommands(t *testing.T) {
	f := startSocket(t, rate.Every(time.Hour), 2)

	conn, err := net.Dial("unix", f.path)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("a\nb\nc\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(f.writer.written()) == 2 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, f.writer.written())
}

func TestSocketRemovesStaleSocketAndCleansUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.sock")
	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	// Leave the file behind as a crashed process would.
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())
	_, err = os.Lstat(path)
	require.NoError(t, err)

	hub := broadcast.New()
	defer hub.Close()
	srv := &SocketServer{Path: path, Logs: hub, Commands: dispatch.New(&recordingWriter{}), Logger: discard}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", path)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	_, err = os.Lstat(path)
	assert.True(t, os.IsNotExist(err), "socket file should be removed on shutdown")
}

func TestSocketRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.sock")
	require.NoError(t, os.WriteFile(path, []byte("not a socket"), 0o600))

	srv := &SocketServer{Path: path, Logger: discard}
	err := srv.Listen()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a socket")
}

func TestSocketClientDisconnectedWhenHubCloses(t *testing.T) {
	f := startSocket(t, 0, 0)

	conn, err := net.Dial("unix", f.path)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return f.hub.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = bufio.NewReader(conn).ReadString('\n')
	assert.Error(t, err)
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestLogStreamHandler(t *testing.T) {
	hub := broadcast.New()
	srv := httptest.NewServer(NewLogStreamHandler(hub, discard))
	defer srv.Close()

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer func() { _ = ws.Close() }()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	hub.Publish(process.LogLine{Time: time.Now(), Text: "[INFO] Saved the game"})

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, "[INFO] Saved the game", string(msg))

	hub.Close()
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestLogStreamHandlerClientLeaves(t *testing.T) {
	hub := broadcast.New()
	defer hub.Close()
	srv := httptest.NewServer(NewLogStreamHandler(hub, discard))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return hub.SubscriberCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLogStreamHandlerHubClosed(t *testing.T) {
	hub := broadcast.New()
	hub.Close()

	rec := httptest.NewRecorder()
	NewLogStreamHandler(hub, discard).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
