package bridge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// LogStreamHandler upgrades to a websocket and sends every log line as a
// text message. Messages from the client are discarded. The stream ends when
// the log broadcast closes or the client goes away.
type LogStreamHandler struct {
	Logs     Subscriber
	Logger   *slog.Logger
	Upgrader websocket.Upgrader
}

// NewLogStreamHandler returns a handler reading from logs.
func NewLogStreamHandler(logs Subscriber, logger *slog.Logger) *LogStreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStreamHandler{
		Logs:   logs,
		Logger: logging.WithComponent(logger, "logstream"),
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (h *LogStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Logs.Subscribe()
	if err != nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.Logs.Unsubscribe(sub)

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.Logger.Debug("websocket upgrade failed", logging.Err(err))
		return
	}
	clientGone := make(chan struct{})
	defer func() {
		_ = ws.Close()
		<-clientGone
	}()
	h.Logger.Debug("log stream client connected")

	go func() {
		defer close(clientGone)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			h.Logger.Debug("log stream client disconnected")
			return

		case <-r.Context().Done():
			return

		case line, ok := <-sub.C():
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "log stream closed")
				_ = ws.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(line.Text)); err != nil {
				return
			}

		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
