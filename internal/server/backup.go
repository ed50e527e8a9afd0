package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giantswarm/mcp-minecraft/internal/correlate"
	"github.com/giantswarm/mcp-minecraft/internal/logging"
	"github.com/giantswarm/mcp-minecraft/internal/management"
)

// BackupPath is where the world archive is served on HTTP transports.
const BackupPath = "/backup"

// BackupHandler streams a gzip-compressed tar archive of the world directory.
// The body is sent with chunked transfer encoding as the archive is produced,
// so no Content-Length is set.
type BackupHandler struct {
	serverContext *ServerContext
	now           func() time.Time
}

// NewBackupHandler creates a BackupHandler.
func NewBackupHandler(sc *ServerContext) *BackupHandler {
	return &BackupHandler{serverContext: sc, now: time.Now}
}

// ServeHTTP implements http.Handler.
func (h *BackupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sc := h.serverContext
	name := fmt.Sprintf("backup-%s.tar.gz", h.now().UTC().Format("20060102T150405Z"))

	out := &lazyHeaderWriter{w: w, header: func() {
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
	}}

	stats, err := sc.Minecraft().Backup(r.Context(), out)
	if err != nil {
		if out.started {
			// The status line is gone; aborting the stream is all that is left.
			sc.Logger().Error("backup stream aborted", logging.KeyError, err)
			panic(http.ErrAbortHandler)
		}
		sc.Logger().Warn("backup request failed", logging.KeyError, err)
		http.Error(w, management.UserMessage(err), backupStatus(err))
		return
	}
	out.start()
	sc.Logger().Info("backup streamed", "files", stats.Files, "bytes", stats.Bytes)
}

func backupStatus(err error) int {
	switch {
	case errors.Is(err, management.ErrBackupInProgress):
		return http.StatusConflict
	case errors.Is(err, management.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, correlate.ErrProcessUnavailable),
		errors.Is(err, correlate.ErrDispatchFailed),
		errors.Is(err, correlate.ErrTimedOut):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// lazyHeaderWriter defers the response headers until the first archive byte,
// so that failures before streaming starts can still get an error status.
type lazyHeaderWriter struct {
	w       http.ResponseWriter
	header  func()
	started bool
}

func (l *lazyHeaderWriter) start() {
	if !l.started {
		l.started = true
		l.header()
	}
}

func (l *lazyHeaderWriter) Write(p []byte) (int, error) {
	l.start()
	return l.w.Write(p)
}

// Flush lets the archiver push each chunk to the client.
func (l *lazyHeaderWriter) Flush() {
	l.start()
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}
