package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/mcp-minecraft/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is the listen address of the dedicated metrics server.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// MetricsServerConfig configures the dedicated metrics server.
type MetricsServerConfig struct {
	// Addr is the listen address. Empty means DefaultMetricsAddr.
	Addr string

	// Enabled is informational; callers decide whether to start the server.
	Enabled bool

	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves /metrics on its own port so scraping never shares a
// listener with MCP traffic.
type MetricsServer struct {
	addr     string
	server   *http.Server
	mu       sync.Mutex
	started  bool
	provider *instrumentation.Provider
}

// NewMetricsServer creates a metrics server. The OpenTelemetry Prometheus
// exporter writes to the default registry, which promhttp.Handler serves.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required")
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		addr:     addr,
		provider: config.InstrumentationProvider,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// Addr returns the listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// Start blocks serving until Shutdown. It returns http.ErrServerClosed after
// a graceful shutdown.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.server.ListenAndServe()
}

// Shutdown stops the server. Calling it before Start is a no-op.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	return s.server.Shutdown(ctx)
}
