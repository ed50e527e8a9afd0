package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/giantswarm/mcp-minecraft/internal/logging"
)

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// serverContext provides access to dependencies for health checks
	serverContext *ServerContext
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Version string            `json:"version,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status          string                      `json:"status"`
	Version         string                      `json:"version,omitempty"`
	Uptime          string                      `json:"uptime"`
	ReadOnly        bool                        `json:"read_only"`
	Process         *ProcessHealthStatus        `json:"process,omitempty"`
	Console         *ConsoleHealthStatus        `json:"console,omitempty"`
	RCON            *RCONHealthStatus           `json:"rcon,omitempty"`
	Instrumentation *InstrumentationHealthCheck `json:"instrumentation,omitempty"`
}

// ProcessHealthStatus describes the supervised game server.
type ProcessHealthStatus struct {
	Running bool `json:"running"`
	PID     int  `json:"pid,omitempty"`
}

// ConsoleHealthStatus describes the log broadcast and command queue.
type ConsoleHealthStatus struct {
	Subscribers  int  `json:"subscribers"`
	QueueDepth   int  `json:"queue_depth"`
	QueueRunning bool `json:"queue_running"`
}

// RCONHealthStatus describes the configured remote console.
type RCONHealthStatus struct {
	Address string `json:"address"`
}

// InstrumentationHealthCheck provides health information about instrumentation.
type InstrumentationHealthCheck struct {
	Enabled         bool   `json:"enabled"`
	MetricsExporter string `json:"metrics_exporter,omitempty"`
	TracingExporter string `json:"tracing_exporter,omitempty"`
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only says the MCP process can answer. A dead game server is a
// readiness problem, not a reason to restart this process.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := HealthResponse{
			Status: "ok",
		}
		if h.serverContext != nil && h.serverContext.Config() != nil {
			response.Version = h.serverContext.Config().Version
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		checks, allOk := h.runChecks()
		response := HealthResponse{
			Checks: checks,
		}

		if allOk {
			response.Status = "ok"
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "not ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

func (h *HealthChecker) runChecks() (map[string]string, bool) {
	checks := make(map[string]string)
	allOk := true

	if !h.ready.Load() {
		checks["ready"] = "not ready"
		allOk = false
	} else {
		checks["ready"] = "ok"
	}

	sc := h.serverContext
	if sc == nil {
		return checks, allOk
	}

	if sc.IsShutdown() {
		checks["shutdown"] = "shutting down"
		allOk = false
	} else {
		checks["shutdown"] = "ok"
	}

	if p := sc.Process(); p != nil {
		if p.Alive() {
			checks["process"] = "ok"
		} else {
			checks["process"] = "not running"
			allOk = false
		}
	}

	if q := sc.Queue(); q != nil {
		if q.Closed() {
			checks["queue"] = "closed"
			allOk = false
		} else {
			checks["queue"] = "ok"
		}
	}

	if provider := sc.InstrumentationProvider(); provider != nil {
		if provider.Enabled() {
			checks["instrumentation"] = "ok"
		} else {
			checks["instrumentation"] = "disabled"
		}
	}

	return checks, allOk
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		response := DetailedHealthResponse{
			Status: "ok",
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}

		if sc := h.serverContext; sc != nil {
			if cfg := sc.Config(); cfg != nil {
				response.Version = cfg.Version
				response.ReadOnly = cfg.ReadOnly
				if cfg.RCONAddress != "" {
					response.RCON = &RCONHealthStatus{Address: logging.SanitizeHost(cfg.RCONAddress)}
				}
			}
			response.Process = h.getProcessStatus()
			response.Console = h.getConsoleStatus()
			response.Instrumentation = h.getInstrumentationStatus()
		}

		if _, ok := h.runChecks(); ok {
			w.WriteHeader(http.StatusOK)
		} else {
			response.Status = "not ready"
			if h.serverContext != nil && h.serverContext.IsShutdown() {
				response.Status = "shutting down"
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(response)
	})
}

func (h *HealthChecker) getProcessStatus() *ProcessHealthStatus {
	p := h.serverContext.Process()
	if p == nil {
		return nil
	}
	status := &ProcessHealthStatus{Running: p.Alive()}
	if status.Running {
		status.PID = p.PID()
	}
	return status
}

func (h *HealthChecker) getConsoleStatus() *ConsoleHealthStatus {
	logs, queue := h.serverContext.Logs(), h.serverContext.Queue()
	if logs == nil && queue == nil {
		return nil
	}
	status := &ConsoleHealthStatus{}
	if logs != nil {
		status.Subscribers = logs.SubscriberCount()
	}
	if queue != nil {
		status.QueueDepth = queue.Len()
		status.QueueRunning = !queue.Closed()
	}
	return status
}

func (h *HealthChecker) getInstrumentationStatus() *InstrumentationHealthCheck {
	provider := h.serverContext.InstrumentationProvider()
	if provider == nil {
		return &InstrumentationHealthCheck{
			Enabled: false,
		}
	}

	cfg := provider.Config()
	return &InstrumentationHealthCheck{
		Enabled:         provider.Enabled(),
		MetricsExporter: cfg.MetricsExporter,
		TracingExporter: cfg.TracingExporter,
	}
}
