package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestAllMetricsExposedViaPrometheus verifies that every metric defined in
// metrics.go is recorded and exposed via the Prometheus /metrics endpoint.
//
// It catches metrics that are defined but never recorded, middleware that is
// not wired, and registrations that fail silently.
func TestAllMetricsExposedViaPrometheus(t *testing.T) {
	// The OTel prometheus exporter registers with the global Prometheus
	// registry, which promhttp.Handler() serves. This matches the metrics
	// server in cmd.
	config := Config{
		ServiceName:     "test-metrics-integration",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	}

	ctx := context.Background()
	provider, err := NewProvider(ctx, config)
	if err != nil {
		t.Fatalf("Failed to create instrumentation provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if !provider.Enabled() {
		t.Fatal("provider should be enabled")
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("Metrics should not be nil")
	}

	recordAllMetrics(ctx, metrics)
	reg, err := metrics.ObserveRuntime(func() int { return 2 }, func() int { return 0 }, func() bool { return true })
	if err != nil {
		t.Fatalf("Failed to register runtime gauges: %v", err)
	}
	defer func() { _ = reg.Unregister() }()

	server := httptest.NewServer(promhttp.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	metricsOutput := string(body)

	// NOTE: These MUST match the metric names in metrics.go
	expectedMetrics := []struct {
		name        string
		isHistogram bool
	}{
		{"http_requests_total", false},
		{"http_request_duration_seconds", true},
		{"minecraft_operations_total", false},
		{"minecraft_operation_duration_seconds", true},
		{"mcp_tool_calls_total", false},
		{"minecraft_correlations_total", false},
		{"minecraft_correlation_duration_seconds", true},
		{"minecraft_rcon_commands_total", false},
		{"minecraft_rcon_command_duration_seconds", true},
		{"minecraft_log_lines_dropped_total", false},
		{"minecraft_backup_bytes_total", false},
		{"minecraft_log_subscribers", false},
		{"minecraft_dispatch_queue_depth", false},
		{"minecraft_process_up", false},
	}

	var missing []string
	for _, m := range expectedMetrics {
		found := false
		if m.isHistogram {
			for _, suffix := range []string{"_bucket", "_sum", "_count"} {
				if containsMetric(metricsOutput, m.name+suffix) {
					found = true
					break
				}
			}
		} else {
			found = containsMetric(metricsOutput, m.name)
		}

		if !found {
			missing = append(missing, m.name)
			t.Errorf("Missing metric %s", m.name)
		}
	}

	if len(missing) > 0 {
		t.Log("Sample of metrics output (first 2000 chars):")
		if len(metricsOutput) > 2000 {
			t.Log(metricsOutput[:2000])
		} else {
			t.Log(metricsOutput)
		}
	}
}

// recordAllMetrics calls every Record* function so that each metric is
// exported at least once.
func recordAllMetrics(ctx context.Context, m *Metrics) {
	m.RecordHTTPRequest(ctx, "GET", "/healthz", 200, 50*time.Millisecond)
	m.RecordHTTPRequest(ctx, "POST", "/mcp", 500, 200*time.Millisecond)

	m.RecordOperation(ctx, "save_all", StatusSuccess, 1200*time.Millisecond)
	m.RecordOperation(ctx, "backup", StatusError, 3*time.Second)
	m.RecordToolCall(ctx, "minecraft_list_players", StatusSuccess)

	m.RecordCorrelation(ctx, OutcomeMatched, 2, time.Second)
	m.RecordCorrelation(ctx, OutcomeTimedOut, 1, 5*time.Second)
	m.RecordCorrelation(ctx, OutcomeDispatchFailed, 0, time.Millisecond)
	m.RecordCorrelation(ctx, OutcomeProcessUnavailable, 0, time.Millisecond)

	m.RecordRCONCommand(ctx, StatusSuccess, 20*time.Millisecond)
	m.RecordDroppedLine(ctx)
	m.RecordBackupBytes(ctx, 1<<20)
}

// containsMetric checks if the metrics output contains a metric line
// that starts with the given metric name (accounting for labels).
func containsMetric(metricsOutput, metricName string) bool {
	for _, line := range strings.Split(metricsOutput, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "# TYPE "+metricName+" ") ||
			strings.HasPrefix(line, "# HELP "+metricName+" ") {
			return true
		}
		if strings.HasPrefix(line, metricName+"{") || strings.HasPrefix(line, metricName+" ") {
			return true
		}
	}
	return false
}

func TestDisabledProviderRecordsNothing(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create disabled provider: %v", err)
	}
	if provider.Enabled() {
		t.Error("provider should be disabled")
	}
	if provider.Metrics() == nil {
		t.Fatal("disabled provider should still return a metrics recorder")
	}

	// Recording into the no-op meter must not panic.
	recordAllMetrics(ctx, provider.Metrics())

	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown of disabled provider returned %v", err)
	}
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:         true,
		MetricsExporter: "graphite",
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported exporter")
	}
}

func TestNewProviderStdoutTracing(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test-tracing",
		Enabled:           true,
		MetricsExporter:   "none",
		TracingExporter:   "stdout",
		TraceSamplingRate: 1.0,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown returned %v", err)
	}
}
