package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrOutcome   = "outcome"
	attrPhase     = "phase"
	attrTool      = "tool"
)

var durationBuckets = []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0}

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Management operation metrics
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	toolCallsTotal    metric.Int64Counter

	// Correlation metrics
	correlationsTotal   metric.Int64Counter
	correlationDuration metric.Float64Histogram

	// RCON metrics
	rconCommandsTotal   metric.Int64Counter
	rconCommandDuration metric.Float64Histogram

	// Log pipeline metrics
	droppedLinesTotal metric.Int64Counter
	backupBytesTotal  metric.Int64Counter

	// detailedLabels adds the phase label to correlation metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
// The detailedLabels parameter controls whether higher-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		meter:          meter,
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.operationsTotal, err = meter.Int64Counter(
		"minecraft_operations_total",
		metric.WithDescription("Total number of management operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_operations_total counter: %w", err)
	}

	m.operationDuration, err = meter.Float64Histogram(
		"minecraft_operation_duration_seconds",
		metric.WithDescription("Management operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_operation_duration_seconds histogram: %w", err)
	}

	m.toolCallsTotal, err = meter.Int64Counter(
		"mcp_tool_calls_total",
		metric.WithDescription("Total number of MCP tool calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_calls_total counter: %w", err)
	}

	m.correlationsTotal, err = meter.Int64Counter(
		"minecraft_correlations_total",
		metric.WithDescription("Total number of command correlations by outcome"),
		metric.WithUnit("{correlation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_correlations_total counter: %w", err)
	}

	m.correlationDuration, err = meter.Float64Histogram(
		"minecraft_correlation_duration_seconds",
		metric.WithDescription("Time from command submission to correlation outcome"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_correlation_duration_seconds histogram: %w", err)
	}

	m.rconCommandsTotal, err = meter.Int64Counter(
		"minecraft_rcon_commands_total",
		metric.WithDescription("Total number of RCON commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_rcon_commands_total counter: %w", err)
	}

	m.rconCommandDuration, err = meter.Float64Histogram(
		"minecraft_rcon_command_duration_seconds",
		metric.WithDescription("RCON round trip duration including connect and login"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_rcon_command_duration_seconds histogram: %w", err)
	}

	m.droppedLinesTotal, err = meter.Int64Counter(
		"minecraft_log_lines_dropped_total",
		metric.WithDescription("Log lines discarded because a subscriber fell behind"),
		metric.WithUnit("{line}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_log_lines_dropped_total counter: %w", err)
	}

	m.backupBytesTotal, err = meter.Int64Counter(
		"minecraft_backup_bytes_total",
		metric.WithDescription("Compressed bytes written by world backups"),
		metric.WithUnit("{byte}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_backup_bytes_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOperation records a management operation with its status and duration.
func (m *Metrics) RecordOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.operationsTotal == nil || m.operationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.operationsTotal.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordToolCall records an MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil || m.toolCallsTotal == nil {
		return
	}
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	))
}

// RecordCorrelation records a correlation outcome. phase is the index of the
// phase the correlation ended in; it is only attached with detailed labels.
func (m *Metrics) RecordCorrelation(ctx context.Context, outcome string, phase int, duration time.Duration) {
	if m == nil || m.correlationsTotal == nil || m.correlationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String(attrOutcome, outcome)}
	if m.detailedLabels {
		attrs = append(attrs, attribute.Int(attrPhase, phase))
	}
	m.correlationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.correlationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRCONCommand records one RCON round trip.
func (m *Metrics) RecordRCONCommand(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.rconCommandsTotal == nil || m.rconCommandDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.rconCommandsTotal.Add(ctx, 1, attrs)
	m.rconCommandDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordDroppedLine counts one log line discarded by the broadcast hub.
func (m *Metrics) RecordDroppedLine(ctx context.Context) {
	if m == nil || m.droppedLinesTotal == nil {
		return
	}
	m.droppedLinesTotal.Add(ctx, 1)
}

// RecordBackupBytes adds n compressed bytes to the backup counter.
func (m *Metrics) RecordBackupBytes(ctx context.Context, n int64) {
	if m == nil || m.backupBytesTotal == nil || n <= 0 {
		return
	}
	m.backupBytesTotal.Add(ctx, n)
}

// ObserveRuntime registers gauges sampled at collection time: the number of
// log subscribers, the dispatch queue depth and whether the game server
// process is alive.
func (m *Metrics) ObserveRuntime(subscribers, queueDepth func() int, alive func() bool) (metric.Registration, error) {
	if m == nil || m.meter == nil {
		return nil, nil
	}

	subsGauge, err := m.meter.Int64ObservableGauge(
		"minecraft_log_subscribers",
		metric.WithDescription("Current number of log broadcast subscribers"),
		metric.WithUnit("{subscriber}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_log_subscribers gauge: %w", err)
	}

	depthGauge, err := m.meter.Int64ObservableGauge(
		"minecraft_dispatch_queue_depth",
		metric.WithDescription("Commands waiting to be written to the server console"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_dispatch_queue_depth gauge: %w", err)
	}

	upGauge, err := m.meter.Int64ObservableGauge(
		"minecraft_process_up",
		metric.WithDescription("1 if the game server process is running"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minecraft_process_up gauge: %w", err)
	}

	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if subscribers != nil {
			o.ObserveInt64(subsGauge, int64(subscribers()))
		}
		if queueDepth != nil {
			o.ObserveInt64(depthGauge, int64(queueDepth()))
		}
		if alive != nil {
			var up int64
			if alive() {
				up = 1
			}
			o.ObserveInt64(upGauge, up)
		}
		return nil
	}, subsGauge, depthGauge, upGauge)
}
