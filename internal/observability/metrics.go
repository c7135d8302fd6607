package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics for a docking run:
// - Latency: how long pairs and whole runs take
// - Traffic: pair and pose throughput
// - Errors: engine and extraction failure rates
// - Saturation: pairs currently executing, dispatcher queue depth
type Metrics struct {
	meter metric.Meter

	// Run loop metrics (Latency, Traffic, Errors, Saturation)
	RunDuration    metric.Float64Histogram
	PairDuration   metric.Float64Histogram
	PairsTotal     metric.Int64Counter
	PairErrors     metric.Int64Counter
	PairsActive    metric.Int64UpDownCounter
	PosesExtracted metric.Int64Counter

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration   metric.Float64Histogram
	DispatcherDelivered  metric.Int64Counter
	DispatcherFailed     metric.Int64Counter
	DispatcherDropped    metric.Int64Counter
	DispatcherRequeued   metric.Int64Counter
	DispatcherQueueSize  metric.Int64Gauge
	DispatcherBufferSize int64 // config value for saturation calculation
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("rundock")
	m := &Metrics{meter: meter}

	// Run loop metrics
	m.RunDuration, err = meter.Float64Histogram(
		"docking_run_duration_seconds",
		metric.WithDescription("End-to-end docking loop duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 300, 900, 1800, 3600, 7200, 14400, 28800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PairDuration, err = meter.Float64Histogram(
		"docking_pair_duration_seconds",
		metric.WithDescription("Per (instance, site) pair duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1800),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PairsTotal, err = meter.Int64Counter(
		"docking_pairs_total",
		metric.WithDescription("Total number of (instance, site) pairs processed"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PairErrors, err = meter.Int64Counter(
		"docking_pair_errors_total",
		metric.WithDescription("Total pairs that failed (engine or extraction)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PairsActive, err = meter.Int64UpDownCounter(
		"docking_pairs_active",
		metric.WithDescription("Number of pairs currently executing (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PosesExtracted, err = meter.Int64Counter(
		"docking_poses_extracted_total",
		metric.WithDescription("Total standardized poses extracted across all pairs"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Dispatcher metrics
	m.DispatcherDuration, err = meter.Float64Histogram(
		"dispatcher_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDelivered, err = meter.Int64Counter(
		"dispatcher_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherFailed, err = meter.Int64Counter(
		"dispatcher_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherDropped, err = meter.Int64Counter(
		"dispatcher_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherRequeued, err = meter.Int64Counter(
		"dispatcher_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatcherQueueSize, err = meter.Int64Gauge(
		"dispatcher_queue_size",
		metric.WithDescription("Current number of events in dispatcher queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordPairStarted records an (instance, site) pair entering execution.
func (m *Metrics) RecordPairStarted(ctx context.Context, program string) {
	attrs := metric.WithAttributes(programAttr(program))
	m.PairsTotal.Add(ctx, 1, attrs)
	m.PairsActive.Add(ctx, 1, attrs)
}

// RecordPairCompleted records a pair finishing (success or failure).
func (m *Metrics) RecordPairCompleted(ctx context.Context, program string, success bool, poses int, durationSeconds float64) {
	attrs := metric.WithAttributes(programAttr(program), successAttr(success))
	m.PairDuration.Record(ctx, durationSeconds, attrs)
	m.PairsActive.Add(ctx, -1, metric.WithAttributes(programAttr(program)))

	if success {
		m.PosesExtracted.Add(ctx, int64(poses), metric.WithAttributes(programAttr(program)))
	} else {
		m.PairErrors.Add(ctx, 1, attrs)
	}
}

// RecordRunCompleted records the end-to-end docking loop duration.
func (m *Metrics) RecordRunCompleted(ctx context.Context, success bool, durationSeconds float64) {
	m.RunDuration.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
