// Package observe provides application-wide observability primitives for
// voxwire: OpenTelemetry metrics, tracing, and structured logging helpers.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxwire metrics.
const meterName = "github.com/voxwire/voxwire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecordingDuration tracks the wall-clock length of finished takes.
	RecordingDuration metric.Float64Histogram

	// ConversionDuration tracks raw-to-Opus conversion latency.
	ConversionDuration metric.Float64Histogram

	// SendDuration tracks transport send latency per attempt.
	SendDuration metric.Float64Histogram

	// DownloadDuration tracks file download latency (cache misses only).
	DownloadDuration metric.Float64Histogram

	// --- Counters ---

	// SendAttempts counts send attempts. Use with attribute:
	//   attribute.String("status", "sent"|"failed"|"fallback")
	SendAttempts metric.Int64Counter

	// TransportErrors counts transport RPC errors. Use with attribute:
	//   attribute.String("op", ...)
	TransportErrors metric.Int64Counter

	// AuthTransitions counts authentication state transitions. Use with
	// attribute: attribute.String("state", ...)
	AuthTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks whether a capture is in progress (0 or 1).
	ActiveRecordings metric.Int64UpDownCounter

	// PendingRetries tracks send attempts parked in the failed state awaiting
	// an explicit retry or discard.
	PendingRetries metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice clip lengths and network round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecordingDuration, err = m.Float64Histogram("voxwire.recording.duration",
		metric.WithDescription("Length of finished takes."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConversionDuration, err = m.Float64Histogram("voxwire.conversion.duration",
		metric.WithDescription("Latency of raw-to-Opus conversion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SendDuration, err = m.Float64Histogram("voxwire.send.duration",
		metric.WithDescription("Latency of transport send calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DownloadDuration, err = m.Float64Histogram("voxwire.download.duration",
		metric.WithDescription("Latency of file downloads."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SendAttempts, err = m.Int64Counter("voxwire.send.attempts",
		metric.WithDescription("Total send attempts by terminal status."),
	); err != nil {
		return nil, err
	}
	if met.TransportErrors, err = m.Int64Counter("voxwire.transport.errors",
		metric.WithDescription("Total transport RPC errors by operation."),
	); err != nil {
		return nil, err
	}
	if met.AuthTransitions, err = m.Int64Counter("voxwire.auth.transitions",
		metric.WithDescription("Total authentication state transitions by target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voxwire.active_recordings",
		metric.WithDescription("Number of captures currently in progress."),
	); err != nil {
		return nil, err
	}
	if met.PendingRetries, err = m.Int64UpDownCounter("voxwire.pending_retries",
		metric.WithDescription("Send attempts awaiting an explicit retry or discard."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordSendAttempt records a terminal send attempt outcome.
func (m *Metrics) RecordSendAttempt(ctx context.Context, status string) {
	m.SendAttempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTransportError records a transport RPC error for the given operation.
func (m *Metrics) RecordTransportError(ctx context.Context, op string) {
	m.TransportErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordAuthTransition records an authentication state transition.
func (m *Metrics) RecordAuthTransition(ctx context.Context, state string) {
	m.AuthTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}
