// Package observe provides application-wide observability primitives for
// voxprint: OpenTelemetry metrics, structured logging, and HTTP middleware
// that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxprint metrics.
const meterName = "github.com/MrWong99/voxprint"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChunkDuration tracks per-chunk processing latency, from ingest
	// receipt through gating and recognition.
	ChunkDuration metric.Float64Histogram

	// --- Counters ---

	// Chunks counts processed audio chunks. Use with attribute:
	//   attribute.String("outcome", "voice"|"silence"|"error")
	Chunks metric.Int64Counter

	// Recognitions counts speaker classifications on voice chunks. Use
	// with attribute:
	//   attribute.String("result", "match"|"unknown")
	Recognitions metric.Int64Counter

	// SpeakerOps counts enrollment API operations. Use with attribute:
	//   attribute.String("action", "enroll"|"retrain"|"remove")
	SpeakerOps metric.Int64Counter

	// Broadcasts counts websocket fan-out send attempts.
	Broadcasts metric.Int64Counter

	// --- Error counters ---

	// BroadcastErrors counts fan-out sends that failed and cost the
	// session its connection.
	BroadcastErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks live websocket sessions. Use with attribute:
	//   attribute.String("role", "ingest"|"observer")
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for chunk-scale audio processing latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("voxprint.chunk.duration",
		metric.WithDescription("Latency of processing one audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Chunks, err = m.Int64Counter("voxprint.chunks",
		metric.WithDescription("Total processed audio chunks by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter("voxprint.recognitions",
		metric.WithDescription("Total speaker classifications by result."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerOps, err = m.Int64Counter("voxprint.speaker.ops",
		metric.WithDescription("Total enrollment API operations by action."),
	); err != nil {
		return nil, err
	}
	if met.Broadcasts, err = m.Int64Counter("voxprint.broadcasts",
		metric.WithDescription("Total websocket fan-out send attempts."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.BroadcastErrors, err = m.Int64Counter("voxprint.broadcast.errors",
		metric.WithDescription("Total websocket fan-out sends that failed."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxprint.active_sessions",
		metric.WithDescription("Number of live websocket sessions by role."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxprint.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordChunk is a convenience method that records one processed chunk:
// the outcome counter increment plus the duration histogram sample.
func (m *Metrics) RecordChunk(ctx context.Context, outcome string, d time.Duration) {
	m.Chunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	m.ChunkDuration.Record(ctx, d.Seconds())
}

// RecordRecognition is a convenience method that records one speaker
// classification result.
func (m *Metrics) RecordRecognition(ctx context.Context, known bool) {
	result := "unknown"
	if known {
		result = "match"
	}
	m.Recognitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordSpeakerOp is a convenience method that records one successful
// enrollment API operation.
func (m *Metrics) RecordSpeakerOp(ctx context.Context, action string) {
	m.SpeakerOps.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)),
	)
}

// RecordSession is a convenience method that moves the active-session
// gauge for one role. Pass +1 on connect and -1 on disconnect.
func (m *Metrics) RecordSession(ctx context.Context, role string, delta int64) {
	m.ActiveSessions.Add(ctx, delta,
		metric.WithAttributes(attribute.String("role", role)),
	)
}

// RecordBroadcast is a convenience method that records one fan-out send
// attempt and, when it failed, the matching error increment.
func (m *Metrics) RecordBroadcast(ctx context.Context, ok bool) {
	m.Broadcasts.Add(ctx, 1)
	if !ok {
		m.BroadcastErrors.Add(ctx, 1)
	}
}
