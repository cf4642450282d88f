package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the data point value whose attribute key matches
// the wanted string, or -1 when no such point exists.
func counterValue(sum metricdata.Sum[int64], key, want string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == want {
				return dp.Value
			}
		}
	}
	return -1
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordChunk(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordChunk(ctx, "voice", 120*time.Millisecond)
	m.RecordChunk(ctx, "voice", 80*time.Millisecond)
	m.RecordChunk(ctx, "silence", 40*time.Millisecond)
	m.RecordChunk(ctx, "error", 10*time.Millisecond)

	rm := collect(t, reader)

	met := findMetric(rm, "voxprint.chunks")
	if met == nil {
		t.Fatal("chunk counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	counts := []struct {
		outcome string
		want    int64
	}{
		{"voice", 2},
		{"silence", 1},
		{"error", 1},
	}
	for _, tc := range counts {
		if got := counterValue(sum, "outcome", tc.outcome); got != tc.want {
			t.Errorf("outcome=%s count = %d, want %d", tc.outcome, got, tc.want)
		}
	}

	met = findMetric(rm, "voxprint.chunk.duration")
	if met == nil {
		t.Fatal("duration histogram not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	var samples uint64
	for _, dp := range hist.DataPoints {
		samples += dp.Count
	}
	if samples != 4 {
		t.Errorf("sample count = %d, want 4", samples)
	}
}

func TestRecordRecognition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognition(ctx, true)
	m.RecordRecognition(ctx, true)
	m.RecordRecognition(ctx, false)

	rm := collect(t, reader)
	met := findMetric(rm, "voxprint.recognitions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "result", "match"); got != 2 {
		t.Errorf("match count = %d, want 2", got)
	}
	if got := counterValue(sum, "result", "unknown"); got != 1 {
		t.Errorf("unknown count = %d, want 1", got)
	}
}

func TestRecordSpeakerOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpeakerOp(ctx, "enroll")
	m.RecordSpeakerOp(ctx, "enroll")
	m.RecordSpeakerOp(ctx, "retrain")
	m.RecordSpeakerOp(ctx, "remove")

	rm := collect(t, reader)
	met := findMetric(rm, "voxprint.speaker.ops")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	actions := []struct {
		action string
		want   int64
	}{
		{"enroll", 2},
		{"retrain", 1},
		{"remove", 1},
	}
	for _, tc := range actions {
		if got := counterValue(sum, "action", tc.action); got != tc.want {
			t.Errorf("action=%s count = %d, want %d", tc.action, got, tc.want)
		}
	}
}

func TestRecordBroadcast(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBroadcast(ctx, true)
	m.RecordBroadcast(ctx, true)
	m.RecordBroadcast(ctx, false)

	rm := collect(t, reader)

	met := findMetric(rm, "voxprint.broadcasts")
	if met == nil {
		t.Fatal("broadcast counter not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("broadcasts = %d, want 3", total)
	}

	met = findMetric(rm, "voxprint.broadcast.errors")
	if met == nil {
		t.Fatal("error counter not found")
	}
	sum, ok = met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("broadcast errors = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestRecordSession(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSession(ctx, "ingest", 1)
	m.RecordSession(ctx, "ingest", 1)
	m.RecordSession(ctx, "observer", 1)
	m.RecordSession(ctx, "ingest", -1)

	rm := collect(t, reader)
	met := findMetric(rm, "voxprint.active_sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := counterValue(sum, "role", "ingest"); got != 1 {
		t.Errorf("ingest sessions = %d, want 1", got)
	}
	if got := counterValue(sum, "role", "observer"); got != 1 {
		t.Errorf("observer sessions = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "voxprint.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
