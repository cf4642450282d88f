package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the voxprint tracer.
const tracerName = "github.com/MrWong99/voxprint"

// Tracer returns the voxprint tracer from the globally registered
// provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span on the voxprint tracer. The caller owns
// span.End().
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// activeSpan returns the span context in ctx and whether it carries a
// usable trace ID.
func activeSpan(ctx context.Context) (trace.SpanContext, bool) {
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.HasTraceID()
}

// CorrelationID is the trace ID of the active span, or "" outside a
// trace. It rides the X-Correlation-ID response header so a device or
// dashboard report can be matched to server spans and log lines.
func CorrelationID(ctx context.Context) string {
	sc, ok := activeSpan(ctx)
	if !ok {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns the default logger enriched with the active trace and
// span IDs, or unchanged when ctx carries no span.
func Logger(ctx context.Context) *slog.Logger {
	sc, ok := activeSpan(ctx)
	if !ok {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
