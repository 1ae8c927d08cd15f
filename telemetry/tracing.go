package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with match and pairing helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFromProvider creates a tracer from an explicit provider.
func NewTracerFromProvider(tp trace.TracerProvider, name string) *Tracer {
	return &Tracer{tracer: tp.Tracer(name)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Match Spans ---

// StartMatchSpan starts the long-lived span covering one match. Pairing
// spans started from the returned context become its children.
func (t *Tracer) StartMatchSpan(ctx context.Context, matchID, mapName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "match", trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("match.id", matchID),
		attribute.String("match.map", mapName),
	)
	return ctx, span
}

// --- Pairing Spans ---

// PairingSpanOptions identifies one pairing attempt.
type PairingSpanOptions struct {
	PlayerID string
	TaskID   string
	ClassID  string
	Confirm  bool
}

// StartPairingSpan starts a span for one attempt of a player at a task.
func (t *Tracer) StartPairingSpan(ctx context.Context, opts PairingSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "task.pairing", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("player.id", opts.PlayerID),
		attribute.String("task.id", opts.TaskID),
		attribute.String("task.class", opts.ClassID),
		attribute.Bool("task.confirmation_scan", opts.Confirm),
	)
	return ctx, span
}

// EndPairingSpan ends a pairing span with its outcome.
func (t *Tracer) EndPairingSpan(span trace.Span, outcome string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("task.outcome", outcome))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// AddMatchEvent annotates the span in ctx, e.g. with a meeting call.
func AddMatchEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
