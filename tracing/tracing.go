package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "btccrawler"

// Tracer starts the spans of one crawl. A nil *Tracer is disabled and every method is a no-op.
type Tracer struct {
	tracer trace.Tracer
}

func New(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// Setup returns a tracer exporting to stdout when enable is true, nil otherwise.
// The returned shutdown flushes pending spans and should be deferred.
func Setup(enable bool) (*Tracer, func(context.Context) error, error) {
	if !enable {
		return nil, func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	return New(tp), tp.Shutdown, nil
}

func (t *Tracer) Enabled() bool {
	return t != nil
}

// Start starts a span, the returned func ends it
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if t == nil {
		return ctx, func() {}
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// Annotate adds attributes to the span of ctx
func (t *Tracer) Annotate(ctx context.Context, attrs ...attribute.KeyValue) {
	if t == nil {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// Fail marks the span of ctx as failed
func (t *Tracer) Fail(ctx context.Context, err error) {
	if t == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
