package otel

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies spans produced by the settlement engine.
const InstrumentationName = "dope/settlement"

var tracing atomic.Bool

func setTracing(on bool) { tracing.Store(on) }

// Tracer returns the settlement tracer: the global provider's while trace
// export is on, a no-op tracer otherwise.
func Tracer() trace.Tracer {
	if !tracing.Load() {
		return noop.NewTracerProvider().Tracer(InstrumentationName)
	}
	return otel.Tracer(InstrumentationName)
}

// Operation is the span covering one settlement operation.
type Operation struct {
	span trace.Span
}

// StartOperation opens a "settlement.<op>" span stamped with the phase and
// ledger time the operation runs under. A nil tracer falls back to Tracer.
func StartOperation(ctx context.Context, tracer trace.Tracer, op, phase string, now uint64) (context.Context, *Operation) {
	if tracer == nil {
		tracer = Tracer()
	}
	ctx, span := tracer.Start(ctx, "settlement."+op, trace.WithAttributes(
		attribute.String("settlement.operation", op),
		attribute.String("settlement.phase", phase),
		attribute.Int64("settlement.now", int64(now)),
	))
	return ctx, &Operation{span: span}
}

// Reject marks the operation as rolled back with the given error code.
func (o *Operation) Reject(code string, err error) {
	o.span.SetAttributes(attribute.String("settlement.code", code))
	if err != nil {
		o.span.RecordError(err)
	}
	o.span.SetStatus(codes.Error, code)
}

// Commit marks the operation as committed.
func (o *Operation) Commit() {
	o.span.SetStatus(codes.Ok, "")
}

func (o *Operation) End() { o.span.End() }
