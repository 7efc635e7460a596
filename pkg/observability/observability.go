// Package observability wires OpenTelemetry tracing and RED metrics
// around the lifecycle: one span per stage, plus invocation/error counts
// and stage-duration histograms.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/faasrt/core/pkg/lifecycle"

// Provider bundles the tracer and metric instruments the lifecycle runner
// reports through. Its methods are nil-receiver-safe: a nil *Provider is
// a no-op default for hosts that don't configure an OTel SDK.
type Provider struct {
	tracer          trace.Tracer
	invocationCount metric.Int64Counter
	errorCount      metric.Int64Counter
	stageDuration   metric.Float64Histogram
}

// New builds a Provider from the globally configured OTel
// TracerProvider/MeterProvider (set those up via otel.SetTracerProvider/
// otel.SetMeterProvider before calling this; otherwise the global no-op
// providers are used).
func New() (*Provider, error) {
	meter := otel.Meter(instrumentationName)

	invocationCount, err := meter.Int64Counter("lifecycle.invocations",
		metric.WithDescription("Count of invocations dispatched through the lifecycle runner"))
	if err != nil {
		return nil, err
	}
	errorCount, err := meter.Int64Counter("lifecycle.errors",
		metric.WithDescription("Count of lifecycle stages that returned an error"))
	if err != nil {
		return nil, err
	}
	stageDuration, err := meter.Float64Histogram("lifecycle.stage.duration",
		metric.WithDescription("Duration of one lifecycle stage"), metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Provider{
		tracer:          otel.Tracer(instrumentationName),
		invocationCount: invocationCount,
		errorCount:      errorCount,
		stageDuration:   stageDuration,
	}, nil
}

// StartInvocation records the start of one invocation's root span and
// increments the invocation counter.
func (p *Provider) StartInvocation(ctx context.Context, requestID, traceParent string) (context.Context, trace.Span) {
	if p == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	p.invocationCount.Add(ctx, 1)

	opts := []trace.SpanStartOption{trace.WithAttributes(attribute.String("request_id", requestID))}
	if traceParent != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("trace_parent", traceParent)))
	}
	return p.tracer.Start(ctx, "lifecycle.invocation", opts...)
}

// StartStage opens a child span for one lifecycle stage and returns a
// closer that ends the span, records stage duration, and marks the error
// count on failure.
func (p *Provider) StartStage(ctx context.Context, stage string) (context.Context, func(err error)) {
	if p == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	spanCtx, span := p.tracer.Start(ctx, "lifecycle.stage."+stage)

	return spanCtx, func(err error) {
		defer span.End()
		elapsed := time.Since(start)
		p.stageDuration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("stage", stage)))
		if err != nil {
			p.errorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
			span.RecordError(err)
		}
	}
}
