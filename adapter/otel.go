// Package adapter connects shm-arbiter to external observability systems.
package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/srediag/shm-arbiter"

// Instruments records a span and a latency sample for every client request.
type Instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

// NewInstruments builds instruments from meter and tracer. Nil values fall back
// to the global OpenTelemetry providers, which are no-ops until configured.
func NewInstruments(meter metric.Meter, tracer trace.Tracer) (*Instruments, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	duration, err := meter.Float64Histogram("shm.client.request.duration",
		metric.WithDescription("Duration of arbiter requests."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instruments{tracer: tracer, duration: duration}, nil
}

// Start opens a span named after op. The returned func ends the span and
// records the duration; pass it the operation's error.
func (i *Instruments) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := i.tracer.Start(ctx, "shm."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		i.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("shm.op", op),
			attribute.String("shm.result", result),
		))
		span.End()
	}
}
