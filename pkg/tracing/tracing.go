// Package tracing wires optional OpenTelemetry spans around WHIP/WHEP
// negotiation and cascade HTTP calls. Disabled by default; when enabled it
// exports to a Jaeger collector.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

type TracerProvider struct {
	tp *tracesdk.TracerProvider
}

type Config struct {
	Enabled     bool
	ServiceName string
	JaegerURL   string
	Environment string
	SampleRate  float64
}

func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "live777go",
		JaegerURL:   "http://localhost:14268/api/traces",
		Environment: "development",
		SampleRate:  0.1,
	}
}

func Init(cfg Config) (*TracerProvider, error) {
	if !cfg.Enabled {
		return &TracerProvider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.TraceIDRatioBased(cfg.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{tp: tp}, nil
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("live777go")
	return tracer.Start(ctx, name, opts...)
}

func AddSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

var (
	StreamIDKey   = attribute.Key("stream.id")
	SessionIDKey  = attribute.Key("session.id")
	KindKey       = attribute.Key("kind")
	RidKey        = attribute.Key("rid")
	OperationKey  = attribute.Key("operation")
	DurationKey   = attribute.Key("duration_ms")
)

// TraceWHIP traces a publish (WHIP) negotiation.
func TraceWHIP(ctx context.Context, streamID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "whip.publish", trace.WithAttributes(StreamIDKey.String(streamID)))
}

// TraceWHEP traces a subscribe (WHEP) negotiation.
func TraceWHEP(ctx context.Context, streamID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "whep.subscribe", trace.WithAttributes(StreamIDKey.String(streamID)))
}

// TraceCascade traces an outbound cascade pull/push HTTP call.
func TraceCascade(ctx context.Context, direction, streamID string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("cascade.%s", direction),
		trace.WithAttributes(
			OperationKey.String(direction),
			StreamIDKey.String(streamID),
		),
	)
}

// MeasureDuration attaches elapsed wall time since start to the span in ctx.
func MeasureDuration(ctx context.Context, start time.Time, operation string) {
	AddSpanAttributes(ctx,
		OperationKey.String(operation),
		DurationKey.Int64(time.Since(start).Milliseconds()),
	)
}
