package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by every smartcare span.
const TracerName = "smartcare"

// Config holds OpenTelemetry configuration. Tracing is off unless
// CollectorEndpoint is set.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	Environment       string
	CollectorEndpoint string
	CollectorInsecure bool
	SamplingRate      float64 // 0.0 to 1.0
}

// DefaultConfig returns a disabled tracing configuration.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:       serviceName,
		ServiceVersion:    "1.0.0",
		Environment:       "development",
		CollectorInsecure: true,
		SamplingRate:      1.0,
	}
}

// Enabled reports whether an exporter should be started.
func (c *Config) Enabled() bool {
	return c != nil && c.CollectorEndpoint != ""
}

// InitTracer installs a global tracer provider exporting over OTLP gRPC.
// It returns a nil provider when tracing is disabled; spans are then no-ops.
func InitTracer(ctx context.Context, config *Config) (*sdktrace.TracerProvider, error) {
	if !config.Enabled() {
		return nil, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.CollectorEndpoint)}
	if config.CollectorInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
			attribute.String("deployment.environment", config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the smartcare tracer with optional attributes.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordError marks the span as failed.
func RecordError(span trace.Span, err error, message string) {
	if span == nil || err == nil {
		return
	}

	if message != "" {
		span.RecordError(err, trace.WithAttributes(
			attribute.String("error.message", message),
		))
	} else {
		span.RecordError(err)
	}

	span.SetStatus(codes.Error, err.Error())
}

// Common attribute keys
const (
	AttrTargetDate = attribute.Key("smartcare.target_date")
	AttrModel      = attribute.Key("smartcare.model")
	AttrSource     = attribute.Key("smartcare.source")
	AttrVersion    = attribute.Key("smartcare.artifact_version")
	AttrRows       = attribute.Key("smartcare.rows")
	AttrNeighbours = attribute.Key("smartcare.neighbours")
	AttrDays       = attribute.Key("smartcare.days")
)

// PredictionAttributes describes a single-day request.
func PredictionAttributes(targetDate, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTargetDate.String(targetDate),
		AttrModel.String(model),
	}
}

// TrainingAttributes describes a training run.
func TrainingAttributes(rows int, models []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRows.Int(rows),
		attribute.StringSlice(string(AttrModel), models),
	}
}
