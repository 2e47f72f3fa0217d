package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const tracerName = "escort-ranking-workers"

// Tracing owns the tracer provider. Without a Jaeger endpoint it hands out no-op spans.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

func NewTracing(serviceName, jaegerEndpoint string, sampleRatio float64, logger *zap.Logger) *Tracing {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jaegerEndpoint == "" {
		return &Tracing{tracer: noop.NewTracerProvider().Tracer(tracerName)}
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
	if err != nil {
		logger.Warn("jaeger exporter init failed, tracing disabled", zap.Error(err))
		return &Tracing{tracer: noop.NewTracerProvider().Tracer(tracerName)}
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(provider)

	logger.Info("tracing initialized", zap.String("endpoint", jaegerEndpoint), zap.Float64("sampleRatio", sampleRatio))

	return &Tracing{provider: provider, tracer: provider.Tracer(tracerName)}
}

// StartSpan opens a span named after the task type. Callers must call the returned end func.
func (t *Tracing) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if t == nil || t.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
