package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Observability records per-job instruments through an OpenTelemetry meter that is
// scraped through the default Prometheus registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	tracing       *Tracing
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	scoreValue    otelmetric.Float64Histogram
}

func New(serviceName string, logger *zap.Logger) *Observability {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporter, err := prometheus.New()
	if err != nil {
		logger.Warn("failed to create prometheus exporter", zap.Error(err))
		return &Observability{}
	}
	return newWithReader(serviceName, exporter)
}

func newWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"ranking.jobs.processed",
		otelmetric.WithDescription("Number of ranking jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"ranking.jobs.duration",
		otelmetric.WithDescription("Ranking job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	scoreValue, _ := meter.Float64Histogram(
		"ranking.score",
		otelmetric.WithDescription("Scores emitted by ranking workers"),
	)

	return &Observability{
		meterProvider: provider,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		scoreValue:    scoreValue,
	}
}

// WithTracing attaches a tracer so Shutdown flushes both pipelines.
func (o *Observability) WithTracing(t *Tracing) *Observability {
	o.tracing = t
	return o
}

// RecordJob counts one finished job and records how long it took.
func (o *Observability) RecordJob(ctx context.Context, taskType, status string, duration time.Duration) {
	o.RecordJobProcessed(ctx, taskType, status)
	o.RecordJobDuration(ctx, taskType, duration, status)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

// RecordScore tracks the distribution of a named score (exposure, urgency, feed, backhaul).
func (o *Observability) RecordScore(ctx context.Context, kind string, value float64) {
	if o == nil || o.scoreValue == nil {
		return
	}
	o.scoreValue.Record(ctx, value, otelmetric.WithAttributes(attribute.String("kind", kind)))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var firstErr error
	if o.meterProvider != nil {
		firstErr = o.meterProvider.Shutdown(ctx)
	}
	if o.tracing != nil {
		if err := o.tracing.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
