package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const meterName = "github.com/styleatlas/catalog-annotation"

// Metrics holds all application metrics
type Metrics struct {
	BatchCount    metric.Int64Counter
	BatchDuration metric.Float64Histogram
	ItemCount     metric.Int64Counter
	ItemFailures  metric.Int64Counter
	RunAttempts   metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing and metric export
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Set up metric exporter
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	batchCount, err := meter.Int64Counter(
		"ai.batch.count",
		metric.WithDescription("Number of AI batches processed"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"ai.batch.duration",
		metric.WithDescription("AI batch processing duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	itemCount, err := meter.Int64Counter(
		"ai.item.count",
		metric.WithDescription("Number of assignment items processed"),
	)
	if err != nil {
		return nil, err
	}

	itemFailures, err := meter.Int64Counter(
		"ai.item.failures",
		metric.WithDescription("Number of assignment items that ended failed"),
	)
	if err != nil {
		return nil, err
	}

	runAttempts, err := meter.Int64Counter(
		"ai.run.attempts",
		metric.WithDescription("Number of provider attempts across all items"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		BatchCount:    batchCount,
		BatchDuration: batchDuration,
		ItemCount:     itemCount,
		ItemFailures:  itemFailures,
		RunAttempts:   runAttempts,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(meterName)
	return tracer.Start(ctx, spanName)
}

// RecordBatchMetric records the outcome of one batch run
func RecordBatchMetric(ctx context.Context, metrics *Metrics, outcome string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("batch.outcome", outcome),
	}
	metrics.BatchCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.BatchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordItemMetric records the outcome of one assignment item
func RecordItemMetric(ctx context.Context, metrics *Metrics, providerName, outcome string, attempts int) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", providerName),
		attribute.String("item.outcome", outcome),
	}
	metrics.ItemCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.RunAttempts.Add(ctx, int64(attempts), metric.WithAttributes(attrs...))
	if outcome == "failed" || outcome == "auth_failed" {
		metrics.ItemFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
