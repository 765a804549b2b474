package annotation

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type annotationMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
}

// metricsOnce guards instrument creation: gateways record from concurrent
// item workers, so the first calls may land simultaneously.
var metricsOnce sync.Once
var metricsReady bool
var metrics annotationMetrics

func ensureMetrics() {
	metricsOnce.Do(initMetrics)
}

func initMetrics() {
	meter := otel.Meter("github.com/styleatlas/catalog-annotation/annotation")

	requestCount, err := meter.Int64Counter(
		"ai.annotation.request.count",
		metric.WithDescription("Number of annotation provider requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.annotation.request.duration",
		metric.WithDescription("Annotation provider request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.annotation.request.errors",
		metric.WithDescription("Number of annotation provider request errors"),
	)
	if err != nil {
		return
	}

	metrics = annotationMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
	}
	metricsReady = true
}

func recordAnnotationMetric(ctx context.Context, service string, model string, statusCode int, duration time.Duration, err error) {
	ensureMetrics()
	if !metricsReady {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", service),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	metrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	metrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		errorAttrs := append(attrs, attribute.String("error.message", err.Error()))
		metrics.requestErrors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}
