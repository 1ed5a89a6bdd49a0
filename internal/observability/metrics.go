package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records engine-level measurements. All methods are safe to
// call on instances built without a meter provider.
type Metrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	batchSize       metric.Int64Histogram
}

// NewMetrics creates the engine's instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(TracerName)

	requestCount, _ := meter.Int64Counter("odata.requests",
		metric.WithDescription("Number of OData requests processed"))
	requestDuration, _ := meter.Float64Histogram("odata.request.duration",
		metric.WithDescription("OData request duration in seconds"),
		metric.WithUnit("s"))
	batchSize, _ := meter.Int64Histogram("odata.batch.size",
		metric.WithDescription("Number of parts per $batch request"))

	return &Metrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		batchSize:       batchSize,
	}
}

// RecordRequest records one processed request.
func (m *Metrics) RecordRequest(ctx context.Context, entitySet string, op string, status int, duration time.Duration) {
	if m == nil || m.requestCount == nil {
		return
	}
	attrs := metric.WithAttributes(
		EntitySetAttr(entitySet),
		OperationAttr(op),
		attribute.Int("http.status_code", status),
	)
	m.requestCount.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordBatchSize records the number of parts of one $batch request.
func (m *Metrics) RecordBatchSize(ctx context.Context, size int) {
	if m == nil || m.batchSize == nil {
		return
	}
	m.batchSize.Record(ctx, int64(size))
}
