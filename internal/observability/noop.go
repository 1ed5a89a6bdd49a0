package observability

import (
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func noopTracer() *Tracer {
	return NewTracer(tracenoop.NewTracerProvider(), "odata")
}

func noopMetrics() *Metrics {
	return NewMetrics(noop.NewMeterProvider())
}
