// Package observability wires OpenTelemetry tracing and metrics plus the
// Server-Timing header into the protocol engine. With nil providers
// everything degrades to no-ops.
package observability

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this instrumentation scope.
const TracerName = "github.com/objectql/odata"

// Config holds the observability configuration for the service.
type Config struct {
	// TracerProvider is the OpenTelemetry tracer provider. If nil,
	// tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider is the OpenTelemetry meter provider. If nil,
	// metrics collection is disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in traces and metrics.
	ServiceName string

	// EnableServerTiming adds the Server-Timing header to responses.
	EnableServerTiming bool

	tracer  *Tracer
	metrics *Metrics
}

// Option is a functional option for configuring observability.
type Option func(*Config)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

// WithServiceName sets the service name for identification.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithServerTiming enables the Server-Timing response header.
func WithServerTiming(enabled bool) Option {
	return func(c *Config) {
		c.EnableServerTiming = enabled
	}
}

// New creates an observability configuration. Missing providers leave
// the corresponding concern disabled.
func New(opts ...Option) *Config {
	c := &Config{ServiceName: "odata"}
	for _, opt := range opts {
		opt(c)
	}

	if c.TracerProvider != nil {
		c.tracer = NewTracer(c.TracerProvider, c.ServiceName)
	} else {
		c.tracer = noopTracer()
	}

	if c.MeterProvider != nil {
		c.metrics = NewMetrics(c.MeterProvider)
	} else {
		c.metrics = noopMetrics()
	}

	return c
}

// Tracer returns the configured tracer. Never nil.
func (c *Config) Tracer() *Tracer {
	if c == nil || c.tracer == nil {
		return noopTracer()
	}
	return c.tracer
}

// Metrics returns the configured metrics recorder. Never nil.
func (c *Config) Metrics() *Metrics {
	if c == nil || c.metrics == nil {
		return noopMetrics()
	}
	return c.metrics
}
