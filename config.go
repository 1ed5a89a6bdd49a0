package odata

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNamespace is used when no explicit namespace is configured.
const DefaultNamespace = "ODataService"

// DefaultMaxExpandDepth bounds $expand nesting when the configuration
// does not set one.
const DefaultMaxExpandDepth = 3

// Config controls service behavior. It is a value object: NewService
// copies it, and changes made to a Config after construction have no
// effect on a running service. The zero value is usable; DefaultConfig
// fills in the recommended defaults.
type Config struct {
	// BasePath is the URL prefix the service is mounted under, for
	// example "/odata". Requests outside it are rejected with 404.
	BasePath string

	// Namespace is the schema namespace advertised in $metadata.
	Namespace string

	// MaxExpandDepth bounds $expand nesting. Zero means
	// DefaultMaxExpandDepth.
	MaxExpandDepth int

	// EnableBatch exposes the $batch endpoint.
	EnableBatch bool

	// EnableSearch lets $search pass through to the record store. When
	// false the option is ignored entirely.
	EnableSearch bool

	// EnableETags turns on ETag generation and If-Match/If-None-Match
	// precondition handling.
	EnableETags bool

	// EnableCORS wraps the service in a CORS middleware allowing
	// CORSOrigins.
	EnableCORS bool

	// CORSOrigins lists the allowed origins; empty means all origins.
	CORSOrigins []string

	// EnableServerTiming adds Server-Timing headers with store and
	// expand latencies.
	EnableServerTiming bool

	// Logger receives structured logs. Nil means slog.Default().
	Logger *slog.Logger

	// TracerProvider enables OpenTelemetry tracing. Nil means no-op.
	TracerProvider trace.TracerProvider

	// MeterProvider enables OpenTelemetry metrics. Nil means no-op.
	MeterProvider metric.MeterProvider

	// ServiceName names this service in telemetry.
	ServiceName string
}

// DefaultConfig returns the recommended configuration: batch, ETags and
// a bounded expand depth enabled, search and CORS disabled.
func DefaultConfig() Config {
	return Config{
		Namespace:      DefaultNamespace,
		MaxExpandDepth: DefaultMaxExpandDepth,
		EnableBatch:    true,
		EnableETags:    true,
		ServiceName:    "odata",
	}
}

// withDefaults returns a copy with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.MaxExpandDepth <= 0 {
		c.MaxExpandDepth = DefaultMaxExpandDepth
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ServiceName == "" {
		c.ServiceName = "odata"
	}
	return c
}
