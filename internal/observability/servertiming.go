package observability

import (
	"context"
	"net/http"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric wraps the server-timing library's Metric type.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the timing metric.
func (m *ServerTimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartServerTiming starts a server-timing metric with the given name.
// When server timing is disabled or absent from the context, the
// returned metric is a no-op.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &ServerTimingMetric{}
	}
	return &ServerTimingMetric{metric: timing.NewMetric(name).Start()}
}

// ServerTimingMiddleware wraps next with Server-Timing header support
// when enabled; otherwise next is returned unchanged.
func ServerTimingMiddleware(next http.Handler, enabled bool) http.Handler {
	if !enabled {
		return next
	}
	return servertiming.Middleware(next, nil)
}
