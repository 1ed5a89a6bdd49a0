package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrEntitySet   = "odata.entity_set"
	AttrEntityKey   = "odata.entity_key"
	AttrOperation   = "odata.operation"
	AttrBatchSize   = "odata.batch.size"
	AttrExpandDepth = "odata.expand.depth"
)

// Operation attribute values.
const (
	OpReadCollection = "read_collection"
	OpReadEntity     = "read_entity"
	OpCreate         = "create"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpCount          = "count"
	OpBatch          = "batch"
	OpExpand         = "expand"
)

// EntitySetAttr builds the entity set span attribute.
func EntitySetAttr(entitySet string) attribute.KeyValue {
	return attribute.String(AttrEntitySet, entitySet)
}

// OperationAttr builds the operation span attribute.
func OperationAttr(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// BatchSizeAttr builds the batch size span attribute.
func BatchSizeAttr(size int) attribute.KeyValue {
	return attribute.Int(AttrBatchSize, size)
}

// Tracer wraps an OpenTelemetry tracer with engine-specific span
// creation methods.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartRead starts a span for an entity or collection read.
func (t *Tracer) StartRead(ctx context.Context, entitySet string, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{EntitySetAttr(entitySet)}
	if key != "" {
		attrs = append(attrs, attribute.String(AttrEntityKey, key), OperationAttr(OpReadEntity))
	} else {
		attrs = append(attrs, OperationAttr(OpReadCollection))
	}
	return t.tracer.Start(ctx, "odata.read", trace.WithAttributes(attrs...))
}

// StartWrite starts a span for a create, update or delete.
func (t *Tracer) StartWrite(ctx context.Context, entitySet string, key string, op string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{EntitySetAttr(entitySet), OperationAttr(op)}
	if key != "" {
		attrs = append(attrs, attribute.String(AttrEntityKey, key))
	}
	return t.tracer.Start(ctx, "odata.write", trace.WithAttributes(attrs...))
}

// StartBatch starts a span for a $batch request.
func (t *Tracer) StartBatch(ctx context.Context, size int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "odata.batch", trace.WithAttributes(
		OperationAttr(OpBatch),
		BatchSizeAttr(size),
	))
}

// StartExpand starts a span for related-record expansion.
func (t *Tracer) StartExpand(ctx context.Context, entitySet string, depth int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "odata.expand", trace.WithAttributes(
		EntitySetAttr(entitySet),
		OperationAttr(OpExpand),
		attribute.Int(AttrExpandDepth, depth),
	))
}

// EndSpan finishes a span, recording err when present.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
