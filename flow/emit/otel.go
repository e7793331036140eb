package emit

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into an OpenTelemetry span. Spans are
// ended immediately since events represent points in time; duration
// lives in the "duration_ms" attribute.
//
// Attribute namespace is "flowline." with LLM accounting mapped to
// flowline.llm.* keys.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter over a tracer, typically
// otel.Tracer("flowline").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()
	o.record(span, event)
}

// EmitBatch creates spans for many events under one context, letting
// the span processor batch the export.
func (o *OTelEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, event := range events {
		_, span := o.tracer.Start(ctx, event.Msg)
		o.record(span, event)
		span.End()
	}
	return nil
}

// Flush forces export of pending spans. Call before shutdown.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) record(span trace.Span, event Event) {
	span.SetAttributes(
		attribute.String("flowline.run_id", event.RunID),
		attribute.Int("flowline.step", event.Step),
		attribute.String("flowline.node_id", event.NodeID),
		attribute.String("flowline.kind", event.Kind),
	)

	for key, value := range event.Meta {
		setAttribute(span, attrKey(key), value)
	}

	if errText, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errText)
		span.RecordError(fmt.Errorf("%s", errText))
	}
}

func attrKey(key string) string {
	switch key {
	case "tokens_in":
		return "flowline.llm.tokens_in"
	case "tokens_out":
		return "flowline.llm.tokens_out"
	case "cost_usd":
		return "flowline.llm.cost_usd"
	case "model":
		return "flowline.llm.model"
	case "provider":
		return "flowline.llm.provider"
	case "latency_ms", "duration_ms":
		return "flowline.step." + key
	default:
		return key
	}
}

func setAttribute(span trace.Span, key string, value interface{}) {
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	case time.Duration:
		span.SetAttributes(attribute.Int64(key, int64(v/time.Millisecond)))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}
