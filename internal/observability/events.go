package observability

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

// EventEnvelope is the body of a transport lifecycle event on the bus.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Epoch     uint64      `json:"epoch"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders returns the AMQP headers for a lifecycle event. The trace id
// is taken from the span in ctx, if any.
func BuildHeaders(ctx context.Context, connID string, epoch uint64) map[string]string {
	headers := map[string]string{}
	if connID != "" {
		headers["x-conn-id"] = connID
	}
	if epoch != 0 {
		headers["x-epoch"] = strconv.FormatUint(epoch, 10)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		headers["trace_id"] = sc.TraceID().String()
	}
	return headers
}
