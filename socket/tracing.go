package socket

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/kleeedolinux/socketclient/socket"

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func (c *Client) startSpan(name string, event Event, kind trace.SpanKind) trace.Span {
	_, span := c.tracer.Start(context.Background(), name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("socket.event", string(event)),
			attribute.String("socket.namespace", c.cfg.Namespace),
			attribute.String("socket.client_id", c.id),
		),
	)
	return span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
