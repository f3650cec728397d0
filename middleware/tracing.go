package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/wsgate"
)

const tracerName = "wsgate.dispatch"

// Tracing 创建链路追踪中间件
//
// 每次分发创建一个 Span，记录事件名与连接 ID，失败时标记错误状态。
func Tracing(service string) wsgate.Middleware {
	tracer := otel.Tracer(tracerName)

	return func(c *wsgate.Conn, msg *wsgate.Message, next wsgate.NextFunc) (any, error) {
		_, span := tracer.Start(c.Context(), "ws."+msg.Event,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.name", service),
				attribute.String("ws.event", msg.Event),
				attribute.String("ws.conn_id", c.ID),
				attribute.String("ws.request_id", msg.RequestID),
			),
		)
		defer span.End()

		result, err := next(msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return result, err
	}
}
