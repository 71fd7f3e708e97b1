package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceRequest wraps a single wire-protocol request with a span named
// after method, the same shape the gRPC unary interceptor used to
// provide, generalized to a framing-agnostic request/response call.
// The returned finish function must be called with the handler's error
// (nil on success).
func TraceRequest(ctx context.Context, method string) (context.Context, func(err error)) {
	tracer := otel.GetTracerProvider().Tracer("treasury-server")

	ctx, span := tracer.Start(
		ctx,
		fmt.Sprintf("request.%s", method),
		trace.WithAttributes(
			attribute.String("treasury.method", method),
		),
	)
	start := time.Now()

	return ctx, func(err error) {
		span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}
