package api

import (
	"fmt"
	"net/http"

	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/uav-coordinator/internal/api"

// tracingMiddleware wraps h in a server span per request, enriched with the
// route pattern and request ID, mirroring the RPC interceptor's shape for
// the HTTP surface.
func tracingMiddleware(route string, h http.HandlerFunc) http.HandlerFunc {
	tracer := otel.Tracer(tracerName)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			spanName := fmt.Sprintf("HTTP %s %s", r.Method, route)
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(fmt.Sprintf("HTTP %s %s", r.Method, route))
		}

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
		}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attribute.String("request_id", reqID))
		}
		span.SetAttributes(attrs...)

		h(w, r.WithContext(ctx))

		if created {
			span.End()
		}
	}
}
