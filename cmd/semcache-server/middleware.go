package main

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/semcache/internal/metrics"
	"github.com/blueberrycongee/semcache/internal/observability"
)

// buildMiddlewareStack wraps the mux as RequestID(Tracing(Metrics(mux))).
// Metrics and tracing read the matched pattern after ServeHTTP, so neither
// may sit behind a middleware that replaces the request.
func buildMiddlewareStack(httpMetrics *metrics.HTTPMetrics, tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}
		handler := httpMetrics.Middleware(next)
		handler = observability.HTTPTracingMiddleware(tracer, handler)
		handler = observability.RequestIDMiddleware(handler)
		return handler
	}
}
