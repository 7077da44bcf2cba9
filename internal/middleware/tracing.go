package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/osvaldoandrade/gaitkeepr/internal/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware continues the caller's W3C trace (the CLI sends
// traceparent) and wraps the handler chain in a server span named after the
// matched route. The trace id is echoed in X-Trace-Id.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "gaitkeepr"
	}
	tracer := otel.Tracer(serviceName + "/http")

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx := tracing.ExtractHeaders(c.Request.Context(), c.Request.Header)
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", c.Request.URL.Path),
				attribute.String("server.address", c.Request.Host),
			),
		)
		defer span.End()

		if id := c.GetString("request_id"); id != "" {
			span.SetAttributes(attribute.String("gaitkeepr.request_id", id))
		}
		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header("X-Trace-Id", sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if jobID := c.GetString("job_id"); jobID != "" {
			span.SetAttributes(attribute.String("gaitkeepr.job_id", jobID))
		}
		for _, e := range c.Errors {
			span.RecordError(e.Err)
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
