package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RX12/RF-LOS-CH/internal/logging"
)

const requestIDHeader = "X-Request-Id"

const tracerName = "github.com/RX12/RF-LOS-CH/internal/httpapi"

// RequestID ensures a request_id is present on the context, sourcing
// it from an inbound X-Request-Id header if provided, echoes it on the
// response, and attaches a per-request logger annotated with the id
// and matched route.
func RequestID(base logging.Logger) gin.HandlerFunc {
	if base == nil {
		base = logging.Noop()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}

		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(logging.String("route", routeName(c))))
		ctx = logging.ContextWithLogger(ctx, reqLog)

		c.Header(requestIDHeader, logging.RequestIDFromContext(ctx))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLog emits one structured line per request once the handler
// chain has finished. It expects RequestID to have run first.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		logging.LoggerFromContext(ctx).Info(ctx, "http request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
			logging.String("client", c.ClientIP()),
		)
	}
}

// Tracing opens a server span per request, named after the matched
// route so cardinality stays bounded.
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		route := routeName(c)
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", c.Request.URL.Path),
		)

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(otelcodes.Error, http.StatusText(status))
		}
		span.End()
	}
}

func routeName(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
