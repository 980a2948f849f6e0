package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/storeledger/internal/authorization"
	"github.com/smallbiznis/storeledger/pkg/log/ctxlogger"
	"github.com/smallbiznis/storeledger/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-Id"

	contextRequestIDKey = "request_id"
)

// RequestLogger logs each request with correlation identifiers and safe fields.
func RequestLogger(base *zap.Logger, classify func(err error) (string, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := correlation.ContextWithCorrelationID(c.Request.Context(), strings.TrimSpace(c.GetHeader(correlation.HeaderName)))
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Header(correlation.HeaderName, cid)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
		}
		if actor := strings.TrimSpace(c.GetHeader(authorization.HeaderActor)); actor != "" {
			fields = append(fields, zap.String("actor", actor))
		}
		if lastErr := c.Errors.Last(); lastErr != nil && classify != nil {
			errorType, errorCode := classify(lastErr.Err)
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
		}

		log := ctxlogger.WithContext(c.Request.Context(), base)
		switch {
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// Tracing opens a server span per request and continues any incoming trace.
func Tracing() gin.HandlerFunc {
	tracer := otel.Tracer("storeledger/http")
	propagator := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
		)
		if requestID := c.GetString(contextRequestIDKey); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr.Err)
			}
			span.SetStatus(codes.Error, "request error")
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(contextRequestIDKey, requestID)
	c.Header(HeaderRequestID, requestID)
	return requestID
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

// throttle rejects remote-bound operations over the per-actor budget.
func (s *Server) throttle(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := s.limiter.Allow(c.Request.Context(), operation, authorization.CurrentUser(c))
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
