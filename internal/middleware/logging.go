package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

// CorrelationIDKey is the context key for the request correlation ID.
const CorrelationIDKey ContextKey = "correlation_id"

const correlationHeader = "X-Correlation-ID"

// quietPaths are probed constantly and logged at debug.
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Logging logs each request and records its latency. Requests keep the
// caller's correlation ID or get a new one, echoed in the response.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(correlationHeader)
			if correlationID == "" {
				correlationID = uuid.Must(uuid.NewV7()).String()
			}
			w.Header().Set(correlationHeader, correlationID)

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(context.WithValue(r.Context(), CorrelationIDKey, correlationID))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			// Route patterns keep metric cardinality bounded.
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			metrics.RecordRequest(r.Method, route, strconv.Itoa(status), duration.Seconds())

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("correlation_id", correlationID),
			}
			switch {
			case status >= http.StatusInternalServerError:
				log.Warn("request failed", fields...)
			case quietPaths[r.URL.Path]:
				log.Debug("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}

// GetCorrelationID gets correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}
