package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

// CorrelationIDKey carries the request's correlation id through the
// request context.
const CorrelationIDKey contextKey = "correlation_id"

// CorrelationHeader is the inbound/outbound correlation id header.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationID stamps each request with a correlation id, taken from the
// inbound header or freshly generated, and echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(CorrelationHeader, id)
		ctx := context.WithValue(r.Context(), CorrelationIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestCorrelationID extracts the correlation id stamped on the request.
func RequestCorrelationID(r *http.Request) string {
	id, _ := r.Context().Value(CorrelationIDKey).(string)
	return id
}

// Logger returns middleware that logs each request's method, URI,
// correlation id, and duration.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info(
				"request",
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"correlation_id", RequestCorrelationID(r),
				"duration", time.Since(start),
			)
		})
	}
}
