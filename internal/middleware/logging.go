// Package middleware provides HTTP middleware for the service layer
package middleware

import (
	"net/http"
	"time"

	"github.com/R3E-Network/factory_os/internal/httputil"
	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/gorilla/mux"
)

// LoggingMiddleware assigns every request an id and logs it once served.
// An inbound X-Request-ID is reused so callers can correlate.
func LoggingMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(httputil.RequestIDHeader)
			if requestID == "" {
				requestID = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), requestID)
			r = r.WithContext(ctx)
			w.Header().Set(httputil.RequestIDHeader, requestID)

			wrapped := wrapResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			logger.LogRequest(ctx, r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}
