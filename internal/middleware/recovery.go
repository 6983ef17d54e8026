package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/R3E-Network/factory_os/internal/errors"
	"github.com/R3E-Network/factory_os/internal/httputil"
	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/gorilla/mux"
)

// RecoveryMiddleware turns a panic in a handler into a 500 JSON error body
// and logs the stack. Install it directly inside LoggingMiddleware so the
// error body carries the request id.
func RecoveryMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrapResponseWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				logger.WithContext(r.Context()).WithError(err).WithField("stack", string(debug.Stack())).
					Error("unhandled panic")

				if wrapped.written {
					return
				}
				httputil.WriteServiceError(wrapped, r, errors.Internal(err.Error(), err))
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}
