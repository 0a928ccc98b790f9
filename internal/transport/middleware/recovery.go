package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/carnimore/checkout/pkg/logger"
)

// RecoveryMiddleware turns a panic into the standard failure body.
func RecoveryMiddleware(lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.FromOr(r.Context(), lg).Error("panic recovered",
						"error", err,
						"method", r.Method,
						"url", r.URL.Path,
						"stack", string(debug.Stack()))

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"success":false,"message":"internal server error","error":"INTERNAL_ERROR"}`))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
