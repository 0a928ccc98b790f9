package middleware

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"

	"github.com/carnimore/checkout/pkg/logger"
)

const TraceHeader = "X-Trace-ID"

// RequestID reuses the caller's trace id or mints one, and binds it to the
// request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		w.Header().Set(TraceHeader, traceID)

		// keep chi's request id in step so LoggingMiddleware reports the same value
		r.Header.Set(middleware.RequestIDHeader, traceID)
		middleware.RequestID(next).ServeHTTP(w, r.WithContext(ctx))
	})
}
