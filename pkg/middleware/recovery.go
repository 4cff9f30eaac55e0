package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/pkg/logger"
)

var recoveredPanics = promauto.NewCounter(prometheus.CounterOpts{
	Name: "storefront_http_panics_total",
	Help: "Handler panics turned into 500 responses",
})

// Recovery turns a handler panic into a 500 with the standard error envelope.
// The panic is logged with the request's correlation and device ids, so it
// must run inside RequestLogging. http.ErrAbortHandler is re-raised.
func Recovery(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				recoveredPanics.Inc()

				l := logger.WithContext(r.Context(), base)
				if id := r.Header.Get(DeviceIDHeader); id != "" && logger.DeviceIDFromContext(r.Context()) == "" {
					l = l.With(slog.String("device_id", id))
				}
				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
