package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"chaty/pkg/logging"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger injects a per-request logger into the context and logs the
// outcome of every request.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				logging.RequestID(chimw.GetReqID(r.Context())),
			)
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				reqLog.InfoContext(r.Context(), "http - request - completed",
					slog.Int("status", ww.Status()),
					slog.Duration("latency", time.Since(start)),
					slog.String("remote_addr", r.RemoteAddr),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(logging.WithContext(r.Context(), reqLog)))
		})
	}
}
