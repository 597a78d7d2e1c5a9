package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/adscribe-api/internal/api/shared"
	"github.com/phrazzld/adscribe-api/internal/platform/logger"
)

// TraceMiddleware adds a trace ID to the request context along with a
// logger scoped to that ID. Apply it early in the middleware chain so
// all subsequent handlers see both.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		traceID := shared.GetTraceID(ctx)

		requestLogger := slog.Default().With(slog.String("trace_id", traceID))
		ctx = logger.WithLogger(ctx, requestLogger)

		requestLogger.Debug("request started",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
