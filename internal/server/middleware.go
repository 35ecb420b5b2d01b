package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
	"go.opentelemetry.io/otel/propagation"
)

// Recovery turns a handler panic into a JSON 500 and attaches the panic value
// to the request log record written by Logging.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				httplog.SetError(r.Context(), fmt.Errorf("panic: %v", rec))
				writeJSONError(r.Context(), w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// usagePath is polled by status bars every few seconds.
const usagePath = "/v1/usage"

// Logging writes one ECS record per request. Successful usage polls are only
// recorded at debug level. Handlers add their own fields through logAttrs;
// headers and bodies are never recorded since responses carry account details.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS.Concise(true),
		Skip: func(r *http.Request, status int) bool {
			return r.Method == http.MethodGet && r.URL.Path == usagePath &&
				status == http.StatusOK && !logger.Enabled(r.Context(), slog.LevelDebug)
		},

		LogRequestHeaders:  []string{"Content-Type"},
		LogResponseHeaders: []string{},

		RecoverPanics: false,
	})
}

// logAttrs adds fields to the request's log record.
func logAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}

var traceContext = propagation.TraceContext{}

// TraceContext picks up W3C traceparent/tracestate headers so that log
// records emitted while handling the request carry the caller's trace.
func TraceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := traceContext.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// applyMiddlewares applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
