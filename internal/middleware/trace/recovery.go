package trace

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"deals/internal/log"
)

// Recovery turns a handler panic into a logged 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.FromContext(r.Context()).ErrorContext(r.Context(), "panic in handler",
				slog.Any(log.FieldError, rec),
				slog.String("stack", string(debug.Stack())),
				slog.String(log.FieldPath, r.URL.Path))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
