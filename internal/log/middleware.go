package log

import (
	"net/http"
)

// Middleware injects an http component logger into the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLogger(r.Context(), logger.WithComponent(ComponentHTTP))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
