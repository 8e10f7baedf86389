// Package trace tags every request with a trace id and records its
// access log line and HTTP metrics.
package trace

import (
	"cmp"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"github.com/zenazn/goji/web/mutil"

	"deals/internal/log"
	"deals/internal/metrics"
)

// HeaderTraceID carries the trace id in both directions.
const HeaderTraceID = "X-Trace-Id"

// Middleware handles request tracing and logging
type Middleware struct {
	extractIP func(*http.Request) string
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP}
}

// Handler honours an incoming X-Trace-Id or mints one, then logs the
// request start and completion.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get(HeaderTraceID)
		if traceID == "" {
			traceID = xid.New().String()
		}
		w.Header().Set(HeaderTraceID, traceID)
		ctx := log.WithTraceID(r.Context(), traceID)
		r = r.WithContext(ctx)

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		slog.InfoContext(ctx, "HTTP request started",
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent(), clientIP).ToSlice()...)

		lw := mutil.WrapWriter(w)
		next.ServeHTTP(lw, r)

		// Status is 0 when the handler never called WriteHeader.
		status := cmp.Or(lw.Status(), http.StatusOK)
		duration := time.Since(start)
		route := routePattern(r)

		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "HTTP request completed",
			log.NewFields().WithHTTPResponse(route, status, duration.Milliseconds()).ToSlice()...)
	})
}

// routePattern returns the matched chi pattern so metric labels stay bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
