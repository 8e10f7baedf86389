package log

import (
	"context"
	"log/slog"
)

type (
	contextKeyTraceID struct{}
	contextKeyLogger  struct{}
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID{}, traceID)
}

// TraceIDFromContext returns the request's trace id, or "".
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyTraceID{}).(string)
	return id
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKeyLogger{}, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKeyLogger{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// contextHandler adds the trace id carried by the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := TraceIDFromContext(ctx); id != "" {
		r.AddAttrs(slog.String(FieldTraceID, id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
