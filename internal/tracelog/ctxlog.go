// Package tracelog carries a run-scoped slog.Logger through context.Context and
// persists per-run trace events as JSON lines.
package tracelog

import (
	"context"
	"log/slog"
)

type (
	loggerKey  struct{}
	traceIDKey struct{}
)

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger extracts the logger from ctx, falling back to slog.Default.
func Logger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// WithTrace binds trace_id (and any extra attributes) to the context logger
// and records the id for TraceID.
func WithTrace(ctx context.Context, traceID string, attrs ...any) context.Context {
	l := Logger(ctx).With(append([]any{"trace_id", traceID}, attrs...)...)
	return context.WithValue(WithLogger(ctx, l), traceIDKey{}, traceID)
}

// TraceID returns the id bound by WithTrace, or "".
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}
