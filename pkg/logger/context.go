package logger

import (
	"context"
)

type contextKey struct{}

var loggerContextKey = contextKey{}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from the context.
// If no logger is found, returns the global logger.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Get()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return Get()
}

// ComponentFromContext returns the context logger tagged with component
func ComponentFromContext(ctx context.Context, component string) *Logger {
	return FromContext(ctx).WithComponent(component)
}
