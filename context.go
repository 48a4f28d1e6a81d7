package invoiceflow

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerContextKey   contextKey = "logger"
	instanceContextKey contextKey = "instance_id"
)

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the logger stored on the context, or a discard
// logger when none was set.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return discardLogger()
}

// WithInstanceID returns a context tagged with the instance being driven.
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceContextKey, id)
}

// InstanceIDFromContext returns the instance id set by the driver.
func InstanceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(instanceContextKey).(string)
	return id, ok
}
