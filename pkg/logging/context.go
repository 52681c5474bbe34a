package logging

import (
	"context"
	"log/slog"
)

type loggerKeyType struct{}

var loggerKey = loggerKeyType{}

// WithContext stores log in ctx for everything further down the call chain.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, then fallback, then slog.Default.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// With enriches the context logger (or fallback) with attrs and stores it back.
func With(ctx context.Context, fallback *slog.Logger, attrs ...any) (context.Context, *slog.Logger) {
	l := FromContext(ctx, fallback).With(attrs...)
	return WithContext(ctx, l), l
}
