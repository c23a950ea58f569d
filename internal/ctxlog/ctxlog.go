// Package ctxlog carries the run's slog.Logger through context.Context so
// that log lines written deep inside a stage or an external tool call keep
// the run, subject and stage attributes attached further up.
package ctxlog

import (
	"context"
	"log/slog"
)

type key struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// With returns a context whose logger carries the given attributes.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// ForStage scopes the context logger to one subject's pass through a stage.
func ForStage(ctx context.Context, subject, stage string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With("subject", subject, "stage", stage)
	return WithLogger(ctx, logger), logger
}

// FromContext returns the logger stored in ctx, or slog.Default when there
// is none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(key{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
