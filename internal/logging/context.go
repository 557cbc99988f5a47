package logging

import (
	"context"
	"log/slog"
)

// scope is the request-scoped logging state. It is copied on every change so
// contexts handed to other goroutines never observe later mutations.
type scope struct {
	logger    *slog.Logger
	requestID string
	traceID   string
	spanID    string
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) scope {
	if ctx == nil {
		return scope{}
	}
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

func derive(ctx context.Context, update func(*scope)) context.Context {
	if ctx == nil {
		return nil
	}
	s := scopeFrom(ctx)
	update(&s)
	return context.WithValue(ctx, scopeKey{}, s)
}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return derive(ctx, func(s *scope) { s.logger = logger })
}

// FromContext returns the request-scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger := scopeFrom(ctx).logger; logger != nil {
		return logger
	}
	return slog.Default()
}

// With enriches the request-scoped logger with args.
func With(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// WithRequestID stores a request identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return derive(ctx, func(s *scope) { s.requestID = requestID })
}

// RequestIDFromContext retrieves a previously stored request identifier.
func RequestIDFromContext(ctx context.Context) string { return scopeFrom(ctx).requestID }

// TraceIDFromContext retrieves the trace identifier set by StartSpan.
func TraceIDFromContext(ctx context.Context) string { return scopeFrom(ctx).traceID }

// SpanIDFromContext retrieves the innermost span identifier.
func SpanIDFromContext(ctx context.Context) string { return scopeFrom(ctx).spanID }
