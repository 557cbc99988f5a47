package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one call to an external collaborator and logs its outcome.
type Span struct {
	logger *slog.Logger
	start  time.Time
	err    error
}

// StartSpan opens a child span of whatever span ctx carries. The trace id is
// inherited, or seeded from the request id, so every media call of a request
// can be correlated.
func StartSpan(ctx context.Context, name string, attrs ...slog.Attr) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	parent := scopeFrom(ctx)
	traceID := parent.traceID
	if traceID == "" {
		traceID = parent.requestID
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}
	spanID := uuid.NewString()

	args := make([]any, 0, len(attrs)+4)
	if parent.traceID == "" {
		args = append(args, slog.String("trace_id", traceID))
	}
	args = append(args, slog.String("span_id", spanID), slog.String("span_name", name))
	if parent.spanID != "" {
		args = append(args, slog.String("parent_span_id", parent.spanID))
	}
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger := FromContext(ctx).With(args...)

	ctx = derive(ctx, func(s *scope) {
		s.logger = logger
		s.traceID = traceID
		s.spanID = spanID
	})
	return ctx, &Span{logger: logger, start: time.Now()}
}

// Fail marks the span as failed; End reports the error.
func (s *Span) Fail(err error) {
	if s != nil {
		s.err = err
	}
}

// End logs the span duration, at warn level when it failed.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := slog.Duration("duration", time.Since(s.start))
	if s.err != nil {
		s.logger.Warn("span failed", elapsed, slog.String("error", s.err.Error()))
		return
	}
	s.logger.Debug("span completed", elapsed)
}
