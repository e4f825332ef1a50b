// Package requestcontext provides context accessors for request-scoped
// values that are set at trigger boundaries but consumed deep inside the
// engine. Keeping it free of net/http lets services import only what they
// need.
//
// Usage in services (read values):
//
//	now := requestcontext.Now(ctx)
//	source := requestcontext.TriggerSource(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	timeKey          struct{}
	triggerSourceKey struct{}
	requestIDKey     struct{}
)

// WithTime pins the evaluation clock. All date arithmetic inside the engine
// reads the clock through Now so tests can evaluate against a fixed instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now returns the pinned clock value, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTriggerSource tags the context with what initiated the current run
// ("schedule", "manual", an operator name).
func WithTriggerSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, triggerSourceKey{}, source)
}

// TriggerSource returns the trigger tag, or "" when unset.
func TriggerSource(ctx context.Context) string {
	s, _ := ctx.Value(triggerSourceKey{}).(string)
	return s
}

// WithRequestID attaches a correlation id for log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the correlation id, or "" when unset.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}
