package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext correlates the log lines of one request or one job run.
type TraceContext struct {
	RequestID string
	TraceID   string
}

type traceKey struct{}

func WithTrace(ctx context.Context, t *TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// GetTrace returns the TraceContext in ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	t, _ := ctx.Value(traceKey{}).(*TraceContext)
	return t
}

// NewTraceContext starts a fresh trace, e.g. one sweep of one company.
// Both ids are UUIDv7, so they sort by start time.
func NewTraceContext() *TraceContext {
	return &TraceContext{RequestID: newTraceID(), TraceID: newTraceID()}
}

func newTraceID() string {
	if u, err := uuid.NewV7(); err == nil {
		return u.String()
	}
	return uuid.NewString()
}
