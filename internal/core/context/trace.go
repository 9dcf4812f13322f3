package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext carries request correlation ids.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// WithTrace adds TraceContext to context.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns TraceContext from context.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetRequestID returns request ID from context or empty string.
func GetRequestID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.RequestID
	}
	return ""
}

// EnsureTrace returns ctx unchanged if it already carries a trace,
// otherwise attaches a freshly generated one. Used by the worker and CLI
// where there is no inbound request to take ids from.
func EnsureTrace(ctx context.Context) context.Context {
	if GetTrace(ctx) != nil {
		return ctx
	}
	return WithTrace(ctx, &TraceContext{
		TraceID:   uuid.NewString(),
		RequestID: uuid.NewString(),
	})
}
