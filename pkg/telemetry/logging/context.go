package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	flowIDKey contextKey = iota
	requestIDKey
)

// WithFlowID attaches a flow id to the context.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return context.WithValue(ctx, flowIDKey, flowID)
}

// FlowID returns the flow id from the context, or "".
func FlowID(ctx context.Context) string {
	id, _ := ctx.Value(flowIDKey).(string)
	return id
}

// WithRequestID attaches an HTTP request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the HTTP request id from the context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// FromContext returns a logger annotated with the ids carried by the
// context. Missing ids are simply omitted.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := FlowID(ctx); id != "" {
		logger = logger.With("flow_id", id)
	}
	if id := RequestID(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	return logger
}
