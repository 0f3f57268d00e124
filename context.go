package auditlog

import (
	"context"
)

// metaKey is an unexported context key type.
type metaKey struct{}
type skipKey struct{}

// WithActor attaches the acting user to the context.
func WithActor(ctx context.Context, id int64, username string) context.Context {
	m := extractMeta(ctx)
	m.userID = id
	m.username = username
	return context.WithValue(ctx, metaKey{}, m)
}

// WithTraceID attaches a trace identifier.
func WithTraceID(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.traceID = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithReason attaches a human-readable reason for the operation.
func WithReason(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.reason = v
	return context.WithValue(ctx, metaKey{}, m)
}

// WithRequest attaches the HTTP request context that log entries copy.
func WithRequest(ctx context.Context, r *Request) context.Context {
	m := extractMeta(ctx)
	m.request = r
	return context.WithValue(ctx, metaKey{}, m)
}

// WithSkip marks the context so nothing is logged for subsequent operations.
func WithSkip(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipKey{}, true)
}

// ActorFromContext returns the actor set by WithActor.
func ActorFromContext(ctx context.Context) (id int64, username string) {
	m := extractMeta(ctx)
	return m.userID, m.username
}

// TraceIDFromContext returns the trace identifier set by WithTraceID or the middleware.
func TraceIDFromContext(ctx context.Context) string {
	return extractMeta(ctx).traceID
}

// RequestFromContext returns the request set by WithRequest or the middleware.
func RequestFromContext(ctx context.Context) *Request {
	return extractMeta(ctx).request
}

// extractMeta extracts metadata from context.
func extractMeta(ctx context.Context) meta {
	if v := ctx.Value(metaKey{}); v != nil {
		if m, ok := v.(meta); ok {
			return m
		}
	}
	return meta{}
}

// extractSkip extracts skip flag from context.
func extractSkip(ctx context.Context) bool {
	if v, ok := ctx.Value(skipKey{}).(bool); ok {
		return v
	}
	return false
}
