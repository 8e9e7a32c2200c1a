// Package ctxkeys defines typed keys for values threaded through
// request-scoped context.Context instances across the proxy runtime.
package ctxkeys

import "context"

// contextKey is the unexported type used for all context values in this
// package, so keys from other packages can never collide.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	keyIDKey     contextKey = "key_id"
	remoteIPKey  contextKey = "remote_ip"
	handleIDKey  contextKey = "handle_id"
)

// WithRequestID attaches the per-request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation id attached by WithRequestID.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithKeyID attaches the authenticated API key id once auth succeeds.
func WithKeyID(ctx context.Context, keyID string) context.Context {
	return context.WithValue(ctx, keyIDKey, keyID)
}

// KeyID returns the authenticated API key id, if any.
func KeyID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRemoteIP attaches the resolved client address (post trusted-proxy resolution).
func WithRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey, ip)
}

// RemoteIP returns the resolved client address.
func RemoteIP(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(remoteIPKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithHandleID attaches the owning proxy handle id to background tasks
// spawned by a listener (health loops, renewal timers).
func WithHandleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, handleIDKey, id)
}

// HandleID returns the owning proxy handle id.
func HandleID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(handleIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
