package proxy

import "context"

type requestIDKey struct{}
type keyIDKey struct{}
type remoteIPKey struct{}

// RequestIDFromContext extracts the request id set by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// KeyIDFromContext extracts the authenticated API key id attached by APIKeyAuth.
// Returns "" for unauthenticated requests (health/metrics endpoints).
func KeyIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyIDKey{}).(string)
	return v
}

func withKeyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyIDKey{}, id)
}

// RemoteIPFromContext extracts the resolved caller address set by RemoteIP,
// which is the TCP peer unless that peer is a trusted proxy, in which case
// it is the last hop of X-Forwarded-For.
func RemoteIPFromContext(ctx context.Context) string {
	v, _ := ctx.Value(remoteIPKey{}).(string)
	return v
}

func withRemoteIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteIPKey{}, ip)
}
