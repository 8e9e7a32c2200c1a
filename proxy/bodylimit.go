package proxy

import (
	"context"
	"net/http"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/security"
)

// BodyLimit rejects requests whose declared Content-Length exceeds the
// policy's body_limits.max_bytes, and wraps the body reader so an
// undeclared (chunked) body is cut off at the same ceiling. Step 1 of the
// middleware chain.
func BodyLimit(policy func(context.Context) (security.Policy, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := policy(r.Context())
			if err != nil {
				WriteError(w, err, nil)
				return
			}
			max := p.BodyLimits.MaxBytes
			if max <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > max {
				WriteError(w, core.NewBodyTooLarge("request body exceeds configured limit"), nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
