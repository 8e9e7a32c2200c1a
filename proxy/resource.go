package proxy

import (
	"net/http"
	"sync/atomic"

	"github.com/flm-run/flm-proxy/core"
)

// DefaultMaxInFlight is the in-flight request ceiling used when a proxy
// profile doesn't override it.
const DefaultMaxInFlight = 256

// ResourceProtection enforces a hard ceiling on concurrent in-flight
// requests, returning 503 past it rather than letting the listener queue
// unbounded work. Step 7 of the middleware chain.
func ResourceProtection(maxInFlight int) Middleware {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	var inFlight atomic.Int64
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if inFlight.Add(1) > int64(maxInFlight) {
				inFlight.Add(-1)
				WriteError(w, core.NewTooManyInFlight("too many in-flight requests"), nil)
				return
			}
			defer inFlight.Add(-1)
			next.ServeHTTP(w, r)
		})
	}
}
