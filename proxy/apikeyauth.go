package proxy

import (
	"net/http"
	"strings"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/security"
)

// skipAuthPaths are exempt from API-key auth: operational endpoints a
// monitoring system must reach without a key.
var skipAuthPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Api-Key")
}

// APIKeyAuth verifies the caller's presented secret and attaches the
// resolved key id to the request context on success. Step 3 of the
// middleware chain.
func APIKeyAuth(svc *security.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, skip := skipAuthPaths[r.URL.Path]; skip {
				next.ServeHTTP(w, r)
				return
			}

			presented := extractAPIKey(r)
			if presented == "" {
				WriteError(w, core.NewInvalidAPIKey("missing API key"), nil)
				return
			}

			keyID, err := svc.VerifyAPIKey(r.Context(), presented)
			if err != nil {
				WriteError(w, core.NewInvalidAPIKey("invalid or revoked API key"), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(withKeyID(r.Context(), keyID)))
		})
	}
}
