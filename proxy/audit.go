package proxy

import (
	"net/http"
	"time"

	"github.com/flm-run/flm-proxy/security"
)

// outcomeFor maps a final HTTP status to the AuditOutcome enum per the
// testable property outcome=ok ⇔ 200≤status<300.
func outcomeFor(status int) security.AuditOutcome {
	switch {
	case status >= 200 && status < 300:
		return security.OutcomeOK
	case status == http.StatusUnauthorized:
		return security.OutcomeAuthFail
	case status == http.StatusTooManyRequests:
		return security.OutcomeRateLimited
	case status == http.StatusForbidden:
		return security.OutcomeBlocked
	default:
		return security.OutcomeUpstreamErr
	}
}

// AuditLog appends exactly one audit row per request, wrapping the entire
// security pipeline so every short-circuit (body limit, IP deny, auth
// failure, rate limit, 5xx) is captured on the way out.
func AuditLog(svc *security.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			var actorKeyID *string
			if id := KeyIDFromContext(r.Context()); id != "" {
				actorKeyID = &id
			}
			svc.RecordAudit(r.Context(),
				RemoteIPFromContext(r.Context()),
				actorKeyID,
				r.URL.Path,
				rw.statusCode,
				int(time.Since(start).Milliseconds()),
				outcomeFor(rw.statusCode),
			)
		})
	}
}
