package proxy

import (
	"context"
	"net"
	"net/http"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/security"
)

// IPFilter enforces allow/deny rules: deny when a
// non-empty whitelist exists and the remote isn't in it, and always deny a
// remote present in the (non-expired) blocklist. Must run after RemoteIP so
// it sees the trusted-proxy-resolved address.
func IPFilter(svc *security.Service, policy func(context.Context) (security.Policy, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			remote := RemoteIPFromContext(ctx)
			peer := net.ParseIP(remote)

			p, err := policy(ctx)
			if err != nil {
				WriteError(w, err, nil)
				return
			}

			if len(p.IPWhitelist) > 0 {
				allowed := newTrustedProxySet(p.IPWhitelist)
				if peer == nil || !allowed.contains(peer) {
					WriteError(w, core.NewBlocked("remote address is not on the allow list"), nil)
					return
				}
			}

			entries, err := svc.ListBlockedIPs(ctx)
			if err == nil && peer != nil {
				blocked := newTrustedProxySet(addrsOf(entries))
				if blocked.contains(peer) {
					WriteError(w, core.NewBlocked("remote address is blocked"), nil)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addrsOf(entries []security.IPBlocklistEntry) []string {
	addrs := make([]string, len(entries))
	for i, e := range entries {
		addrs[i] = e.Addr
	}
	return addrs
}
