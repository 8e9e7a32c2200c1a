package proxy

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// trustedProxySet parses the configured CIDR list once at pipeline
// construction and answers membership checks on the hot path.
type trustedProxySet struct {
	nets []*net.IPNet
}

func newTrustedProxySet(cidrs []string) *trustedProxySet {
	s := &trustedProxySet{}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			// A bare IP without a mask is treated as a /32 (or /128).
			if ip := net.ParseIP(c); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				_, n, _ = net.ParseCIDR(ip.String() + "/" + strconv.Itoa(bits))
			}
		}
		if n != nil {
			s.nets = append(s.nets, n)
		}
	}
	return s
}

func (s *trustedProxySet) contains(ip net.IP) bool {
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RemoteIP resolves the caller address: the TCP peer,
// unless that peer is in trustedProxies, in which case the last entry of
// X-Forwarded-For is honored instead.
func RemoteIP(trusted *trustedProxySet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				ip = host
			}
			if peer := net.ParseIP(ip); peer != nil && trusted.contains(peer) {
				if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
					parts := strings.Split(fwd, ",")
					last := strings.TrimSpace(parts[len(parts)-1])
					if last != "" {
						ip = last
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(withRemoteIP(r.Context(), ip)))
		})
	}
}
