package proxy

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoteIP_UsesTCPPeerByDefault(t *testing.T) {
	var captured string
	h := RemoteIP(newTrustedProxySet(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RemoteIPFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.9:54321"
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "198.51.100.9", captured)
}

func TestRemoteIP_HonorsForwardedForFromTrustedProxy(t *testing.T) {
	var captured string
	trusted := newTrustedProxySet([]string{"198.51.100.0/24"})
	h := RemoteIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RemoteIPFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.9:54321"
	r.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "10.0.0.1", captured)
}

func TestTrustedProxySet_BareIPTreatedAsHostMask(t *testing.T) {
	s := newTrustedProxySet([]string{"203.0.113.5"})
	assert.True(t, s.contains(mustParseIP("203.0.113.5")))
	assert.False(t, s.contains(mustParseIP("203.0.113.6")))
}

func mustParseIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("bad ip in test: " + s)
	}
	return ip
}
