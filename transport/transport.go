// Package transport builds outbound HTTP clients with configurable egress
// (direct, SOCKS5, Tor) and the three fixed timeout profiles. The Engine
// Adapters do not use it: they build their own client with
// tlsutil.SecureHTTPClient, and nothing outside this package builds a Manager.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/internal/tlsutil"
)

// Profile names a fixed timeout pairing. Values are exact, not tunable,
// since each engine kind has its own proven defaults.
type Profile string

const (
	// ProfileDefault is used for ordinary chat/embeddings calls.
	ProfileDefault Profile = "default"
	// ProfileShort is used for health checks.
	ProfileShort Profile = "short"
	// ProfileLong is used for model-download-class operations.
	ProfileLong Profile = "long"
)

type timeoutPair struct {
	request time.Duration
	connect time.Duration
}

var profileTimeouts = map[Profile]timeoutPair{
	ProfileDefault: {request: 30 * time.Second, connect: 10 * time.Second},
	ProfileShort:   {request: 5 * time.Second, connect: 2 * time.Second},
	ProfileLong:    {request: 300 * time.Second, connect: 30 * time.Second},
}

const torDefaultEndpoint = "127.0.0.1:9050"

// Dialer builds the dial function an egress mode contributes to the shared
// transport. Plugged in so direct/socks5/tor only differ by DialContext.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Manager owns the per-profile http.Client pool for one egress configuration.
type Manager struct {
	cfg     core.EgressConfig
	clients map[Profile]*http.Client
}

// NewManager builds a Manager for cfg, validating the SOCKS endpoint is
// reachable at startup unless FailOpen permits falling back to direct (spec
// §4.4: "otherwise the proxy refuses to start").
func NewManager(cfg core.EgressConfig) (*Manager, error) {
	dialer, usedDirect, err := resolveDialer(cfg)
	if err != nil {
		return nil, err
	}
	if usedDirect {
		cfg = core.EgressConfig{Mode: core.EgressDirect}
	}

	m := &Manager{cfg: cfg, clients: make(map[Profile]*http.Client)}
	for profile, tp := range profileTimeouts {
		m.clients[profile] = buildClient(dialer, tp)
	}
	return m, nil
}

// resolveDialer constructs the net dialer for cfg's egress mode, probing a
// SOCKS5/Tor endpoint's reachability up front. usedDirect reports whether
// fail_open caused a silent fallback to direct egress.
func resolveDialer(cfg core.EgressConfig) (proxy.Dialer, bool, error) {
	baseDialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	switch cfg.Mode {
	case "", core.EgressDirect:
		return baseDialer, false, nil

	case core.EgressSocks5, core.EgressTor:
		endpoint := cfg.Socks5Endpoint
		if cfg.Mode == core.EgressTor && endpoint == "" {
			endpoint = torDefaultEndpoint
		}
		if endpoint == "" {
			return nil, false, core.NewProxyInvalidConfig("socks5 egress requires an endpoint")
		}

		socksDialer, err := proxy.SOCKS5("tcp", endpoint, nil, baseDialer)
		if err != nil {
			return nil, false, core.NewProxyInvalidConfig(fmt.Sprintf("failed to build socks5 dialer: %v", err))
		}

		if !socksReachable(endpoint) {
			if cfg.FailOpen {
				return baseDialer, true, nil
			}
			return nil, false, core.NewProxyInvalidConfig(fmt.Sprintf("socks5 endpoint %s unreachable and fail_open is false", endpoint))
		}
		return socksDialer, false, nil

	default:
		return nil, false, core.NewProxyInvalidConfig(fmt.Sprintf("unknown egress mode %q", cfg.Mode))
	}
}

func socksReachable(endpoint string) bool {
	conn, err := net.DialTimeout("tcp", endpoint, 3*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func buildClient(dialer proxy.Dialer, tp timeoutPair) *http.Client {
	transport := tlsutil.SecureTransport()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
			return ctxDialer.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}
	transport.TLSHandshakeTimeout = tp.connect

	return &http.Client{
		Timeout:   tp.request,
		Transport: transport,
	}
}

// Client returns the http.Client configured for profile, falling back to
// ProfileDefault for an unrecognized value.
func (m *Manager) Client(profile Profile) *http.Client {
	if c, ok := m.clients[profile]; ok {
		return c
	}
	return m.clients[ProfileDefault]
}

// Mode reports the egress mode this Manager actually ended up using, which
// may be core.EgressDirect even when configured for socks5/tor if fail_open
// silently downgraded it at construction.
func (m *Manager) Mode() core.EgressMode {
	return m.cfg.Mode
}
