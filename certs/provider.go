// Package certs implements the Certificate Service: the four TLS modes a
// Proxy Profile can select (local-http, dev-selfsigned, packaged-ca,
// https-acme) behind one Provider interface whose tls.Config the Proxy
// Controller's listener serves with.
package certs

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
)

// Provider supplies the certificate a TLS listener presents.
type Provider interface {
	// TLSConfig returns the tls.Config to serve: a fixed Certificates entry
	// for dev-selfsigned and packaged-ca, a GetCertificate callback for
	// https-acme. nil for local-http, which never terminates TLS itself.
	TLSConfig() *tls.Config

	// Mode reports which of the four certificate modes this provider serves.
	Mode() core.TLSMode
}

// HTTPChallengeProvider is implemented by providers that need a plain-HTTP
// listener to answer ACME http-01 challenge probes. Only *acmeProvider
// implements it, and in dns-01 mode its handler just returns fallback;
// callers should type-assert for it rather than assume every Provider does.
type HTTPChallengeProvider interface {
	// HTTPHandler returns the challenge responder, falling back to fallback
	// for any request that isn't a probe.
	HTTPHandler(fallback http.Handler) http.Handler
}

// Config carries everything any of the four modes might need; a given mode
// only reads the fields relevant to it.
type Config struct {
	BindAddr   string
	AppDataDir string

	// https-acme
	Email        string
	Domain       string
	Challenge    core.AcmeChallenge
	DNSHook      DNSChallengeHook
	DirectoryURL string // overrides the production Let's Encrypt directory, for tests

	// packaged-ca
	RootCAKeyPEM  []byte // used only together with RootCACertPEM; otherwise a persisted or dev-only CA is used
	RootCACertPEM []byte

	Logger *zap.Logger
}

// NewProvider builds the Provider for mode, validating the fields that mode
// requires are present.
func NewProvider(mode core.TLSMode, cfg Config) (Provider, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	switch mode {
	case core.TLSModeLocalHTTP:
		return &localHTTPProvider{}, nil
	case core.TLSModeDevSelfSigned:
		return newDevSelfSignedProvider(cfg)
	case core.TLSModePackagedCA:
		return newPackagedCAProvider(cfg)
	case core.TLSModeHTTPSAcme:
		return newAcmeProvider(cfg)
	default:
		return nil, core.NewProxyInvalidConfig(fmt.Sprintf("unknown tls mode %q", mode))
	}
}

// localHTTPProvider never terminates TLS; the Proxy Controller binds a plain
// net.Listener in this mode instead of calling TLSConfig.
type localHTTPProvider struct{}

func (localHTTPProvider) TLSConfig() *tls.Config { return nil }
func (localHTTPProvider) Mode() core.TLSMode      { return core.TLSModeLocalHTTP }
