package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"

	"github.com/flm-run/flm-proxy/core"
)

// acmeRenewBefore is how far ahead of expiry autocert renews an http-01
// certificate. The dns-01 path issues its certificate once, when the
// provider is built, and does not renew it.
const acmeRenewBefore = 30 * 24 * time.Hour

// acmeBackoff is the fixed retry schedule for a failing renewal, capped at
// 6 attempts before surfacing an AcmeError.
var acmeBackoff = []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour}

const acmeMaxAttempts = 6

// acmeProvider serves certificates issued via RFC 8555. http-01 delegates
// to autocert's battle-tested challenge/cache machinery; dns-01 (required
// for wildcard domains) drives a raw acme.Client through the configured
// DNSChallengeHook, since autocert has no dns-01 support.
type acmeProvider struct {
	mode      core.TLSMode
	challenge core.AcmeChallenge
	domain    string

	// http-01 path
	autocert *autocert.Manager

	// dns-01 path
	dnsCert *tls.Certificate
}

func newAcmeProvider(cfg Config) (*acmeProvider, error) {
	if cfg.Domain == "" {
		return nil, core.NewProxyInvalidConfig("https-acme mode requires a domain")
	}
	challenge := cfg.Challenge
	if challenge == "" {
		challenge = core.ChallengeHTTP01
	}
	if strings.HasPrefix(cfg.Domain, "*.") && challenge != core.ChallengeDNS01 {
		return nil, core.NewProxyInvalidConfig("wildcard domain requires dns-01")
	}

	if challenge == core.ChallengeDNS01 {
		if cfg.DNSHook == nil {
			return nil, core.NewProxyInvalidConfig("dns-01 challenge requires a DNS credential profile")
		}
		cert, err := issueDNS01WithRetry(cfg)
		if err != nil {
			return nil, err
		}
		return &acmeProvider{mode: core.TLSModeHTTPSAcme, challenge: challenge, domain: cfg.Domain, dnsCert: cert}, nil
	}

	cacheDir := cfg.AppDataDir
	if cacheDir == "" {
		cacheDir = "."
	}
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(filepath.Join(cacheDir, "acme-certs")),
		HostPolicy: autocert.HostWhitelist(cfg.Domain),
		Email:      cfg.Email,
		RenewBefore: acmeRenewBefore,
	}
	if cfg.DirectoryURL != "" {
		m.Client = &acme.Client{DirectoryURL: cfg.DirectoryURL}
	}
	return &acmeProvider{mode: core.TLSModeHTTPSAcme, challenge: challenge, domain: cfg.Domain, autocert: m}, nil
}

func (p *acmeProvider) TLSConfig() *tls.Config {
	if p.autocert != nil {
		cfg := p.autocert.TLSConfig()
		cfg.MinVersion = tls.VersionTLS12
		return cfg
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return p.dnsCert, nil
		},
	}
}

func (p *acmeProvider) Mode() core.TLSMode { return p.mode }

// HTTPHandler returns autocert's http-01 challenge responder, wrapping
// fallback for any request that isn't a challenge probe. Satisfies
// certs.HTTPChallengeProvider; the Proxy Controller mounts this on a
// plain-HTTP listener when running in http-01 mode. In dns-01 mode
// autocert is nil and this just returns fallback unchanged.
func (p *acmeProvider) HTTPHandler(fallback http.Handler) http.Handler {
	if p.autocert == nil {
		return fallback
	}
	return p.autocert.HTTPHandler(fallback)
}

// issueDNS01WithRetry drives the ACME protocol directly (order, dns-01
// authorization, CSR, finalize) since autocert offers no dns-01 path,
// retrying on acmeBackoff up to acmeMaxAttempts before surfacing an
// AcmeError.
func issueDNS01WithRetry(cfg Config) (*tls.Certificate, error) {
	var lastErr error
	for attempt := 0; attempt < acmeMaxAttempts; attempt++ {
		cert, err := issueDNS01Once(cfg)
		if err == nil {
			return cert, nil
		}
		lastErr = err
		if attempt+1 < acmeMaxAttempts {
			time.Sleep(acmeBackoffFor(attempt))
		}
	}
	return nil, core.NewProxyAcmeError(fmt.Sprintf("dns-01 issuance failed after %d attempts: %v", acmeMaxAttempts, lastErr)).WithCause(lastErr)
}

// acmeBackoffFor returns the wait before retry attempt n (0-indexed),
// holding at the last entry once the fixed schedule is exhausted.
func acmeBackoffFor(attempt int) time.Duration {
	if attempt >= len(acmeBackoff) {
		return acmeBackoff[len(acmeBackoff)-1]
	}
	return acmeBackoff[attempt]
}

func issueDNS01Once(cfg Config) (*tls.Certificate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	client := &acme.Client{Key: accountKey}
	if cfg.DirectoryURL != "" {
		client.DirectoryURL = cfg.DirectoryURL
	}

	acceptTOS := func(tosURL string) bool { return true }
	if _, err := client.Register(ctx, &acme.Account{Contact: []string{"mailto:" + cfg.Email}}, acceptTOS); err != nil {
		return nil, fmt.Errorf("register account: %w", err)
	}

	authz, err := client.Authorize(ctx, cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("authorize domain: %w", err)
	}

	var chal *acme.Challenge
	for _, c := range authz.Challenges {
		if c.Type == "dns-01" {
			chal = c
			break
		}
	}
	if chal == nil {
		return nil, fmt.Errorf("ca offered no dns-01 challenge for %s", cfg.Domain)
	}

	txtValue, err := client.DNS01ChallengeRecord(chal.Token)
	if err != nil {
		return nil, fmt.Errorf("compute dns-01 record: %w", err)
	}
	record := DNSChallengeRecord{
		Domain: cfg.Domain,
		FQDN:   "_acme-challenge." + strings.TrimPrefix(cfg.Domain, "*."),
		Value:  txtValue,
	}

	if err := cfg.DNSHook.Present(ctx, record); err != nil {
		return nil, fmt.Errorf("present dns-01 record: %w", err)
	}
	defer func() { _ = cfg.DNSHook.Cleanup(ctx, record) }()

	if _, err := client.Accept(ctx, chal); err != nil {
		return nil, fmt.Errorf("accept dns-01 challenge: %w", err)
	}
	if _, err := client.WaitAuthorization(ctx, authz.URI); err != nil {
		return nil, fmt.Errorf("wait for authorization: %w", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key: %w", err)
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		DNSNames: []string{cfg.Domain},
	}, leafKey)
	if err != nil {
		return nil, fmt.Errorf("create csr: %w", err)
	}

	der, _, err := client.CreateCert(ctx, csr, 0, true)
	if err != nil {
		return nil, fmt.Errorf("finalize certificate: %w", err)
	}

	return &tls.Certificate{Certificate: der, PrivateKey: leafKey}, nil
}
