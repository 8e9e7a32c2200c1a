package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flm-run/flm-proxy/core"
)

const devSelfSignedValidity = 365 * 24 * time.Hour

// devSelfSignedProvider mints one ephemeral self-signed certificate at
// startup: CN=localhost, SAN covers the bind address, 365-day validity
// It is never persisted; restarting the proxy mints a new one.
type devSelfSignedProvider struct {
	cert *tls.Certificate
}

func newDevSelfSignedProvider(cfg Config) (*devSelfSignedProvider, error) {
	// Key generation and self-signing are CPU-bound; dispatch onto an
	// errgroup task rather than running inline on the caller's goroutine
	// (Controller.Start, invoked synchronously from the CLI/control plane).
	var cert *tls.Certificate
	g := new(errgroup.Group)
	g.Go(func() error {
		c, err := generateSelfSignedCert("localhost", cfg.BindAddr, devSelfSignedValidity)
		if err != nil {
			return err
		}
		cert = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, core.NewProxyCertGenerationError(err.Error()).WithCause(err)
	}
	return &devSelfSignedProvider{cert: cert}, nil
}

func (p *devSelfSignedProvider) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*p.cert},
	}
}

func (p *devSelfSignedProvider) Mode() core.TLSMode { return core.TLSModeDevSelfSigned }

// generateSelfSignedCert builds a self-signed leaf certificate for cn with
// SANs "localhost", 127.0.0.1 and ::1, plus bindAddr as an IP SAN when it
// parses as an IP or as a DNS SAN otherwise.
func generateSelfSignedCert(cn, bindAddr string, validity time.Duration) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	if ip := net.ParseIP(bindAddr); ip != nil {
		tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
	} else if bindAddr != "" {
		tmpl.DNSNames = append(tmpl.DNSNames, bindAddr)
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        tmpl,
	}, nil
}
