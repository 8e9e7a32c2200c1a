package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flm-run/flm-proxy/core"
)

const (
	caValidity   = 10 * 365 * 24 * time.Hour
	leafValidity = 365 * 24 * time.Hour
	caCertFile   = "flm-ca.crt"
	caKeyFile    = "flm-ca.key"
)

// packagedCAProvider signs a leaf certificate, on first boot, with a root
// CA: either the one supplied in Config (RootCACertPEM plus RootCAKeyPEM) or
// a dev-only key synthesized and persisted under AppDataDir.
type packagedCAProvider struct {
	cert *tls.Certificate
}

func newPackagedCAProvider(cfg Config) (*packagedCAProvider, error) {
	// CA load-or-synthesize plus leaf keygen/signing is CPU-bound; dispatch
	// the whole chain onto an errgroup task rather than running it inline
	// on the caller's goroutine.
	var provider *packagedCAProvider
	g := new(errgroup.Group)
	g.Go(func() error {
		caCert, caKey, err := loadOrCreateCA(cfg)
		if err != nil {
			return core.NewProxyCertGenerationError(err.Error()).WithCause(err)
		}

		leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return core.NewProxyCertGenerationError("failed to generate leaf key").WithCause(err)
		}
		serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
		if err != nil {
			return core.NewProxyCertGenerationError("failed to generate leaf serial").WithCause(err)
		}

		now := time.Now().UTC()
		leafTmpl := &x509.Certificate{
			SerialNumber:          serial,
			Subject:               pkix.Name{CommonName: "localhost"},
			NotBefore:             now,
			NotAfter:              now.Add(leafValidity),
			KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			BasicConstraintsValid: true,
			IsCA:                  false,
			DNSNames:              []string{"localhost"},
			IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		}
		if ip := net.ParseIP(cfg.BindAddr); ip != nil {
			leafTmpl.IPAddresses = append(leafTmpl.IPAddresses, ip)
		} else if cfg.BindAddr != "" {
			leafTmpl.DNSNames = append(leafTmpl.DNSNames, cfg.BindAddr)
		}

		der, err := x509.CreateCertificate(rand.Reader, leafTmpl, caCert, &leafKey.PublicKey, caKey)
		if err != nil {
			return core.NewProxyCertGenerationError("failed to sign leaf certificate").WithCause(err)
		}

		provider = &packagedCAProvider{cert: &tls.Certificate{
			Certificate: [][]byte{der, caCert.Raw},
			PrivateKey:  leafKey,
			Leaf:        leafTmpl,
		}}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return provider, nil
}

func (p *packagedCAProvider) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{*p.cert},
	}
}

func (p *packagedCAProvider) Mode() core.TLSMode { return core.TLSModePackagedCA }

// loadOrCreateCA returns the root CA certificate and key. A supplied root is
// used only when both cfg.RootCACertPEM and cfg.RootCAKeyPEM are set; a key
// without a certificate is ignored. Otherwise a CA persisted under
// AppDataDir is reused, or a dev-only one is synthesized, persisted and a
// warning is logged. The Proxy Controller never fills the RootCA fields and
// nothing reads FLM_ROOT_CA_KEY, so in practice the persisted or synthesized
// CA is always the one used.
func loadOrCreateCA(cfg Config) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if len(cfg.RootCAKeyPEM) > 0 && len(cfg.RootCACertPEM) > 0 {
		return parseCA(cfg.RootCACertPEM, cfg.RootCAKeyPEM)
	}

	if cfg.AppDataDir != "" {
		certPath := filepath.Join(cfg.AppDataDir, caCertFile)
		keyPath := filepath.Join(cfg.AppDataDir, caKeyFile)
		if certPEM, certErr := os.ReadFile(certPath); certErr == nil {
			if keyPEM, keyErr := os.ReadFile(keyPath); keyErr == nil {
				return parseCA(certPEM, keyPEM)
			}
		}
	}

	cfg.Logger.Warn("synthesizing a dev-only packaged-ca root; set FLM_ROOT_CA_KEY for a stable CA")
	certPEM, keyPEM, cert, key, err := generateCA()
	if err != nil {
		return nil, nil, err
	}
	if cfg.AppDataDir != "" {
		_ = os.MkdirAll(cfg.AppDataDir, 0o700)
		_ = os.WriteFile(filepath.Join(cfg.AppDataDir, caCertFile), certPEM, 0o644)
		_ = os.WriteFile(filepath.Join(cfg.AppDataDir, caKeyFile), keyPEM, 0o600)
	}
	return cert, key, nil
}

func generateCA() (certPEM, keyPEM []byte, cert *x509.Certificate, key *ecdsa.PrivateKey, err error) {
	key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("generate ca key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("generate ca serial: %w", err)
	}

	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "FLM Packaged CA"},
		NotBefore:             now,
		NotAfter:              now.Add(caValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("create ca certificate: %w", err)
	}
	cert, err = x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("parse ca certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal ca key: %w", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, cert, key, nil
}

func parseCA(certPEM, keyPEM []byte) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("no PEM block found in root CA certificate")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse root ca certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("no PEM block found in root CA key")
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse root ca key: %w", err)
	}
	return cert, key, nil
}
