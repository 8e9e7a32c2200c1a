package certs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flm-run/flm-proxy/core"
)

func TestNewAcmeProvider_RequiresDomain(t *testing.T) {
	_, err := NewProvider(core.TLSModeHTTPSAcme, Config{})
	require.Error(t, err)
}

func TestNewAcmeProvider_WildcardRequiresDNS01(t *testing.T) {
	_, err := NewProvider(core.TLSModeHTTPSAcme, Config{Domain: "*.example.com", Challenge: core.ChallengeHTTP01})
	require.Error(t, err)
}

func TestNewAcmeProvider_DNS01RequiresHook(t *testing.T) {
	_, err := NewProvider(core.TLSModeHTTPSAcme, Config{Domain: "*.example.com", Challenge: core.ChallengeDNS01})
	require.Error(t, err)
}

func TestNewAcmeProvider_HTTP01DefaultsAndBuildsAutocertManager(t *testing.T) {
	dir := t.TempDir()
	p, err := NewProvider(core.TLSModeHTTPSAcme, Config{Domain: "example.com", Email: "ops@example.com", AppDataDir: dir})
	require.NoError(t, err)
	assert.Equal(t, core.TLSModeHTTPSAcme, p.Mode())

	cfg := p.TLSConfig()
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.GetCertificate)
}

func TestAcmeBackoffFor_HoldsAtLastEntry(t *testing.T) {
	assert.Equal(t, acmeBackoff[0], acmeBackoffFor(0))
	assert.Equal(t, acmeBackoff[len(acmeBackoff)-1], acmeBackoffFor(100))
}
