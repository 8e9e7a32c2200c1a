package certs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flm-run/flm-proxy/core"
)

func TestNewDevSelfSignedProvider(t *testing.T) {
	p, err := NewProvider(core.TLSModeDevSelfSigned, Config{BindAddr: "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, core.TLSModeDevSelfSigned, p.Mode())

	cfg := p.TLSConfig()
	require.NotNil(t, cfg)
	require.Len(t, cfg.Certificates, 1)

	leaf := cfg.Certificates[0].Leaf
	require.NotNil(t, leaf)
	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.WithinDuration(t, leaf.NotBefore.Add(365*24*time.Hour), leaf.NotAfter, time.Minute)
}

func TestLocalHTTPProvider(t *testing.T) {
	p, err := NewProvider(core.TLSModeLocalHTTP, Config{})
	require.NoError(t, err)
	assert.Nil(t, p.TLSConfig())
	assert.Equal(t, core.TLSModeLocalHTTP, p.Mode())
}

func TestNewProvider_UnknownMode(t *testing.T) {
	_, err := NewProvider(core.TLSMode("bogus"), Config{})
	require.Error(t, err)
}
