package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, ProxyDefaults{}, cfg.Proxy)
	assert.NotEqual(t, SecurityConfig{}, cfg.Security)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, EngineDefaults{}, cfg.Engines)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}

func TestDefaultProxyDefaults(t *testing.T) {
	cfg := DefaultProxyDefaults()
	assert.Equal(t, "local-http", cfg.Mode)
	assert.Equal(t, 8443, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, "direct", cfg.Egress)
}

func TestDefaultSecurityConfig(t *testing.T) {
	cfg := DefaultSecurityConfig()
	assert.InDelta(t, float64(5), cfg.PerKeyRPS, 0.001)
	assert.InDelta(t, float64(20), cfg.PerIPRPS, 0.001)
	assert.Equal(t, 10, cfg.Burst)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.IntrusionWindow)
	assert.Equal(t, 20, cfg.IntrusionThresh)
	assert.Equal(t, 5*time.Minute, cfg.AnomalyWindow)
	assert.Equal(t, 64, cfg.MaxInFlight)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "flm", cfg.User)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "flm.db", cfg.Name)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultEngineDefaults(t *testing.T) {
	cfg := DefaultEngineDefaults()
	assert.Empty(t, cfg.DefaultEngineID)
	assert.Equal(t, 15*time.Second, cfg.HealthCheckInterval)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "flm-proxy", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
}
