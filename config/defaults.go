// Defaults for the proxy runtime's configuration sections.
package config

import "time"

// DefaultConfig returns a fully populated Config with the runtime's baked-in
// defaults, ready to be overlaid by a YAML file and environment variables.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Proxy:     DefaultProxyDefaults(),
		Security:  DefaultSecurityConfig(),
		Database:  DefaultDatabaseConfig(),
		Engines:   DefaultEngineDefaults(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the control-plane HTTP surface defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultProxyDefaults returns the defaults a new proxy profile starts from
// when the CLI doesn't supply a field explicitly.
func DefaultProxyDefaults() ProxyDefaults {
	return ProxyDefaults{
		Mode:     "local-http",
		Port:     8443,
		BindAddr: "127.0.0.1",
		Egress:   "direct",
	}
}

// DefaultSecurityConfig returns the security policy seeded on first boot.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		PerKeyRPS:       5,
		PerIPRPS:        20,
		Burst:           10,
		MaxBodyBytes:    10 << 20, // 10 MiB
		IntrusionWindow: time.Minute,
		IntrusionThresh: 20,
		AnomalyWindow:   5 * time.Minute,
		MaxInFlight:     64,
	}
}

// DefaultDatabaseConfig returns the defaults for the sqlite-backed local
// stores; production deployments targeting postgres/mysql override Driver,
// Host, etc. via YAML or env.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "flm",
		Password:        "",
		Name:            "flm.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultEngineDefaults returns the engine resolution and health-check
// defaults.
func DefaultEngineDefaults() EngineDefaults {
	return EngineDefaults{
		DefaultEngineID:     "",
		HealthCheckInterval: 15 * time.Second,
	}
}

// DefaultLogConfig returns the zap construction defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the OpenTelemetry bootstrap defaults.
// Disabled by default: a local-first gateway has no operator to receive
// traces unless one is explicitly configured.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "flm-proxy",
		SampleRate:   0.1,
	}
}

// LoadFromEnv loads configuration from defaults and environment variables
// only, skipping any YAML file.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
