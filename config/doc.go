/*
Package config loads the proxy runtime's static configuration: the
control-plane listener, the seed security policy, the two sqlite/postgres
database connections, engine defaults, logging, and telemetry.

Configuration merges in priority order: built-in defaults, then an optional
YAML file, then environment variables (FLM_ prefix). Per-handle overrides
(TLS mode, egress, bind address) live in configstore, not here — this
package only supplies the defaults a new handle starts from.

# Core types

  - Config: top-level aggregate — Server, Proxy, Security, Database,
    Engines, Log, Telemetry.
  - Loader: builder for file path, env prefix, and extra validators.

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("flm.yaml").
		WithEnvPrefix("FLM").
		Load()
*/
package config
