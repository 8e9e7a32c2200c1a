// Package configstore is the L1 Config Repository: engine definitions,
// proxy profiles, active-handle state, model profiles, and API-prompt
// templates, all persisted in config.db.
package configstore

import (
	"time"

	"github.com/flm-run/flm-proxy/core"
)

// ProxyProfile is a reusable blueprint for starting a listener, persisted
// so the control plane can re-launch a named configuration without the
// caller re-specifying every field.
type ProxyProfile struct {
	ID              string          `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name"`
	Mode            core.TLSMode    `json:"mode"`
	BindAddr        string          `json:"bind_addr"`
	Port            int             `json:"port"`
	EgressMode      core.EgressMode `json:"egress_mode"`
	DefaultEngineID *string         `json:"default_engine_id,omitempty"`
	AcmeDomain      *string         `json:"acme_domain,omitempty"`
	AcmeChallenge   *string         `json:"acme_challenge,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (ProxyProfile) TableName() string { return "proxy_profiles" }

// ToProxyConfig builds the ProxyConfig the controller validates and binds
// from a persisted profile, combined with the security/config db paths the
// caller resolves at the control-plane layer.
func (p ProxyProfile) ToProxyConfig(configDBPath, securityDBPath string) core.ProxyConfig {
	cfg := core.ProxyConfig{
		Mode:           p.Mode,
		Port:           p.Port,
		BindAddr:       p.BindAddr,
		Egress:         core.EgressConfig{Mode: p.EgressMode},
		ConfigDBPath:   configDBPath,
		SecurityDBPath: securityDBPath,
	}
	if p.AcmeDomain != nil {
		cfg.Acme.Domain = *p.AcmeDomain
	}
	if p.AcmeChallenge != nil {
		cfg.Acme.Challenge = core.AcmeChallenge(*p.AcmeChallenge)
	}
	return cfg
}

// ModelProfile records a known model URI's display metadata, keyed by its
// canonical flm:// URI string.
type ModelProfile struct {
	ModelURI      string    `json:"model_uri" gorm:"primaryKey"`
	EngineID      string    `json:"engine_id"`
	DisplayName   string    `json:"display_name"`
	ContextWindow int       `json:"context_window"`
	CreatedAt     time.Time `json:"created_at"`
}

func (ModelProfile) TableName() string { return "model_profiles" }

// APIPrompt is a named, reusable prompt template surfaced to clients that
// want server-stored system prompts instead of repeating them per request.
type APIPrompt struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (APIPrompt) TableName() string { return "api_prompts" }

// ConfigEntry is a single key-value pair in the generic settings store, for
// small scalar settings that don't warrant their own table.
type ConfigEntry struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ConfigEntry) TableName() string { return "config_kv" }
