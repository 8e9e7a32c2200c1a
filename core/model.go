package core

import (
	"fmt"
	"strings"
	"time"
)

// EngineKind is the closed set of backend runtimes FLM speaks to. Routing
// switches exhaustively on Kind; new backends are added here, not via open
// dynamic dispatch, favoring a tagged-enum-plus-one-trait design.
type EngineKind string

const (
	EngineOllama   EngineKind = "ollama"
	EngineVLLM     EngineKind = "vllm"
	EngineLMStudio EngineKind = "lm_studio"
	EngineLlamaCpp EngineKind = "llama_cpp"
)

// EngineStatus reflects the most recent health check outcome.
type EngineStatus string

const (
	EngineHealthy     EngineStatus = "healthy"
	EngineDegraded    EngineStatus = "degraded"
	EngineUnreachable EngineStatus = "unreachable"
)

// EngineCapabilities records which operations an engine/model combination
// supports; adapters populate this from backend introspection when available
// and otherwise assume conservative defaults (chat only).
type EngineCapabilities struct {
	Chat       bool `json:"chat"`
	ChatStream bool `json:"chat_stream"`
	Embeddings bool `json:"embeddings"`
	Moderation bool `json:"moderation"`
	Tools      bool `json:"tools"`
}

// Engine is the registered identity of one backend runtime.
type Engine struct {
	ID           string             `json:"id" gorm:"primaryKey"`
	Kind         EngineKind         `json:"kind"`
	Name         string             `json:"name"`
	BaseURL      string             `json:"base_url"`
	Version      string             `json:"version,omitempty"`
	Status       EngineStatus       `json:"status"`
	Capabilities EngineCapabilities `json:"capabilities" gorm:"embedded;embeddedPrefix:cap_"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TableName pins Engine to the configstore schema's table name regardless
// of gorm's pluralization rules.
func (Engine) TableName() string { return "engines" }

// ModelURI is the canonical `flm://{engine_id}/{model_name}` identifier
// clients pass in the `model` field of a chat/embeddings request.
type ModelURI struct {
	EngineID string
	Model    string
}

const modelURIScheme = "flm://"

// ParseModelURI parses a model field value. A value without the flm://
// scheme is returned with an empty EngineID so callers can apply the
// default-engine policy.
func ParseModelURI(raw string) (ModelURI, bool) {
	if !strings.HasPrefix(raw, modelURIScheme) {
		return ModelURI{Model: raw}, false
	}
	rest := strings.TrimPrefix(raw, modelURIScheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ModelURI{}, false
	}
	return ModelURI{EngineID: parts[0], Model: parts[1]}, true
}

func (u ModelURI) String() string {
	return fmt.Sprintf("%s%s/%s", modelURIScheme, u.EngineID, u.Model)
}

// ModelInfo describes one model exposed by an engine, as returned from
// GET /v1/models.
type ModelInfo struct {
	URI       ModelURI  `json:"-"`
	ID        string    `json:"id"`
	Object    string    `json:"object"`
	OwnedBy   string    `json:"owned_by"`
	CreatedAt time.Time `json:"-"`
}

// TLSMode is the closed set of certificate strategies the Certificate
// Service and Proxy Controller support.
type TLSMode string

const (
	TLSModeLocalHTTP     TLSMode = "local-http"
	TLSModeDevSelfSigned TLSMode = "dev-selfsigned"
	TLSModeHTTPSAcme     TLSMode = "https-acme"
	TLSModePackagedCA    TLSMode = "packaged-ca"
)

// EgressMode selects the outbound network path from proxy to backend.
type EgressMode string

const (
	EgressDirect EgressMode = "direct"
	EgressSocks5 EgressMode = "socks5"
	EgressTor    EgressMode = "tor"
)

// AcmeChallenge selects the ACME challenge type for https-acme mode.
type AcmeChallenge string

const (
	ChallengeHTTP01 AcmeChallenge = "http-01"
	ChallengeDNS01  AcmeChallenge = "dns-01"
)

// EgressConfig configures the outbound transport's network path.
type EgressConfig struct {
	Mode            EgressMode `json:"mode" yaml:"mode"`
	Socks5Endpoint  string     `json:"socks5_endpoint,omitempty" yaml:"socks5_endpoint,omitempty"`
	FailOpen        bool       `json:"fail_open" yaml:"fail_open"`
}

// AcmeConfig configures https-acme mode.
type AcmeConfig struct {
	Email         string        `json:"email,omitempty" yaml:"email,omitempty"`
	Domain        string        `json:"domain,omitempty" yaml:"domain,omitempty"`
	Challenge     AcmeChallenge `json:"challenge,omitempty" yaml:"challenge,omitempty"`
	DNSProfileID  string        `json:"dns_profile_id,omitempty" yaml:"dns_profile_id,omitempty"`
}

// ProxyConfig is a reusable blueprint for starting a listener. It is
// validated by the Proxy Controller before binding.
type ProxyConfig struct {
	Mode           TLSMode      `json:"mode" yaml:"mode"`
	Port           int          `json:"port" yaml:"port"`
	BindAddr       string       `json:"bind_addr" yaml:"bind_addr"`
	Egress         EgressConfig `json:"egress" yaml:"egress"`
	Acme           AcmeConfig   `json:"acme" yaml:"acme"`
	ConfigDBPath   string       `json:"config_db_path" yaml:"config_db_path"`
	SecurityDBPath string       `json:"security_db_path" yaml:"security_db_path"`
	TrustedProxies []string     `json:"trusted_proxy_ips,omitempty" yaml:"trusted_proxy_ips,omitempty"`
	PublicBaseHost string       `json:"public_base_host,omitempty" yaml:"public_base_host,omitempty"`
	HTTPSRedirectPort int       `json:"https_redirect_port,omitempty" yaml:"https_redirect_port,omitempty"`
}

// Validate applies the invariants the Proxy Controller must enforce before
// binding a listener, including the rule that a wildcard domain requires
// the dns-01 challenge.
func (c ProxyConfig) Validate() *Error {
	switch c.Mode {
	case TLSModeLocalHTTP, TLSModeDevSelfSigned, TLSModeHTTPSAcme, TLSModePackagedCA:
	default:
		return NewProxyInvalidConfig(fmt.Sprintf("unknown tls mode %q", c.Mode))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewProxyInvalidConfig(fmt.Sprintf("invalid port %d", c.Port))
	}
	if c.Mode == TLSModeHTTPSAcme {
		if c.Acme.Domain == "" {
			return NewProxyInvalidConfig("acme mode requires a domain")
		}
		if strings.HasPrefix(c.Acme.Domain, "*.") && c.Acme.Challenge != ChallengeDNS01 {
			return NewProxyInvalidConfig("wildcard requires dns-01")
		}
	}
	switch c.Egress.Mode {
	case EgressDirect, EgressSocks5, EgressTor, "":
	default:
		return NewProxyInvalidConfig(fmt.Sprintf("unknown egress mode %q", c.Egress.Mode))
	}
	return nil
}

// ProxyState is the Proxy Controller's state machine.
type ProxyState string

const (
	StateConfigured ProxyState = "configured"
	StateStarting   ProxyState = "starting"
	StateRunning    ProxyState = "running"
	StateDraining   ProxyState = "draining"
	StateStopped    ProxyState = "stopped"
	StateFailed     ProxyState = "failed"
)

// ProxyHandle is the runtime record of one running listener.
type ProxyHandle struct {
	HandleID  string     `json:"handle_id" gorm:"primaryKey"`
	ProfileID string     `json:"profile_id"`
	PID       int        `json:"pid"`
	Port      int        `json:"port"`
	State     ProxyState `json:"state"`
	Mode      TLSMode    `json:"mode"`
	BindAddr  string     `json:"bind_addr"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName pins ProxyHandle to configstore's "active_handles" table.
func (ProxyHandle) TableName() string { return "active_handles" }
