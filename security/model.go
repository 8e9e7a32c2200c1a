// Package security persists and serves API keys, the security policy,
// the IP blocklist, the audit log, and DNS credential profiles — the L1
// Security Repository and L3 Security Service from the proxy runtime's
// component table.
package security

import "time"

// APIKey is a durable caller credential. The plaintext secret exists only
// at creation/rotation time; Hash is the only persisted form.
type APIKey struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	Label     string     `json:"label"`
	Hash      string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (APIKey) TableName() string { return "api_keys" }

// Active reports whether the key may still authenticate a request.
func (k APIKey) Active() bool { return k.RevokedAt == nil }

// RateLimitPolicy is the rate_limit sub-object of the Security Policy JSON.
type RateLimitPolicy struct {
	PerKeyRPS float64 `json:"per_key_rps"`
	PerIPRPS  float64 `json:"per_ip_rps"`
	Burst     int     `json:"burst"`
}

// BodyLimitsPolicy is the body_limits sub-object.
type BodyLimitsPolicy struct {
	MaxBytes int64 `json:"max_bytes"`
}

// IntrusionPolicy is the intrusion sub-object.
type IntrusionPolicy struct {
	WindowSec int `json:"window_sec"`
	Threshold int `json:"threshold"`
}

// CORSPolicy is the cors sub-object.
type CORSPolicy struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// AnomalyPolicy configures the anomaly-detection step of the middleware
// chain. Unlike Intrusion, anomaly detection never blocks a request: a
// flagged request is only logged as a warning, and its audit row carries no
// anomaly marker. Thresholds are operator-configurable,
// not fixed constants.
type AnomalyPolicy struct {
	WindowSec  int     `json:"window_sec"`
	ZThreshold float64 `json:"z_threshold"`
}

// Policy is the Security Policy JSON blob, stored as a single logical row
// keyed by id "default".
type Policy struct {
	IPWhitelist []string         `json:"ip_whitelist"`
	IPBlocklist []string         `json:"ip_blocklist"`
	CORS        CORSPolicy       `json:"cors"`
	RateLimit   RateLimitPolicy  `json:"rate_limit"`
	BodyLimits  BodyLimitsPolicy `json:"body_limits"`
	Intrusion   IntrusionPolicy  `json:"intrusion"`
	Anomaly     AnomalyPolicy    `json:"anomaly"`
}

// DefaultPolicy mirrors config.DefaultSecurityConfig so a freshly
// provisioned security.db and a freshly loaded YAML config agree on
// starting values.
func DefaultPolicy() Policy {
	return Policy{
		RateLimit:  RateLimitPolicy{PerKeyRPS: 5, PerIPRPS: 20, Burst: 10},
		BodyLimits: BodyLimitsPolicy{MaxBytes: 10 << 20},
		Intrusion:  IntrusionPolicy{WindowSec: 60, Threshold: 20},
		Anomaly:    AnomalyPolicy{WindowSec: 300, ZThreshold: 3.0},
	}
}

// policyRow is the gorm-mapped storage row; Policy itself stays a plain
// value type so callers never need the persistence shape.
type policyRow struct {
	ID        string `gorm:"primaryKey"`
	Policy    string
	UpdatedAt time.Time
}

func (policyRow) TableName() string { return "security_policies" }

// BlocklistSource distinguishes how an IP landed on the blocklist.
type BlocklistSource string

const (
	BlocklistManual    BlocklistSource = "manual"
	BlocklistIntrusion BlocklistSource = "intrusion"
	BlocklistAnomaly   BlocklistSource = "anomaly"
)

// IPBlocklistEntry is one blocked address or CIDR.
type IPBlocklistEntry struct {
	ID        string          `json:"id" gorm:"primaryKey"`
	Addr      string          `json:"addr"`
	Reason    string          `json:"reason"`
	Source    BlocklistSource `json:"source"`
	BlockedAt time.Time       `json:"blocked_at"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (IPBlocklistEntry) TableName() string { return "ip_blocklist" }

// Expired reports whether the entry should be lazily evicted on lookup.
func (e IPBlocklistEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// AuditOutcome is the closed set of terminal outcomes an audit row records.
type AuditOutcome string

const (
	OutcomeOK           AuditOutcome = "ok"
	OutcomeAuthFail     AuditOutcome = "auth_fail"
	OutcomeRateLimited  AuditOutcome = "rate_limited"
	OutcomeBlocked      AuditOutcome = "blocked"
	OutcomeUpstreamErr  AuditOutcome = "upstream_error"
)

// AuditLogEntry is one append-only audit row. Remote IPs and key ids are
// masked before they ever reach this struct; see mask.go.
type AuditLogEntry struct {
	ID              int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	TS              time.Time    `json:"ts"`
	ActorKeyID      *string      `json:"actor_key_id,omitempty"`
	RemoteIPMasked  string       `json:"remote_ip_masked"`
	Route           string       `json:"route"`
	StatusCode      int          `json:"status_code"`
	LatencyMS       int          `json:"latency_ms"`
	Outcome         AuditOutcome `json:"outcome"`
}

func (AuditLogEntry) TableName() string { return "audit_log" }

// DNSCredentialProfile holds metadata for a DNS-01 provider credential. The
// provider token itself lives in the OS keyring, never in this row.
type DNSCredentialProfile struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Provider  string    `json:"provider"`
	Label     string    `json:"label"`
	ZoneID    string    `json:"zone_id"`
	ZoneName  string    `json:"zone_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (DNSCredentialProfile) TableName() string { return "dns_credential_profiles" }

// KeyringService name every DNS credential profile's token is stored under,
// keyed by profile id.
const KeyringService = "flm.dns.credentials"
