package proxy

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/internal/metrics"
	"github.com/flm-run/flm-proxy/security"
)

// PipelineConfig collects everything NewPipeline needs to assemble the
// middleware chain for one listening profile.
type PipelineConfig struct {
	Security       *security.Service
	Metrics        *metrics.Collector
	Logger         *zap.Logger
	TrustedProxies []string
	CORSOrigins    []string
	MaxInFlight    int
}

// NewPipeline wraps route with the full security chain, ambient middlewares
// outermost so they apply even when the security pipeline itself rejects a
// request. ctx governs the lifetime of the background eviction/sweep
// goroutines RateLimit and IntrusionDetector spawn; it should be cancelled
// when the owning listener shuts down.
func NewPipeline(ctx context.Context, cfg PipelineConfig, route http.Handler) http.Handler {
	policy := cfg.Security.GetPolicy
	trusted := newTrustedProxySet(cfg.TrustedProxies)

	// Step 8 (route dispatch) is the innermost handler. On the way in the
	// order is AuditLog, body limit, IP filter, intrusion detection, API-key
	// auth, rate limit, anomaly detection, resource protection: intrusion
	// detection runs outside auth so it sees the 401s auth produces.
	chain := ResourceProtection(cfg.MaxInFlight)(route)
	chain = AnomalyDetector(policy, cfg.Logger)(chain)
	chain = RateLimit(ctx, policy)(chain)
	chain = APIKeyAuth(cfg.Security)(chain)
	chain = IntrusionDetector(ctx, cfg.Security, policy, cfg.Metrics, cfg.Logger)(chain)
	chain = IPFilter(cfg.Security, policy)(chain)
	chain = BodyLimit(policy)(chain)
	chain = AuditLog(cfg.Security)(chain)

	return Chain(chain,
		RequestID(),
		RemoteIP(trusted),
		Recovery(cfg.Logger),
		SecurityHeaders(),
		CORS(cfg.CORSOrigins),
		MetricsMiddleware(cfg.Metrics),
		RequestLogger(cfg.Logger),
	)
}
