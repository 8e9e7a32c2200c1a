package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/security"
)

// anomalySampler holds one rateSample per normalized route.
type anomalySampler struct {
	mu      sync.Mutex
	samples map[string]*rateSample
	window  int
}

func newAnomalySampler(windowSec int) *anomalySampler {
	return &anomalySampler{samples: make(map[string]*rateSample), window: windowSec}
}

func (a *anomalySampler) sampleFor(route string) *rateSample {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.samples[route]
	if !ok {
		s = newRateSample(a.window)
		a.samples[route] = s
	}
	return s
}

// AnomalyDetector scores the current second's per-route request rate
// against the window's mean/stddev. It never blocks; a z-score above
// threshold is only logged. Thresholds are operator-configurable rather
// than fixed constants. Runs inside RateLimit and wraps ResourceProtection.
func AnomalyDetector(policy func(context.Context) (security.Policy, error), logger *zap.Logger) Middleware {
	var sampler *anomalySampler
	var samplerOnce sync.Once
	var samplerWindow int

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := policy(r.Context())
			if err == nil {
				window := p.Anomaly.WindowSec
				if window <= 0 {
					window = 300
				}
				samplerOnce.Do(func() {
					sampler = newAnomalySampler(window)
					samplerWindow = window
				})
				if sampler != nil && window == samplerWindow {
					route := normalizePath(r.URL.Path)
					count, mean, stddev := sampler.sampleFor(route).record(time.Now().Unix())
					if stddev > 0 {
						z := (float64(count) - mean) / stddev
						if z > p.Anomaly.ZThreshold {
							logger.Warn("anomalous request rate",
								zap.String("route", route),
								zap.Float64("z_score", z),
								zap.String("remote_ip", RemoteIPFromContext(r.Context())),
							)
						}
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
