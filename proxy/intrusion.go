package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/internal/metrics"
	"github.com/flm-run/flm-proxy/security"
)

// failWindow tracks auth-fail/4xx timestamps for one remote IP, pruning
// anything older than the configured window on each access.
type failWindow struct {
	mu   sync.Mutex
	hits []time.Time
}

func (f *failWindow) record(now time.Time, window time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := now.Add(-window)
	live := f.hits[:0]
	for _, t := range f.hits {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}
	live = append(live, now)
	f.hits = live
	return len(f.hits)
}

// intrusionTracker is the shared per-IP sliding failure window, fed by
// every response the chain produces further downstream.
type intrusionTracker struct {
	mu  sync.Mutex
	ips map[string]*failWindow
}

func newIntrusionTracker(ctx context.Context) *intrusionTracker {
	t := &intrusionTracker{ips: make(map[string]*failWindow)}
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				for ip, fw := range t.ips {
					fw.mu.Lock()
					stale := len(fw.hits) == 0
					fw.mu.Unlock()
					if stale {
						delete(t.ips, ip)
					}
				}
				t.mu.Unlock()
			}
		}
	}()
	return t
}

func (t *intrusionTracker) windowFor(ip string) *failWindow {
	t.mu.Lock()
	defer t.mu.Unlock()
	fw, ok := t.ips[ip]
	if !ok {
		fw = &failWindow{}
		t.ips[ip] = fw
	}
	return fw
}

// IntrusionDetector wraps every downstream step; on a 401 or other 4xx
// response it records a hit against the remote's sliding window and, past
// threshold, inserts a one-hour blocklist entry so step 2 short-circuits
// the IP on its next request. Step 5 of the middleware chain.
func IntrusionDetector(ctx context.Context, svc *security.Service, policy func(context.Context) (security.Policy, error), collector *metrics.Collector, logger *zap.Logger) Middleware {
	tracker := newIntrusionTracker(ctx)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.statusCode < 400 || rw.statusCode >= 500 {
				return
			}
			ip := RemoteIPFromContext(r.Context())
			if ip == "" {
				return
			}
			p, err := policy(r.Context())
			if err != nil {
				return
			}
			window := time.Duration(p.Intrusion.WindowSec) * time.Second
			if window <= 0 {
				window = 60 * time.Second
			}
			count := tracker.windowFor(ip).record(time.Now().UTC(), window)
			if p.Intrusion.Threshold > 0 && count > p.Intrusion.Threshold {
				expires := time.Now().UTC().Add(time.Hour)
				if err := svc.BlockIP(r.Context(), ip, "intrusion threshold exceeded", security.BlocklistIntrusion, &expires); err != nil {
					logger.Warn("failed to persist intrusion blocklist entry", zap.Error(err), zap.String("remote_ip", ip))
					return
				}
				collector.RecordSecurityDenial("intrusion")
				logger.Warn("remote blocked for intrusion", zap.String("remote_ip", ip), zap.Int("count", count))
			}
		})
	}
}
