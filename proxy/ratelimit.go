package proxy

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/security"
)

// visitor is one token bucket plus the policy rps/burst it was built with,
// so a policy reload replaces stale limiters instead of leaving them stuck
// at a rate that no longer applies.
type visitor struct {
	limiter  *rate.Limiter
	rps      float64
	burst    int
	lastSeen time.Time
}

// bucketSet is a lazily-populated, lazily-evicted map of token buckets.
type bucketSet struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newBucketSet(ctx context.Context) *bucketSet {
	b := &bucketSet{visitors: make(map[string]*visitor)}
	go b.evictLoop(ctx)
	return b
}

func (b *bucketSet) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			for k, v := range b.visitors {
				if time.Since(v.lastSeen) > 5*time.Minute {
					delete(b.visitors, k)
				}
			}
			b.mu.Unlock()
		}
	}
}

// reserve returns a reservation against key's bucket, creating or
// re-tuning the bucket to match rps/burst first.
func (b *bucketSet) reserve(key string, rps float64, burst int) *rate.Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.visitors[key]
	if !ok || v.rps != rps || v.burst != burst {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst), rps: rps, burst: burst}
		b.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Reserve()
}

// RateLimit enforces two token buckets: one keyed
// by key_id, one by remote IP. ctx governs the lifetime of the background
// eviction goroutines and should be cancelled when the listener stops.
func RateLimit(ctx context.Context, policy func(context.Context) (security.Policy, error)) Middleware {
	perKey := newBucketSet(ctx)
	perIP := newBucketSet(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := policy(r.Context())
			if err != nil {
				WriteError(w, err, nil)
				return
			}

			ip := RemoteIPFromContext(r.Context())
			keyID := KeyIDFromContext(r.Context())

			var reservations []*rate.Reservation
			var delay time.Duration
			if keyID != "" {
				res := perKey.reserve("key:"+keyID, p.RateLimit.PerKeyRPS, p.RateLimit.Burst)
				reservations = append(reservations, res)
				if d := res.Delay(); d > delay {
					delay = d
				}
			}
			if ip != "" {
				res := perIP.reserve("ip:"+ip, p.RateLimit.PerIPRPS, p.RateLimit.Burst)
				reservations = append(reservations, res)
				if d := res.Delay(); d > delay {
					delay = d
				}
			}

			if delay > 0 {
				for _, res := range reservations {
					res.Cancel()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				WriteError(w, core.NewRateLimited("too many requests"), nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
