package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimit_AdmitsWithinBurst(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.RateLimit.PerIPRPS = 1
	p.RateLimit.Burst = 3
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := RateLimit(ctx, svc.GetPolicy)(okHandler())

	for i := 0; i < 3; i++ {
		r := withTestRemoteIP(httptest.NewRequest(http.MethodGet, "/", nil), "203.0.113.9")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should be admitted", i)
	}
}

func TestRateLimit_RejectsPastBurstWithRetryAfter(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.RateLimit.PerIPRPS = 1
	p.RateLimit.Burst = 1
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := RateLimit(ctx, svc.GetPolicy)(okHandler())

	r1 := withTestRemoteIP(httptest.NewRequest(http.MethodGet, "/", nil), "203.0.113.10")
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	require.Equal(t, http.StatusOK, w1.Code)

	r2 := withTestRemoteIP(httptest.NewRequest(http.MethodGet, "/", nil), "203.0.113.10")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.NotEmpty(t, w2.Header().Get("Retry-After"))
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	svc := newTestSecurityService(t)
	ctx := context.Background()
	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.RateLimit.PerIPRPS = 1
	p.RateLimit.Burst = 1
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := RateLimit(ctx, svc.GetPolicy)(okHandler())

	r1 := withTestRemoteIP(httptest.NewRequest(http.MethodGet, "/", nil), "203.0.113.11")
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	assert.Equal(t, http.StatusOK, w1.Code)

	r2 := withTestRemoteIP(httptest.NewRequest(http.MethodGet, "/", nil), "203.0.113.12")
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	assert.Equal(t, http.StatusOK, w2.Code)
}
