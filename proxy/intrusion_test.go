package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func statusHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestIntrusionDetector_BlocksPastThreshold(t *testing.T) {
	svc := newTestSecurityService(t)
	collector := newTestCollector(t)
	ctx := context.Background()

	p, err := svc.GetPolicy(ctx)
	require.NoError(t, err)
	p.Intrusion.WindowSec = 60
	p.Intrusion.Threshold = 2
	require.NoError(t, svc.SetPolicy(ctx, p))

	h := IntrusionDetector(ctx, svc, svc.GetPolicy, collector, zap.NewNop())(statusHandler(http.StatusUnauthorized))

	ip := "203.0.113.30"
	for i := 0; i < 3; i++ {
		r := withTestRemoteIP(httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil), ip)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
	}

	blocked, err := svc.ListBlockedIPs(ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, ip, blocked[0].Addr)
}

func TestIntrusionDetector_IgnoresSuccessResponses(t *testing.T) {
	svc := newTestSecurityService(t)
	collector := newTestCollector(t)
	ctx := context.Background()

	h := IntrusionDetector(ctx, svc, svc.GetPolicy, collector, zap.NewNop())(statusHandler(http.StatusOK))

	ip := "203.0.113.31"
	for i := 0; i < 50; i++ {
		r := withTestRemoteIP(httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil), ip)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
	}

	blocked, err := svc.ListBlockedIPs(ctx)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}
