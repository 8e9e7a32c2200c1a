package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/security"
)

// AnomalyDetector never blocks; it only logs. This exercises the chain
// running to completion regardless of how bursty the route's traffic looks
// against a deliberately oversensitive threshold.
func TestAnomalyDetector_NeverBlocks(t *testing.T) {
	policyFn := func(_ context.Context) (security.Policy, error) {
		return security.Policy{Anomaly: security.AnomalyPolicy{WindowSec: 5, ZThreshold: 0.001}}, nil
	}

	h := AnomalyDetector(policyFn, zap.NewNop())(okHandler())

	for i := 0; i < 20; i++ {
		r := withTestRemoteIP(httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil), "203.0.113.40")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
